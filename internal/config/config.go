package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Remote backend names.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendDir   = "dir"
)

// configNames lists the config file names looked up in a config directory, in order.
var configNames = []string{"config.json", "config.yaml", "config.yml"}

// Config holds application configuration.
type Config struct {
	// CorpusPath is the line-oriented corpus file ("<id> <body>" per line).
	CorpusPath string `json:"corpus_path,omitempty" yaml:"corpus_path,omitempty"`

	// CategoriesPath is the JSON array of category labels.
	CategoriesPath string `json:"categories_path,omitempty" yaml:"categories_path,omitempty"`

	// AnnotationsPath is the local semicolon-delimited annotation file.
	AnnotationsPath string `json:"annotations_path,omitempty" yaml:"annotations_path,omitempty"`

	// GuidelinesPath is an optional Markdown file shown by the web UI.
	GuidelinesPath string `json:"guidelines_path,omitempty" yaml:"guidelines_path,omitempty"`

	// StrictVocabulary rejects labels outside the category file.
	// When false, unknown labels are accepted and logged as warnings.
	StrictVocabulary bool `json:"strict_vocabulary,omitempty" yaml:"strict_vocabulary,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// AllowedPaths is an allowlist of directories for CSV export.
	// Paths outside ~/.anno/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty" yaml:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty" yaml:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	// Remote configures the optional mirror of the annotation file.
	Remote RemoteConfig `json:"remote,omitempty" yaml:"remote,omitempty"`
}

// RemoteConfig describes the single remote object the annotation file is mirrored to.
type RemoteConfig struct {
	// Backend is one of "s3", "minio", "dir". Empty disables the mirror.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Bucket is the container (S3/MinIO bucket, or the root directory for "dir").
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// Folder is the fixed parent folder (key prefix) the object lives in.
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty"`

	// Object is the exact object name looked up inside Folder.
	Object string `json:"object,omitempty" yaml:"object,omitempty"`

	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	UseSSL    bool   `json:"use_ssl,omitempty" yaml:"use_ssl,omitempty"`
	PathStyle bool   `json:"path_style,omitempty" yaml:"path_style,omitempty"`

	// Timeout bounds every remote call (Go duration string, e.g. "30s").
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Enabled reports whether a remote backend is configured.
func (r RemoteConfig) Enabled() bool {
	return strings.TrimSpace(r.Backend) != ""
}

// TimeoutDuration returns the parsed timeout, or 0 if unset or invalid.
func (r RemoteConfig) TimeoutDuration() time.Duration {
	if r.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CorpusPath:      "teksty.txt",
		CategoriesPath:  "kategorie.json",
		AnnotationsPath: "anotacje.csv",
		LogLevel:        "info",
		Remote: RemoteConfig{
			Object:  "anotacje.csv",
			Timeout: "30s",
		},
	}
}

// Load loads configuration from baseDir/config.json (or config.yaml).
// Returns default config if no file exists. Environment overrides are applied last.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.anno.
func Load(baseDir string) (*Config, error) {
	raw, err := loadFileRaw(findConfigFile(baseDir))
	if err != nil {
		return nil, err
	}
	cfg := Merge(DefaultConfig(), raw)
	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// LoadWithRepo loads configuration from both global (~/.anno) and repo (.anno) directories.
// Repo config is found by walking upward from startDir to find the nearest .anno/config file.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(findConfigFile(globalDir))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo, then environment
	cfg := Merge(Merge(DefaultConfig(), global), repo)
	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// FindRepoConfig walks upward from startDir to find the nearest .anno/config file.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		if p := findConfigFile(filepath.Join(dir, ".anno")); p != "" {
			return p
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, not found
			return ""
		}
		dir = parent
	}
}

// findConfigFile returns the first existing config file in dir, or "".
func findConfigFile(dir string) string {
	for _, name := range configNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch filepath.Ext(configPath) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	return cfg, nil
}

// applyEnvOverrides lets the environment override file settings.
// Credentials are usually provided this way rather than in a file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ANNO_CORPUS"); v != "" {
		c.CorpusPath = v
	}
	if v := os.Getenv("ANNO_CATEGORIES"); v != "" {
		c.CategoriesPath = v
	}
	if v := os.Getenv("ANNO_ANNOTATIONS"); v != "" {
		c.AnnotationsPath = v
	}
	if v := os.Getenv("ANNO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ANNO_REMOTE_ACCESS_KEY"); v != "" {
		c.Remote.AccessKey = v
	}
	if v := os.Getenv("ANNO_REMOTE_SECRET_KEY"); v != "" {
		c.Remote.SecretKey = v
	}
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case "", BackendS3, BackendMinio, BackendDir:
	default:
		return fmt.Errorf("unknown remote backend %q (want s3, minio or dir)", c.Remote.Backend)
	}
	if c.Remote.Timeout != "" {
		if _, err := time.ParseDuration(c.Remote.Timeout); err != nil {
			return fmt.Errorf("invalid remote timeout %q: %w", c.Remote.Timeout, err)
		}
	}
	if c.Remote.Enabled() && strings.TrimSpace(c.Remote.Object) == "" {
		return fmt.Errorf("remote object name is required")
	}
	return nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.CorpusPath = pick(overlay.CorpusPath, base.CorpusPath)
	result.CategoriesPath = pick(overlay.CategoriesPath, base.CategoriesPath)
	result.AnnotationsPath = pick(overlay.AnnotationsPath, base.AnnotationsPath)
	result.GuidelinesPath = pick(overlay.GuidelinesPath, base.GuidelinesPath)
	result.LogLevel = pick(overlay.LogLevel, base.LogLevel)

	result.Remote.Backend = pick(overlay.Remote.Backend, base.Remote.Backend)
	result.Remote.Bucket = pick(overlay.Remote.Bucket, base.Remote.Bucket)
	result.Remote.Folder = pick(overlay.Remote.Folder, base.Remote.Folder)
	result.Remote.Object = pick(overlay.Remote.Object, base.Remote.Object)
	result.Remote.Endpoint = pick(overlay.Remote.Endpoint, base.Remote.Endpoint)
	result.Remote.Region = pick(overlay.Remote.Region, base.Remote.Region)
	result.Remote.AccessKey = pick(overlay.Remote.AccessKey, base.Remote.AccessKey)
	result.Remote.SecretKey = pick(overlay.Remote.SecretKey, base.Remote.SecretKey)
	result.Remote.Timeout = pick(overlay.Remote.Timeout, base.Remote.Timeout)

	// Booleans: overlay wins if true, else base
	result.StrictVocabulary = base.StrictVocabulary || overlay.StrictVocabulary
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.Remote.UseSSL = base.Remote.UseSSL || overlay.Remote.UseSSL
	result.Remote.PathStyle = base.Remote.PathStyle || overlay.Remote.PathStyle

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pick returns overlay unless it is blank.
func pick(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
