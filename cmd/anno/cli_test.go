package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/config"
	"github.com/hpungsan/anno/internal/db"
	"github.com/hpungsan/anno/internal/session"
)

// setupEnv writes a three-text corpus and returns an environment over it.
// withMirror configures a directory-backed mirror.
func setupEnv(t *testing.T, withMirror bool) *appEnv {
	t.Helper()
	dir := t.TempDir()

	corpusPath := filepath.Join(dir, "teksty.txt")
	require.NoError(t, os.WriteFile(corpusPath, []byte("1 pierwszy tekst\n2 drugi tekst\n\n3 trzeci tekst\n"), 0644))
	categoriesPath := filepath.Join(dir, "kategorie.json")
	require.NoError(t, os.WriteFile(categoriesPath, []byte(`["X", "Y"]`), 0644))

	cfg := config.DefaultConfig()
	cfg.CorpusPath = corpusPath
	cfg.CategoriesPath = categoriesPath
	cfg.AnnotationsPath = filepath.Join(dir, "anotacje.csv")
	if withMirror {
		mirrorDir := filepath.Join(dir, "mirror")
		require.NoError(t, os.Mkdir(mirrorDir, 0755))
		cfg.Remote.Backend = config.BackendDir
		cfg.Remote.Bucket = mirrorDir
	}

	baseDir := filepath.Join(dir, ".anno")
	journal, err := db.Init(baseDir)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	return &appEnv{baseDir: baseDir, cfg: cfg, journal: journal, logger: zap.NewNop()}
}

// runCLI runs the app with args and returns what it printed to stdout.
func runCLI(t *testing.T, env *appEnv, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan string)
	go func() {
		data, _ := io.ReadAll(r)
		done <- string(data)
	}()

	runErr := newCLIApp(env).Run(append([]string{"anno"}, args...))

	w.Close()
	os.Stdout = oldStdout
	return <-done, runErr
}

func mirrorPath(env *appEnv) string {
	return filepath.Join(env.cfg.Remote.Bucket, env.cfg.Remote.Object)
}

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string clears", input: "", expected: []string{}},
		{name: "single", input: "X", expected: []string{"X"}},
		{name: "multiple keeps order", input: "Y,X", expected: []string{"Y", "X"}},
		{name: "spaces trimmed", input: " X , Y ", expected: []string{"X", "Y"}},
		{name: "empty parts dropped", input: "X,,Y,", expected: []string{"X", "Y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseLabels(tt.input)
			require.NotNil(t, got)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestCLIProgressAndShow(t *testing.T) {
	env := setupEnv(t, false)

	out, err := runCLI(t, env, "progress")
	require.NoError(t, err)
	var p session.Progress
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.Equal(t, session.Progress{Annotated: 0, Total: 3}, p)

	tests := []struct {
		name   string
		args   []string
		wantID string
	}{
		{name: "first unannotated", args: []string{"show"}, wantID: "1"},
		{name: "by id", args: []string{"show", "--id", "3"}, wantID: "3"},
		{name: "index clamped", args: []string{"show", "--index", "99"}, wantID: "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, env, tt.args...)
			require.NoError(t, err)
			var rec session.Record
			require.NoError(t, json.Unmarshal([]byte(out), &rec))
			require.Equal(t, tt.wantID, rec.ID)
			require.Equal(t, []string{}, rec.Labels)
		})
	}

	_, err = runCLI(t, env, "show", "--id", "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[NOT_FOUND]")

	_, err = runCLI(t, env, "show", "--id", "1", "--index", "0")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[INVALID_REQUEST]")
}

func TestCLILabel(t *testing.T) {
	env := setupEnv(t, false)

	out, err := runCLI(t, env, "label", "--id", "2", "--labels", "X, Y")
	require.NoError(t, err)
	var saved session.SaveLocalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &saved))
	require.True(t, saved.Captured)
	require.Equal(t, 1, saved.Annotated)

	data, err := os.ReadFile(env.cfg.AnnotationsPath)
	require.NoError(t, err)
	require.Equal(t, "id;kategorie\n2;X,Y\n", string(data))

	// A new session starts on the first unannotated text and sees the saved labels.
	out, err = runCLI(t, env, "show", "--id", "2")
	require.NoError(t, err)
	var rec session.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, []string{"X", "Y"}, rec.Labels)

	// Clearing keeps the row but drops it from progress.
	_, err = runCLI(t, env, "label", "--id", "2", "--labels", "")
	require.NoError(t, err)
	out, err = runCLI(t, env, "progress")
	require.NoError(t, err)
	var p session.Progress
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.Equal(t, 0, p.Annotated)

	_, err = runCLI(t, env, "label", "--id", "42", "--labels", "X")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[NOT_FOUND]")
}

func TestCLILabel_MultipleIDs(t *testing.T) {
	env := setupEnv(t, false)

	_, err := runCLI(t, env, "label", "--id", "1", "--id", "3", "--labels", "Y")
	require.NoError(t, err)

	data, err := os.ReadFile(env.cfg.AnnotationsPath)
	require.NoError(t, err)
	require.Equal(t, "id;kategorie\n1;Y\n3;Y\n", string(data))
}

func TestCLIStrictVocabulary(t *testing.T) {
	env := setupEnv(t, false)
	env.cfg.StrictVocabulary = true

	_, err := runCLI(t, env, "label", "--id", "1", "--labels", "Z")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[INVALID_REQUEST]")
	require.False(t, fileExists(env.cfg.AnnotationsPath))
}

func TestCLISaveRemote(t *testing.T) {
	t.Run("without mirror", func(t *testing.T) {
		env := setupEnv(t, false)

		out, err := runCLI(t, env, "label", "--id", "1", "--labels", "X", "--remote")
		require.Error(t, err)
		require.Contains(t, err.Error(), "[REMOTE_UNAVAILABLE]")

		// The local half still ran and was reported.
		var saved session.SaveRemoteOutput
		require.NoError(t, json.Unmarshal([]byte(out), &saved))
		require.NotNil(t, saved.Local)
		require.True(t, fileExists(env.cfg.AnnotationsPath))
	})

	t.Run("with mirror", func(t *testing.T) {
		env := setupEnv(t, true)

		_, err := runCLI(t, env, "label", "--id", "1", "--labels", "X", "--remote")
		require.NoError(t, err)

		local, err := os.ReadFile(env.cfg.AnnotationsPath)
		require.NoError(t, err)
		remote, err := os.ReadFile(mirrorPath(env))
		require.NoError(t, err)
		require.Equal(t, string(local), string(remote))
		require.Equal(t, "id;kategorie\n1;X\n", string(remote))
	})
}

func TestCLIPull(t *testing.T) {
	env := setupEnv(t, true)

	_, err := runCLI(t, env, "label", "--id", "1", "--labels", "X")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mirrorPath(env), []byte("id;kategorie\n3;Y\n"), 0644))

	_, err = runCLI(t, env, "pull")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[INVALID_REQUEST]")

	out, err := runCLI(t, env, "pull", "--force")
	require.NoError(t, err)
	var reload session.ReloadOutput
	require.NoError(t, json.Unmarshal([]byte(out), &reload))
	require.Equal(t, 1, reload.Records)

	data, err := os.ReadFile(env.cfg.AnnotationsPath)
	require.NoError(t, err)
	require.Equal(t, "id;kategorie\n3;Y\n", string(data))
}

func TestCLICategories(t *testing.T) {
	env := setupEnv(t, false)

	out, err := runCLI(t, env, "categories")
	require.NoError(t, err)
	var got struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, []string{"X", "Y"}, got.Categories)
}

func TestCLIHistory(t *testing.T) {
	env := setupEnv(t, false)

	_, err := runCLI(t, env, "label", "--id", "2", "--labels", "X")
	require.NoError(t, err)
	_, err = runCLI(t, env, "label", "--id", "2", "--labels", "X,Y")
	require.NoError(t, err)

	out, err := runCLI(t, env, "history", "--id", "2")
	require.NoError(t, err)
	var got struct {
		ID      string           `json:"id"`
		Changes []db.LabelChange `json:"changes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Changes, 2)
	require.Equal(t, []string{"X", "Y"}, got.Changes[0].Labels)
	require.Equal(t, []string{"X"}, got.Changes[1].Labels)
}

func TestCLIExport(t *testing.T) {
	env := setupEnv(t, false)

	_, err := runCLI(t, env, "label", "--id", "1", "--labels", "Y")
	require.NoError(t, err)

	dest := filepath.Join(env.exportsDir(), "kopia.csv")
	_, err = runCLI(t, env, "export", "--path", dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "id;kategorie\n1;Y\n", string(data))

	out, err := runCLI(t, env, "export")
	require.NoError(t, err)
	require.Contains(t, out, env.exportsDir())

	_, err = runCLI(t, env, "export", "--path", filepath.Join(t.TempDir(), "outside.csv"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "[INVALID_REQUEST]")

	env.cfg.AllowUnsafePaths = true
	_, err = runCLI(t, env, "export", "--path", filepath.Join(t.TempDir(), "outside.csv"))
	require.NoError(t, err)
}

func TestCLIInfo(t *testing.T) {
	env := setupEnv(t, false)

	out, err := runCLI(t, env, "info")
	require.NoError(t, err)
	var info session.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.NotEmpty(t, info.SessionID)
	require.False(t, info.LocalExists)
	require.False(t, info.Remote.Available)
	require.Equal(t, "remote mirror not configured", info.Remote.Message)
}

func TestCLIStartupErrors(t *testing.T) {
	env := setupEnv(t, false)
	env.cfg.CorpusPath = filepath.Join(t.TempDir(), "missing.txt")

	_, err := runCLI(t, env, "progress")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[CORPUS_READ]")

	env = setupEnv(t, false)
	require.NoError(t, os.WriteFile(env.cfg.AnnotationsPath, []byte("foo;bar\n1;X\n"), 0644))
	_, err = runCLI(t, env, "progress")
	require.Error(t, err)
	require.Contains(t, err.Error(), "[ANNOTATION_PARSE]")
}

func TestHelpWithoutEnv(t *testing.T) {
	out, err := runCLI(t, nil, "--help")
	require.NoError(t, err)
	for _, cmd := range []string{"label", "save", "pull", "serve", "tui", "mcp"} {
		require.True(t, strings.Contains(out, cmd), "help is missing %q", cmd)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
