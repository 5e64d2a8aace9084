package remote

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/config"
	"github.com/hpungsan/anno/internal/errors"
	"github.com/hpungsan/anno/internal/fsutil"
	"github.com/hpungsan/anno/internal/logging"
)

// Availability is the user-visible mirror status.
type Availability struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// Mirror is a resolved handle to the remote copy of the annotation file.
type Mirror struct {
	backend Backend
	key     string
	timeout time.Duration
	logger  *zap.Logger
}

// Resolve looks up folder/name by exact name, creating an empty placeholder
// object if it is absent. Any failure is REMOTE_UNAVAILABLE.
func Resolve(ctx context.Context, backend Backend, folder, name string) (*Mirror, error) {
	if backend == nil {
		return nil, errors.NewRemoteUnavailable("no backend")
	}
	if name == "" {
		return nil, errors.NewRemoteUnavailable("object name is empty")
	}

	key := ObjectKey(folder, name)
	exists, err := backend.Stat(ctx, key)
	if err != nil {
		return nil, errors.NewRemoteUnavailable(fmt.Sprintf("lookup %s on %s: %v", key, backend.Name(), err))
	}
	if !exists {
		if err := backend.Put(ctx, key, []byte{}, "text/csv"); err != nil {
			return nil, errors.NewRemoteUnavailable(fmt.Sprintf("create %s on %s: %v", key, backend.Name(), err))
		}
	}

	return &Mirror{backend: backend, key: key, logger: zap.NewNop()}, nil
}

// Key returns the object key.
func (m *Mirror) Key() string { return m.key }

// String describes the mirror location, e.g. "s3://bucket/folder/anotacje.csv".
func (m *Mirror) String() string { return m.backend.Name() + "/" + m.key }

func (m *Mirror) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}

// Download fetches the object and overwrites localPath unconditionally.
// Returns the number of bytes written.
func (m *Mirror) Download(ctx context.Context, localPath string) (int64, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	data, err := m.backend.Get(ctx, m.key)
	if err != nil {
		return 0, errors.NewRemoteIO("download", m.key, err)
	}
	if err := fsutil.WriteFileAtomic(localPath, data, 0644); err != nil {
		return 0, errors.NewRemoteIO("download", m.key, err)
	}

	m.logger.Info("downloaded annotations from mirror",
		zap.String("mirror", m.String()),
		zap.String("path", localPath),
		zap.Int("bytes", len(data)))
	return int64(len(data)), nil
}

// Upload pushes the current bytes of localPath, replacing the remote object.
// Last writer wins. Returns the number of bytes sent.
func (m *Mirror) Upload(ctx context.Context, localPath string) (int64, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return 0, errors.NewRemoteIO("upload", m.key, err)
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	contentType := mimetype.Detect(data).String()
	if err := m.backend.Put(ctx, m.key, data, contentType); err != nil {
		return 0, errors.NewRemoteIO("upload", m.key, err)
	}

	m.logger.Info("uploaded annotations to mirror",
		zap.String("mirror", m.String()),
		zap.String("path", localPath),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)))
	return int64(len(data)), nil
}

// NewBackend builds the backend named by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.RemoteConfig) (Backend, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return NewS3Backend(ctx, S3Options{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			PathStyle: cfg.PathStyle,
			Timeout:   cfg.TimeoutDuration(),
		})
	case config.BackendMinio:
		return NewMinioBackend(MinioOptions{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
	case config.BackendDir:
		return NewDirBackend(cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Backend)
	}
}

// Open builds the configured backend and resolves the mirror object. A nil
// Mirror means the mirror is unavailable for the rest of the session; the
// Availability message says why.
func Open(ctx context.Context, cfg config.RemoteConfig, logger *zap.Logger) (*Mirror, Availability) {
	logger = logging.OrNop(logger)

	if !cfg.Enabled() {
		return nil, Availability{Message: "remote mirror not configured"}
	}

	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		logger.Warn("remote mirror unavailable", zap.String("backend", cfg.Backend), zap.Error(err))
		return nil, Availability{Message: errors.NewRemoteUnavailable(err.Error()).Message}
	}
	return OpenBackend(ctx, backend, cfg.Folder, cfg.Object, cfg.TimeoutDuration(), logger)
}

// OpenBackend resolves the mirror on an already-built backend.
func OpenBackend(ctx context.Context, backend Backend, folder, name string, timeout time.Duration, logger *zap.Logger) (*Mirror, Availability) {
	logger = logging.OrNop(logger)

	rctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m, err := Resolve(rctx, backend, folder, name)
	if err != nil {
		logger.Warn("remote mirror unavailable", zap.Error(err))
		return nil, Availability{Message: errors.As(err).Message}
	}
	m.timeout = timeout
	m.logger = logger

	logger.Info("remote mirror resolved", zap.String("mirror", m.String()))
	return m, Availability{Available: true, Message: "connected to " + m.String()}
}
