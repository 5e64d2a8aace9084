package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/anno/internal/config"
	"github.com/hpungsan/anno/internal/errors"
)

// memBackend is an in-memory Backend with injectable failures.
type memBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	statErr error
	getErr  error
	putErr  error
}

func newMemBackend() *memBackend {
	return &memBackend{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBackend) Name() string { return "mem" }

func (b *memBackend) Stat(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statErr != nil {
		return false, b.statErr
	}
	_, ok := b.objects[key]
	return ok, nil
}

func (b *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", key)
	}
	return append([]byte(nil), data...), nil
}

func (b *memBackend) Put(_ context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = append([]byte(nil), data...)
	b.types[key] = contentType
	return nil
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "anotacje.csv", ObjectKey("", "anotacje.csv"))
	require.Equal(t, "shared/anotacje.csv", ObjectKey("shared", "anotacje.csv"))
	require.Equal(t, "a/b/anotacje.csv", ObjectKey("/a/b/", "anotacje.csv"))
}

func TestResolve_CreatesPlaceholder(t *testing.T) {
	b := newMemBackend()

	m, err := Resolve(context.Background(), b, "shared", "anotacje.csv")
	require.NoError(t, err)
	require.Equal(t, "shared/anotacje.csv", m.Key())

	data, ok := b.objects["shared/anotacje.csv"]
	require.True(t, ok, "placeholder should be created")
	require.Empty(t, data)
}

func TestResolve_KeepsExistingObject(t *testing.T) {
	b := newMemBackend()
	b.objects["shared/anotacje.csv"] = []byte("id;kategorie\n1;X\n")

	_, err := Resolve(context.Background(), b, "shared", "anotacje.csv")
	require.NoError(t, err)
	require.Equal(t, "id;kategorie\n1;X\n", string(b.objects["shared/anotacje.csv"]))
}

func TestResolve_Failures(t *testing.T) {
	t.Run("lookup fails", func(t *testing.T) {
		b := newMemBackend()
		b.statErr = fmt.Errorf("access denied")
		_, err := Resolve(context.Background(), b, "", "anotacje.csv")
		require.True(t, errors.Is(err, errors.ErrRemoteUnavailable))
	})

	t.Run("placeholder fails", func(t *testing.T) {
		b := newMemBackend()
		b.putErr = fmt.Errorf("quota exceeded")
		_, err := Resolve(context.Background(), b, "", "anotacje.csv")
		require.True(t, errors.Is(err, errors.ErrRemoteUnavailable))
	})

	t.Run("nil backend", func(t *testing.T) {
		_, err := Resolve(context.Background(), nil, "", "anotacje.csv")
		require.True(t, errors.Is(err, errors.ErrRemoteUnavailable))
	})
}

func TestMirror_UploadDownload(t *testing.T) {
	b := newMemBackend()
	m, avail := OpenBackend(context.Background(), b, "shared", "anotacje.csv", 0, nil)
	require.True(t, avail.Available)
	require.NotNil(t, m)

	dir := t.TempDir()
	local := filepath.Join(dir, "anotacje.csv")
	require.NoError(t, os.WriteFile(local, []byte("id;kategorie\n1;X\n"), 0644))

	n, err := m.Upload(context.Background(), local)
	require.NoError(t, err)
	require.Equal(t, int64(17), n)
	require.Equal(t, "id;kategorie\n1;X\n", string(b.objects["shared/anotacje.csv"]))
	require.NotEmpty(t, b.types["shared/anotacje.csv"])

	// Remote now differs from local; download overwrites unconditionally.
	b.objects["shared/anotacje.csv"] = []byte("id;kategorie\n2;Y\n")
	_, err = m.Download(context.Background(), local)
	require.NoError(t, err)

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "id;kategorie\n2;Y\n", string(data))
}

func TestMirror_UploadFailure(t *testing.T) {
	b := newMemBackend()
	m, err := Resolve(context.Background(), b, "", "anotacje.csv")
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "anotacje.csv")
	require.NoError(t, os.WriteFile(local, []byte("id;kategorie\n"), 0644))

	b.putErr = fmt.Errorf("connection reset")
	_, err = m.Upload(context.Background(), local)
	require.True(t, errors.Is(err, errors.ErrRemoteIO))

	_, err = m.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.True(t, errors.Is(err, errors.ErrRemoteIO))
}

func TestMirror_DownloadFailureLeavesLocalFile(t *testing.T) {
	b := newMemBackend()
	m, err := Resolve(context.Background(), b, "", "anotacje.csv")
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "anotacje.csv")
	require.NoError(t, os.WriteFile(local, []byte("id;kategorie\n1;X\n"), 0644))

	b.getErr = fmt.Errorf("timeout")
	_, err = m.Download(context.Background(), local)
	require.True(t, errors.Is(err, errors.ErrRemoteIO))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "id;kategorie\n1;X\n", string(data))
}

func TestOpen_NotConfigured(t *testing.T) {
	m, avail := Open(context.Background(), config.RemoteConfig{}, nil)
	require.Nil(t, m)
	require.False(t, avail.Available)
	require.Equal(t, "remote mirror not configured", avail.Message)
}

func TestOpen_DirBackend(t *testing.T) {
	root := t.TempDir()
	cfg := config.RemoteConfig{
		Backend: config.BackendDir,
		Bucket:  root,
		Folder:  "shared",
		Object:  "anotacje.csv",
		Timeout: "5s",
	}

	m, avail := Open(context.Background(), cfg, nil)
	require.True(t, avail.Available, avail.Message)
	require.NotNil(t, m)

	_, err := os.Stat(filepath.Join(root, "shared", "anotacje.csv"))
	require.NoError(t, err, "placeholder should exist on disk")
}

func TestOpen_BadBackendIsUnavailable(t *testing.T) {
	cfg := config.RemoteConfig{
		Backend: config.BackendDir,
		Bucket:  filepath.Join(t.TempDir(), "does-not-exist"),
		Object:  "anotacje.csv",
	}

	m, avail := Open(context.Background(), cfg, nil)
	require.Nil(t, m)
	require.False(t, avail.Available)
	require.Contains(t, avail.Message, "remote mirror unavailable")
}
