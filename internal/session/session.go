// Package session owns the annotation workflow: the cursor over the corpus,
// staged label selections, the in-memory annotation map, and the local and
// remote copies of the annotation file.
//
// A Controller is a single logical actor. It does no locking; presentation
// layers serialise calls.
package session

import (
	"context"
	"database/sql"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/annotation"
	"github.com/hpungsan/anno/internal/config"
	"github.com/hpungsan/anno/internal/corpus"
	"github.com/hpungsan/anno/internal/db"
	"github.com/hpungsan/anno/internal/errors"
	"github.com/hpungsan/anno/internal/fsutil"
	"github.com/hpungsan/anno/internal/logging"
	"github.com/hpungsan/anno/internal/remote"
)

// Options configures New.
type Options struct {
	CorpusPath       string
	CategoriesPath   string
	AnnotationsPath  string
	StrictVocabulary bool

	// Remote configures the mirror. Ignored when Backend is set.
	Remote config.RemoteConfig

	// Backend replaces the backend built from Remote. Folder, Object and
	// Timeout are still taken from Remote.
	Backend remote.Backend

	// Corpus is a preloaded corpus; CorpusPath and CategoriesPath are then unused.
	Corpus *corpus.Corpus

	// Journal is optional. Journal failures are logged and never fail an operation.
	Journal *sql.DB

	Logger *zap.Logger
}

// OptionsFromConfig maps a loaded config onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CorpusPath:       cfg.CorpusPath,
		CategoriesPath:   cfg.CategoriesPath,
		AnnotationsPath:  cfg.AnnotationsPath,
		StrictVocabulary: cfg.StrictVocabulary,
		Remote:           cfg.Remote,
	}
}

// Controller is the explicit session context.
type Controller struct {
	id        string
	corpus    *corpus.Corpus
	store     *annotation.Map
	localPath string
	strict    bool

	mirror       *remote.Mirror
	availability remote.Availability

	journal *sql.DB
	logger  *zap.Logger

	cursor int
	dirty  bool

	// staged holds selections made in the UI but not yet captured into store.
	staged map[string][]string
}

// New runs the one-time startup sequence: load corpus and categories, resolve
// the mirror, download from it only when no local file exists, load the local
// annotation file, and place the cursor on the first unannotated text.
//
// Corpus, category and annotation-header errors abort startup. An unreachable
// mirror does not; the session runs local-only.
func New(ctx context.Context, opts Options) (*Controller, error) {
	logger := logging.OrNop(opts.Logger)
	sessionID := uuid.NewString()
	logger = logger.With(zap.String("session", sessionID))

	c := opts.Corpus
	if c == nil {
		var err error
		c, err = corpus.Load(opts.CorpusPath, opts.CategoriesPath)
		if err != nil {
			return nil, err
		}
	}
	if dups := c.DuplicateIDs(); len(dups) > 0 {
		logger.Warn("corpus contains duplicate ids; labels are shared between them", zap.Strings("ids", dups))
	}

	localPath := opts.AnnotationsPath
	if localPath == "" {
		localPath = config.DefaultConfig().AnnotationsPath
	}

	ctl := &Controller{
		id:        sessionID,
		corpus:    c,
		localPath: localPath,
		strict:    opts.StrictVocabulary,
		journal:   opts.Journal,
		logger:    logger,
		staged:    make(map[string][]string),
	}

	ctl.mirror, ctl.availability = openMirror(ctx, opts, logger)

	if ctl.mirror != nil {
		if !fsutil.Exists(localPath) {
			n, err := ctl.mirror.Download(ctx, localPath)
			ctl.journalSync(db.KindDownload, localPath, n, 0, err)
			if err != nil {
				logger.Warn("initial download from mirror failed; starting empty", zap.Error(err))
			}
		}
	}

	store, err := annotation.LoadFile(localPath, logger)
	if err != nil {
		return nil, err
	}
	ctl.store = store
	ctl.cursor = ctl.firstUnannotated()

	logger.Info("session started",
		zap.Int("texts", c.Len()),
		zap.Int("categories", len(c.Categories)),
		zap.Int("records", store.Len()),
		zap.Int("annotated", store.CountAnnotated()),
		zap.Int("cursor", ctl.cursor),
		zap.Bool("remote", ctl.mirror != nil))
	return ctl, nil
}

func openMirror(ctx context.Context, opts Options, logger *zap.Logger) (*remote.Mirror, remote.Availability) {
	if opts.Backend == nil {
		return remote.Open(ctx, opts.Remote, logger)
	}
	name := opts.Remote.Object
	if name == "" {
		name = config.DefaultConfig().Remote.Object
	}
	return remote.OpenBackend(ctx, opts.Backend, opts.Remote.Folder, name, opts.Remote.TimeoutDuration(), logger)
}

// firstUnannotated returns the index of the first text without labels, or 0.
func (s *Controller) firstUnannotated() int {
	for i, t := range s.corpus.Texts {
		if !s.store.IsAnnotated(t.ID) {
			return i
		}
	}
	return 0
}

// Corpus returns the loaded corpus.
func (s *Controller) Corpus() *corpus.Corpus { return s.corpus }

// Categories returns the sorted label vocabulary.
func (s *Controller) Categories() []string {
	return append([]string{}, s.corpus.Categories...)
}

// Cursor returns the current index.
func (s *Controller) Cursor() int { return s.cursor }

// Total returns the number of texts.
func (s *Controller) Total() int { return s.corpus.Len() }

// Dirty reports whether captured edits have not been saved locally yet.
func (s *Controller) Dirty() bool { return s.dirty }

// Pending reports whether staged selections are waiting to be captured.
func (s *Controller) Pending() bool { return len(s.staged) > 0 }

// LocalPath returns the local annotation file path.
func (s *Controller) LocalPath() string { return s.localPath }

// Availability returns the mirror status.
func (s *Controller) Availability() remote.Availability { return s.availability }

// LocalFile returns the current bytes of the local annotation file.
func (s *Controller) LocalFile() ([]byte, error) {
	data, err := os.ReadFile(s.localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileMissing(s.localPath)
		}
		return nil, errors.NewLocalIO("read", s.localPath, err)
	}
	return data, nil
}

func (s *Controller) journalSync(kind, path string, bytes int64, records int, err error) {
	if s.journal == nil {
		return
	}
	ev := &db.SyncEvent{Kind: kind, Path: path, Bytes: bytes, Records: records, OK: err == nil}
	if err != nil {
		ev.Message = err.Error()
	}
	if jerr := db.InsertSyncEvent(s.journal, ev); jerr != nil {
		s.logger.Warn("journal write failed", zap.String("kind", kind), zap.Error(jerr))
	}
}
