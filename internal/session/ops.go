package session

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/annotation"
	"github.com/hpungsan/anno/internal/corpus"
	"github.com/hpungsan/anno/internal/db"
	"github.com/hpungsan/anno/internal/errors"
	"github.com/hpungsan/anno/internal/remote"
)

// Record is a text together with its effective labels.
type Record struct {
	Index  int      `json:"index"`
	ID     string   `json:"id"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
	Staged bool     `json:"staged"`
}

// NavigateOutput is the result of Navigate and Goto.
type NavigateOutput struct {
	From     int  `json:"from"`
	Index    int  `json:"index"`
	Total    int  `json:"total"`
	Moved    bool `json:"moved"`
	Captured bool `json:"captured"`
}

// SaveLocalOutput is the result of SaveLocal.
type SaveLocalOutput struct {
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
	Records   int    `json:"records"`
	Annotated int    `json:"annotated"`
	Captured  bool   `json:"captured"`
}

// SaveRemoteOutput is the result of SaveRemote. Local is set whenever the
// local save succeeded, even if the upload did not.
type SaveRemoteOutput struct {
	Local  *SaveLocalOutput `json:"local"`
	Remote string           `json:"remote,omitempty"`
	Bytes  int64            `json:"bytes"`
}

// ReloadOutput is the result of ReloadFromRemote.
type ReloadOutput struct {
	Remote    string `json:"remote"`
	Bytes     int64  `json:"bytes"`
	Records   int    `json:"records"`
	Annotated int    `json:"annotated"`

	// DiscardedStaged counts staged selections that were dropped.
	DiscardedStaged int `json:"discarded_staged"`
	// DiscardedDirty is true when captured but unsaved edits were dropped.
	DiscardedDirty bool `json:"discarded_dirty"`
	// Changed is false when the mirror copy matched the annotations held in memory.
	Changed bool `json:"changed"`
}

// Progress reports how much of the corpus is annotated.
type Progress struct {
	Annotated int     `json:"annotated"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// Info is the data shown in the debug panel.
type Info struct {
	SessionID    string              `json:"session_id"`
	LocalPath    string              `json:"local_path"`
	LocalExists  bool                `json:"local_exists"`
	LocalSize    int64               `json:"local_size,omitempty"`
	LocalModTime *time.Time          `json:"local_mod_time,omitempty"`
	Remote       remote.Availability `json:"remote"`
	Dirty        bool                `json:"dirty"`
	Staged       int                 `json:"staged"`
	Cursor       int                 `json:"cursor"`
	Total        int                 `json:"total"`
	LastSave     *db.SyncEvent       `json:"last_save,omitempty"`
	LastUpload   *db.SyncEvent       `json:"last_upload,omitempty"`
}

// Current returns the text under the cursor.
func (s *Controller) Current() (corpus.Text, error) {
	if s.corpus.Len() == 0 {
		return corpus.Text{}, errors.NewNotFound("corpus is empty")
	}
	return s.corpus.Texts[s.cursor], nil
}

// CurrentRecord returns the text under the cursor with its effective labels.
func (s *Controller) CurrentRecord() (*Record, error) {
	t, err := s.Current()
	if err != nil {
		return nil, err
	}
	_, staged := s.staged[t.ID]
	return &Record{
		Index:  s.cursor,
		ID:     t.ID,
		Body:   t.Body,
		Labels: s.labelsFor(t.ID),
		Staged: staged,
	}, nil
}

// CurrentLabels returns the staged selection for the current text if there is
// one, otherwise the stored labels. Never nil.
func (s *Controller) CurrentLabels() []string {
	t, err := s.Current()
	if err != nil {
		return []string{}
	}
	return s.labelsFor(t.ID)
}

func (s *Controller) labelsFor(id string) []string {
	if sel, ok := s.staged[id]; ok {
		return append([]string{}, sel...)
	}
	if labels := s.store.Get(id); labels != nil {
		return labels
	}
	return []string{}
}

// StoredLabels returns what the annotation map holds for id, ignoring staged selections.
func (s *Controller) StoredLabels(id string) []string {
	if labels := s.store.Get(id); labels != nil {
		return labels
	}
	return []string{}
}

// SetLabels stages labels as the selection for each id. Nothing reaches the
// annotation map until the next Capture (navigate and save capture first).
func (s *Controller) SetLabels(ids []string, labels []string) error {
	if len(ids) == 0 {
		return errors.NewInvalidRequest("at least one text id is required")
	}
	for _, id := range ids {
		if _, ok := s.corpus.Index(id); !ok {
			return errors.NewNotFound(id)
		}
	}

	labels = annotation.NormalizeLabels(labels)
	var unknown []string
	for _, l := range labels {
		if err := annotation.ValidateLabel(l); err != nil {
			return errors.NewInvalidRequest(err.Error())
		}
		if !s.corpus.IsCategory(l) {
			unknown = append(unknown, l)
		}
	}
	if len(unknown) > 0 {
		if s.strict {
			return errors.NewInvalidRequest(fmt.Sprintf("unknown categories: %s", strings.Join(unknown, ", ")))
		}
		s.logger.Warn("labels outside the category vocabulary", zap.Strings("labels", unknown), zap.Strings("ids", ids))
	}

	for _, id := range ids {
		s.staged[id] = append([]string{}, labels...)
	}
	return nil
}

// Capture moves staged selections into the annotation map. Only selections
// that differ from the stored labels are written (an absent entry equals an
// empty one), so an unchanged selection leaves the dirty flag alone.
// Reports whether anything changed.
func (s *Controller) Capture() bool {
	if len(s.staged) == 0 {
		return false
	}

	ids := make([]string, 0, len(s.staged))
	for id := range s.staged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := s.corpus.Index(ids[i])
		b, _ := s.corpus.Index(ids[j])
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})

	changed := false
	for _, id := range ids {
		sel := s.staged[id]
		if annotation.SameLabels(s.store.Get(id), sel) {
			continue
		}
		s.store.Set(id, sel)
		changed = true
		s.logger.Debug("captured selection", zap.String("id", id), zap.Strings("labels", sel))
		if s.journal != nil {
			if _, err := db.InsertLabelChange(s.journal, id, sel); err != nil {
				s.logger.Warn("journal write failed", zap.String("id", id), zap.Error(err))
			}
		}
	}

	clear(s.staged)
	if changed {
		s.dirty = true
	}
	return changed
}

// Navigate captures, then moves the cursor by delta. Moves past either end
// are clamped, so Navigate(+1) on the last text is a no-op.
func (s *Controller) Navigate(delta int) NavigateOutput {
	return s.Goto(s.cursor + delta)
}

// Goto captures, then moves the cursor to index clamped to [0, total-1].
func (s *Controller) Goto(index int) NavigateOutput {
	captured := s.Capture()

	from := s.cursor
	total := s.corpus.Len()
	if total > 0 {
		s.cursor = max(0, min(index, total-1))
	}

	return NavigateOutput{
		From:     from,
		Index:    s.cursor,
		Total:    total,
		Moved:    s.cursor != from,
		Captured: captured,
	}
}

// GotoID captures, then moves the cursor to the first text with id.
func (s *Controller) GotoID(id string) (NavigateOutput, error) {
	idx, ok := s.corpus.Index(id)
	if !ok {
		return NavigateOutput{}, errors.NewNotFound(id)
	}
	return s.Goto(idx), nil
}

// SaveLocal captures, then rewrites the whole local annotation file. On
// failure the in-memory state is kept so the save can be retried.
func (s *Controller) SaveLocal(_ context.Context) (*SaveLocalOutput, error) {
	captured := s.Capture()

	res, err := annotation.SaveFile(s.localPath, s.store)
	if err != nil {
		s.journalSync(db.KindSaveLocal, s.localPath, 0, s.store.Len(), err)
		s.logger.Error("local save failed", zap.String("path", s.localPath), zap.Error(err))
		return nil, err
	}
	s.dirty = false
	s.journalSync(db.KindSaveLocal, res.Path, res.Bytes, res.Rows, nil)

	s.logger.Info("saved locally",
		zap.String("path", res.Path),
		zap.Int64("bytes", res.Bytes),
		zap.Int("records", res.Rows),
		zap.Int("annotated", res.Annotated))

	return &SaveLocalOutput{
		Path:      res.Path,
		Bytes:     res.Bytes,
		Records:   res.Rows,
		Annotated: res.Annotated,
		Captured:  captured,
	}, nil
}

// SaveRemote saves locally, then uploads the local file. A failed upload does
// not undo the local save.
func (s *Controller) SaveRemote(ctx context.Context) (*SaveRemoteOutput, error) {
	local, err := s.SaveLocal(ctx)
	if err != nil {
		return nil, err
	}
	out := &SaveRemoteOutput{Local: local}

	if s.mirror == nil {
		return out, errors.NewRemoteUnavailable(s.unavailableReason())
	}

	n, err := s.mirror.Upload(ctx, s.localPath)
	s.journalSync(db.KindSaveRemote, s.mirror.Key(), n, local.Records, err)
	if err != nil {
		s.logger.Error("upload failed", zap.String("mirror", s.mirror.String()), zap.Error(err))
		return out, err
	}

	out.Remote = s.mirror.String()
	out.Bytes = n
	return out, nil
}

// ReloadFromRemote overwrites the local file with the mirror copy and reloads
// the annotation map from it, discarding every unsaved edit. It only runs
// with confirm set.
func (s *Controller) ReloadFromRemote(ctx context.Context, confirm bool) (*ReloadOutput, error) {
	if !confirm {
		return nil, errors.NewInvalidRequest("reloading from the mirror discards unsaved edits; confirm to proceed")
	}
	if s.mirror == nil {
		return nil, errors.NewRemoteUnavailable(s.unavailableReason())
	}

	discardedStaged := 0
	for id, sel := range s.staged {
		if !annotation.SameLabels(s.store.Get(id), sel) {
			discardedStaged++
		}
	}
	discardedDirty := s.dirty

	n, err := s.mirror.Download(ctx, s.localPath)
	s.journalSync(db.KindDownload, s.localPath, n, 0, err)
	if err != nil {
		return nil, err
	}

	store, err := annotation.LoadFile(s.localPath, s.logger)
	if err != nil {
		// The file on disk no longer matches memory; keep memory and let the user save it back.
		s.dirty = true
		return nil, err
	}

	changed := !store.Equal(s.store)
	s.store = store
	clear(s.staged)
	s.dirty = false
	if total := s.corpus.Len(); total > 0 && s.cursor > total-1 {
		s.cursor = total - 1
	}

	s.logger.Warn("reloaded annotations from mirror",
		zap.String("mirror", s.mirror.String()),
		zap.Int64("bytes", n),
		zap.Int("records", store.Len()),
		zap.Int("discarded_staged", discardedStaged),
		zap.Bool("discarded_dirty", discardedDirty),
		zap.Bool("changed", changed))

	return &ReloadOutput{
		Remote:          s.mirror.String(),
		Bytes:           n,
		Records:         store.Len(),
		Annotated:       store.CountAnnotated(),
		DiscardedStaged: discardedStaged,
		DiscardedDirty:  discardedDirty,
		Changed:         changed,
	}, nil
}

func (s *Controller) unavailableReason() string {
	return strings.TrimPrefix(s.availability.Message, "remote mirror unavailable: ")
}

// Progress counts annotated entries against the corpus size.
func (s *Controller) Progress() Progress {
	p := Progress{
		Annotated: s.store.CountAnnotated(),
		Total:     s.corpus.Len(),
	}
	if p.Total > 0 {
		p.Percent = min(100, float64(p.Annotated)/float64(p.Total)*100)
	}
	return p
}

// Info collects debug-panel data. Journal lookups are best-effort.
func (s *Controller) Info() Info {
	info := Info{
		SessionID: s.id,
		LocalPath: s.localPath,
		Remote:    s.availability,
		Dirty:     s.dirty,
		Staged:    len(s.staged),
		Cursor:    s.cursor,
		Total:     s.corpus.Len(),
	}
	if fi, err := os.Stat(s.localPath); err == nil {
		mt := fi.ModTime()
		info.LocalExists = true
		info.LocalSize = fi.Size()
		info.LocalModTime = &mt
	}
	if s.journal != nil {
		if ev, err := db.LatestSyncEvent(s.journal, db.KindSaveLocal); err == nil {
			info.LastSave = ev
		}
		if ev, err := db.LatestSyncEvent(s.journal, db.KindSaveRemote); err == nil {
			info.LastUpload = ev
		}
	}
	return info
}

// History returns journalled label changes for id, newest first.
func (s *Controller) History(id string, limit int) ([]db.LabelChange, error) {
	if s.journal == nil {
		return nil, errors.NewInvalidRequest("journal is disabled")
	}
	if _, ok := s.corpus.Index(id); !ok {
		return nil, errors.NewNotFound(id)
	}
	return db.ListLabelChanges(s.journal, id, limit)
}

// Export captures, then writes the annotation map to dest. The local file is
// untouched; capturing may still set the dirty flag.
func (s *Controller) Export(dest string) (*annotation.SaveResult, error) {
	s.Capture()
	return annotation.SaveFile(dest, s.store)
}
