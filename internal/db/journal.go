package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/anno/internal/errors"
)

// Sync event kinds.
const (
	KindSaveLocal  = "save_local"
	KindSaveRemote = "save_remote"
	KindDownload   = "download"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// newID returns a ULID. Ids from one process sort in creation order.
func newID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// LabelChange records one committed change of a text's labels.
type LabelChange struct {
	ID        string   `json:"id"`
	TextID    string   `json:"text_id"`
	Labels    []string `json:"labels"`
	CreatedAt int64    `json:"created_at"`
}

// SyncEvent records a local save, remote upload or remote download.
type SyncEvent struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
	Records   int    `json:"records"`
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// InsertLabelChange journals the new labels for textID.
func InsertLabelChange(db *sql.DB, textID string, labels []string) (*LabelChange, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	now := time.Now()
	lc := &LabelChange{
		ID:        newID(now),
		TextID:    textID,
		Labels:    labels,
		CreatedAt: now.Unix(),
	}

	_, err = db.Exec(`
		INSERT INTO label_changes (id, text_id, labels_json, created_at)
		VALUES (?, ?, ?, ?)
	`, lc.ID, lc.TextID, string(data), lc.CreatedAt)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return lc, nil
}

// ListLabelChanges returns the changes for textID, newest first.
// A limit <= 0 returns all of them.
func ListLabelChanges(db *sql.DB, textID string, limit int) ([]LabelChange, error) {
	query := `
		SELECT id, text_id, labels_json, created_at
		FROM label_changes
		WHERE text_id = ?
		ORDER BY id DESC
	`
	args := []any{textID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	changes := []LabelChange{}
	for rows.Next() {
		var (
			lc         LabelChange
			labelsJSON string
		)
		if err := rows.Scan(&lc.ID, &lc.TextID, &labelsJSON, &lc.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := json.Unmarshal([]byte(labelsJSON), &lc.Labels); err != nil {
			return nil, errors.NewInternal(err)
		}
		changes = append(changes, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return changes, nil
}

// InsertSyncEvent journals ev, filling in ID and CreatedAt.
func InsertSyncEvent(db *sql.DB, ev *SyncEvent) error {
	now := time.Now()
	ev.ID = newID(now)
	ev.CreatedAt = now.Unix()

	var message sql.NullString
	if ev.Message != "" {
		message = sql.NullString{String: ev.Message, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO sync_events (id, kind, path, bytes, records, ok, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Kind, ev.Path, ev.Bytes, ev.Records, ev.OK, message, ev.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// LatestSyncEvent returns the most recent event of kind, or NOT_FOUND.
func LatestSyncEvent(db *sql.DB, kind string) (*SyncEvent, error) {
	row := db.QueryRow(`
		SELECT id, kind, path, bytes, records, ok, message, created_at
		FROM sync_events
		WHERE kind = ?
		ORDER BY id DESC
		LIMIT 1
	`, kind)

	var (
		ev      SyncEvent
		message sql.NullString
	)
	err := row.Scan(&ev.ID, &ev.Kind, &ev.Path, &ev.Bytes, &ev.Records, &ev.OK, &message, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(kind)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	ev.Message = message.String
	return &ev, nil
}
