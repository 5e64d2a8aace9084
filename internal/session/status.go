package session

import (
	"github.com/hpungsan/anno/internal/errors"
)

// Status levels.
const (
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Status is a user-visible outcome of an operation.
type Status struct {
	Level   string `json:"level"`
	Op      string `json:"op"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// OK reports whether the operation succeeded.
func (s Status) OK() bool { return s.Level == LevelSuccess }

var successMessages = map[string]string{
	"navigate":    "moved",
	"set_labels":  "selection updated",
	"save_local":  "saved locally",
	"save_remote": "saved locally and uploaded to the mirror",
	"reload":      "reloaded annotations from the mirror",
}

// Describe turns the result of op into a status line. Runtime errors end up
// here rather than propagating; a degraded mirror or a bad request is a
// warning, everything else an error.
func Describe(op string, err error) Status {
	if err == nil {
		msg, ok := successMessages[op]
		if !ok {
			msg = op + " done"
		}
		return Status{Level: LevelSuccess, Op: op, Message: msg}
	}

	aErr := errors.As(err)
	level := LevelError
	switch aErr.Code {
	case errors.ErrRemoteUnavailable, errors.ErrInvalidRequest, errors.ErrNotFound:
		level = LevelWarning
	}
	return Status{Level: level, Op: op, Message: aErr.Message, Code: string(aErr.Code)}
}
