package annotation

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/anno/internal/errors"
	"github.com/hpungsan/anno/internal/fsutil"
	"github.com/hpungsan/anno/internal/logging"
)

// File format constants.
const (
	fieldSeparator = ';'
	labelSeparator = ","
	headerID       = "id"
	headerLabels   = "kategorie"
)

// RowError describes a data row that was skipped while decoding.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// SaveResult reports what SaveFile wrote.
type SaveResult struct {
	Path      string `json:"path"`
	Bytes     int64  `json:"bytes"`
	Rows      int    `json:"rows"`
	Annotated int    `json:"annotated"`
}

// Decode parses an "id;kategorie" file. Malformed data rows are returned as RowErrors
// and skipped; a missing or unrecognised header is a hard error because the file
// cannot be interpreted at all. When an id repeats, the last row wins.
func Decode(r io.Reader, name string) (*Map, []RowError, error) {
	m := NewMap()
	var rowErrs []RowError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	idCol, labelCol, width := -1, -1, 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields, err := splitRow(line)

		// The first non-blank line is the header
		if idCol < 0 {
			if err != nil {
				return nil, nil, errors.NewAnnotationParse(name, lineNo, "unreadable header: "+err.Error())
			}
			for i, f := range fields {
				switch strings.ToLower(strings.TrimSpace(f)) {
				case headerID:
					idCol = i
				case headerLabels:
					labelCol = i
				}
			}
			if idCol < 0 || labelCol < 0 {
				return nil, nil, errors.NewAnnotationParse(name, lineNo,
					fmt.Sprintf("header must contain %q and %q columns", headerID, headerLabels))
			}
			width = len(fields)
			continue
		}

		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: lineNo, Reason: err.Error()})
			continue
		}
		if len(fields) > width {
			rowErrs = append(rowErrs, RowError{Line: lineNo, Reason: fmt.Sprintf("expected %d fields, got %d", width, len(fields))})
			continue
		}
		if idCol >= len(fields) || strings.TrimSpace(fields[idCol]) == "" {
			rowErrs = append(rowErrs, RowError{Line: lineNo, Reason: "missing id"})
			continue
		}

		var labels []string
		if labelCol < len(fields) {
			labels = splitLabels(fields[labelCol])
		}
		m.Set(strings.TrimSpace(fields[idCol]), labels)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.NewLocalIO("read", name, err)
	}

	return m, rowErrs, nil
}

// splitRow parses one line as a semicolon-delimited record.
// Each line is parsed on its own so a broken row cannot swallow the rows after it.
func splitRow(line string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = fieldSeparator
	cr.FieldsPerRecord = -1
	return cr.Read()
}

// splitLabels parses the comma-joined label field. Empty means no labels.
func splitLabels(field string) []string {
	field = strings.TrimSpace(field)
	if field == "" {
		return []string{}
	}
	return NormalizeLabels(strings.Split(field, labelSeparator))
}

// Encode writes the whole map, header first, one row per key in map order.
// It refuses rows that Decode would read back differently; nothing is
// written in that case.
func Encode(w io.Writer, m *Map) error {
	for _, id := range m.order {
		if err := checkRow(id, m.labels[id]); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	cw.Comma = fieldSeparator

	if err := cw.Write([]string{headerID, headerLabels}); err != nil {
		return err
	}
	for _, id := range m.order {
		if err := cw.Write([]string{id, strings.Join(m.labels[id], labelSeparator)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// checkRow rejects an id or label list that would not survive a save and reload.
func checkRow(id string, labels []string) error {
	if id == "" || id != strings.TrimSpace(id) || strings.ContainsAny(id, "\r\n") {
		return errors.NewInvalidRequest(fmt.Sprintf("id %q cannot be stored", id))
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" || l != strings.TrimSpace(l) {
			return errors.NewInvalidRequest(fmt.Sprintf("id %s: label %q is empty or padded", id, l))
		}
		if err := ValidateLabel(l); err != nil {
			return errors.NewInvalidRequest(fmt.Sprintf("id %s: %v", id, err))
		}
		if seen[l] {
			return errors.NewInvalidRequest(fmt.Sprintf("id %s: label %q repeats", id, l))
		}
		seen[l] = true
	}
	return nil
}

// Marshal returns the encoded file contents.
func Marshal(m *Map) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadFile reads the annotation file at path. A missing file is the normal
// "nothing annotated yet" state and yields an empty map. Malformed rows are
// logged and skipped.
func LoadFile(path string, logger *zap.Logger) (*Map, error) {
	logger = logging.OrNop(logger)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("annotation file absent, starting empty", zap.String("path", path))
			return NewMap(), nil
		}
		return nil, errors.NewLocalIO("open", path, err)
	}
	defer f.Close()

	m, rowErrs, err := Decode(f, path)
	if err != nil {
		return nil, err
	}
	for _, re := range rowErrs {
		logger.Warn("skipping malformed annotation row",
			zap.String("path", path),
			zap.Int("line", re.Line),
			zap.String("reason", re.Reason))
	}

	logger.Debug("annotations loaded",
		zap.String("path", path),
		zap.Int("records", m.Len()),
		zap.Int("skipped", len(rowErrs)))
	return m, nil
}

// SaveFile rewrites the whole annotation file. Every save replaces the file
// atomically; nothing is appended.
func SaveFile(path string, m *Map) (*SaveResult, error) {
	data, err := Marshal(m)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewLocalIO("encode", path, err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return nil, errors.NewLocalIO("write", path, err)
	}
	return &SaveResult{
		Path:      path,
		Bytes:     int64(len(data)),
		Rows:      m.Len(),
		Annotated: m.CountAnnotated(),
	}, nil
}
