package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/anno/internal/errors"
)

// ExportExt is the only extension accepted for exported annotation files.
const ExportExt = ".csv"

// ExportPolicy says where exports may be written.
type ExportPolicy struct {
	// Dirs are the allowed parent directories. The default exports directory comes first.
	Dirs []string

	// AllowUnsafe skips the directory restriction but not the symlink checks.
	AllowUnsafe bool
}

// ValidateExportPath checks a destination for an exported annotation file:
// no ".." components, a .csv extension, a parent that is exactly one of the
// allowed directories, and no symlink at either the parent or the file.
//
// Requiring the parent to be an allowed directory (not just under one) leaves
// no intermediate component that could be swapped for a symlink after the check.
func ValidateExportPath(path string, policy ExportPolicy) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), ExportExt) {
		return errors.NewInvalidRequest("path must have " + ExportExt + " extension")
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	parentDir := filepath.Dir(absPath)

	if !policy.AllowUnsafe {
		allowed, err := resolveDirs(policy.Dirs)
		if err != nil {
			return err
		}
		if !isDirectlyIn(parentDir, allowed) {
			return errors.NewInvalidRequest(
				fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v", allowed))
		}
		if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// resolveDirs makes the allowed directories absolute. Relative entries are
// ignored; symlinked entries are resolved so they match the real parent.
func resolveDirs(dirs []string) ([]string, error) {
	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if !filepath.IsAbs(d) {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}
	return result, nil
}

func isDirectlyIn(parentDir string, dirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range dirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

func containsTraversal(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
