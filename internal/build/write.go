package build

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
)

// writePage stores data at rel under dir via temp file + rename. It reports
// false without touching the file when the content on disk is identical.
func writePage(dir, rel string, data []byte) (bool, error) {
	target, err := outputFile(dir, rel)
	if err != nil {
		return false, err
	}
	// #nosec G304 -- target is confined to the output directory
	if existing, err := os.ReadFile(target); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return false, fsError(err, "create page directory", rel)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return false, fsError(err, "create temp page", rel)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return false, fsError(err, "write temp page", rel)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return false, fsError(err, "close temp page", rel)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return false, fsError(err, "rename page", rel)
	}
	return true, nil
}

// prune removes stale pages and then any directories left empty, up to dir.
func prune(dir string, stale []string) (int, error) {
	removed := 0
	for _, rel := range stale {
		target, err := outputFile(dir, rel)
		if err != nil {
			return removed, err
		}
		if err := os.Remove(target); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fsError(err, "remove stale page", rel)
		}
		removed++
		removeEmptyParents(dir, filepath.Dir(target))
	}
	return removed, nil
}

func removeEmptyParents(root, d string) {
	root = filepath.Clean(root)
	for d = filepath.Clean(d); d != root && strings.HasPrefix(d, root+string(filepath.Separator)); d = filepath.Dir(d) {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(d); err != nil {
			return
		}
	}
}

// outputFile maps a POSIX output path to a file under dir, refusing
// anything that would escape it.
func outputFile(dir, rel string) (string, error) {
	clean := path.Clean(rel)
	if rel == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.InternalError("output path escapes the output directory").
			WithContext("path", rel).
			Build()
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

func fsError(err error, msg, rel string) error {
	return errors.WrapError(err, errors.CategoryFileSystem, msg).
		Fatal().
		WithContext("path", rel).
		Build()
}
