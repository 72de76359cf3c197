package registry

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/ir"
	"github.com/teranos/capgen/logger"
)

// Write stores sets at path. The file is replaced atomically, and left
// untouched when its content would not change. It reports whether the file
// was written.
func Write(path string, sets []ir.CapabilitySet, generator string) (bool, error) {
	log := logger.ComponentLogger("capgen.registry")

	if _, err := New(sets); err != nil {
		return false, err
	}
	data, err := Marshal(sets, generator)
	if err != nil {
		return false, err
	}

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		log.Debugw("Registry unchanged", logger.FieldPath, path)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, errors.Wrapf(err, "failed to create registry directory for %s", path)
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return false, err
	}

	log.Infow("Registry written", logger.FieldPath, path, logger.FieldCount, len(sets))
	return true, nil
}

// WriteFileAtomic writes data to a temp file next to path, syncs it and
// renames it into place, so a crash never leaves a partial file at path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return errors.Wrapf(err, "failed to write %s", tempPath)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return errors.Wrapf(err, "failed to sync %s", tempPath)
	}
	if err := tempFile.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tempPath)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		return errors.Wrapf(err, "failed to set mode on %s", tempPath)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", path)
	}

	success = true
	return nil
}
