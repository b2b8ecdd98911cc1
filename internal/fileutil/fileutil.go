// Package fileutil holds the small file-handling primitives the batch
// pipeline relies on, chiefly atomic writes so partially downloaded
// artifacts are never mistaken for complete ones.
package fileutil

import (
	"fmt"
	"io"
	"os"
)

// AtomicWrite streams fill's output into path through a temporary sibling
// file and renames it into place only after a clean close. On any failure
// the temporary file is removed and path is left untouched.
func AtomicWrite(path string, fill func(io.Writer) error) error {
	tmp := path + ".partial"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := fill(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic is AtomicWrite for in-memory content.
func WriteFileAtomic(path string, data []byte) error {
	return AtomicWrite(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
