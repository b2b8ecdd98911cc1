package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")

	err := AtomicWrite(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "line\n")
		return err
	})
	if err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(data) != "line\n" {
		t.Fatalf("unexpected content %q", data)
	}
	if _, err := os.Stat(path + ".partial"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("temporary file left behind")
	}
}

func TestAtomicWriteCleansUpOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	boom := errors.New("boom")

	err := AtomicWrite(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial data")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fill error, got %v", err)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("target must not exist after failed write")
	}
	if _, err := os.Stat(path + ".partial"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("temporary file must be removed after failed write")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteFileAtomic(path, []byte("key = 'value'\n")); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(data) != "key = 'value'\n" {
		t.Fatalf("unexpected content %q", data)
	}
}
