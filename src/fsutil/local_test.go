package fsutil_test

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"pdfqa/src/fsutil"
)

func TestLocalFileStore(t *testing.T) {
	dir := t.TempDir()
	fs := fsutil.NewLocalFileStore()

	path := filepath.Join(dir, "pdf", "a.pdf")
	n, err := fs.WriteFile(path, strings.NewReader("first"))
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if n != 5 {
		t.Errorf("WriteFile() wrote %d bytes, want 5", n)
	}

	// same name overwrites
	if _, err := fs.WriteFile(path, strings.NewReader("2nd")); err != nil {
		t.Fatalf("WriteFile() overwrite error = %v", err)
	}

	got, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "2nd" {
		t.Errorf("ReadFile() = %q, want %q", got, "2nd")
	}

	rc, err := fs.ReadFileAsStream(path)
	if err != nil {
		t.Fatalf("ReadFileAsStream() error = %v", err)
	}
	streamed, _ := io.ReadAll(rc)
	rc.Close()
	if string(streamed) != "2nd" {
		t.Errorf("ReadFileAsStream() = %q, want %q", streamed, "2nd")
	}

	if err := fs.MakeDirectory(filepath.Join(dir, "pdf", "nested")); err != nil {
		t.Fatalf("MakeDirectory() error = %v", err)
	}

	count, size, err := fs.GetFileStats(filepath.Join(dir, "pdf"))
	if err != nil {
		t.Fatalf("GetFileStats() error = %v", err)
	}
	if count != 1 || size != 3 {
		t.Errorf("GetFileStats() = (%d, %d), want (1, 3)", count, size)
	}
}

func TestGetFileStatsMissingDir(t *testing.T) {
	fs := fsutil.NewLocalFileStore()
	if _, _, err := fs.GetFileStats(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("GetFileStats() on missing dir returned nil error")
	}
}

func TestChecksum(t *testing.T) {
	fs := fsutil.NewLocalFileStore()
	path := filepath.Join(t.TempDir(), "a.pdf")
	if _, err := fs.WriteFile(path, strings.NewReader("abc")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := fsutil.Checksum(fs, path)
	if err != nil {
		t.Fatalf("Checksum() error = %v", err)
	}
	if want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"; got != want {
		t.Errorf("Checksum() = %s, want %s", got, want)
	}

	if _, err := fsutil.Checksum(fs, filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("Checksum(missing) error = nil, want error")
	}
}
