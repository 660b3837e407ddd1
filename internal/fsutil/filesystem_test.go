package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystemRoundTrip(t *testing.T) {
	osfs := OSFileSystem{}
	dir := t.TempDir()
	name := filepath.Join(dir, "sub", "out.txt")

	if err := osfs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	w, err := osfs.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !osfs.Exists(name) {
		t.Error("expected created file to exist")
	}

	data, err := osfs.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("read %q, want %q", data, "payload")
	}
}

func TestMemoryCreatePublishesOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/out/data.clog")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("Frame 1")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// buffered content is not visible until the writer closes
	data, err := mfs.ReadFile("/out/data.clog")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("read %q before Close, want empty", data)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err = mfs.ReadFile("/out/data.clog")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "Frame 1" {
		t.Errorf("read %q, want %q", data, "Frame 1")
	}
}

func TestMemoryOpen(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, _ := mfs.Create("readme.txt")
	w.Write([]byte("open me"))
	w.Close()

	f, err := mfs.Open("readme.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "open me" {
		t.Errorf("read %q, want %q", data, "open me")
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != int64(len("open me")) {
		t.Errorf("size = %d, want %d", info.Size(), len("open me"))
	}
}

func TestMemoryMissingFiles(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.Open("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open error = %v, want fs.ErrNotExist", err)
	}
	if _, err := mfs.ReadFile("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile error = %v, want fs.ErrNotExist", err)
	}
	if mfs.Exists("/nope") {
		t.Error("Exists(/nope) = true, want false")
	}
}

func TestMemoryMkdirAllCreatesParents(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.MkdirAll("/a/b/c", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, dir := range []string{"/a", "/a/b", "/a/b/c"} {
		if !mfs.Exists(dir) {
			t.Errorf("expected %s to exist", dir)
		}
	}
}

func TestMemoryPathsAreCleaned(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, _ := mfs.Create("./dirty/../clean.txt")
	w.Write([]byte("clean"))
	w.Close()

	data, err := mfs.ReadFile("clean.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "clean" {
		t.Errorf("read %q, want %q", data, "clean")
	}
}
