package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := store.Set("jwt_abc123", []byte("value-1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get("jwt_abc123")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, []byte("value-1")) {
		t.Errorf("Get() = %q, want value-1", got)
	}
}

func TestFileStore_GetMissing(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_Overwrite(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	store.Set("k", []byte("first"))
	store.Set("k", []byte("second"))

	got, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Get() = %q, want second", got)
	}
}

func TestFileStore_Delete(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	store.Set("k", []byte("v"))

	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting again is fine.
	if err := store.Delete("k"); err != nil {
		t.Errorf("Delete() on missing key error = %v", err)
	}
}

func TestFileStore_SanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	key := "../../../etc/passwd"
	if err := store.Set(key, []byte("harmless")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// The value must have landed inside the store directory.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	if strings.Contains(entries[0].Name(), "/") {
		t.Errorf("escaped key still contains separator: %q", entries[0].Name())
	}

	got, err := store.Get(key)
	if err != nil || string(got) != "harmless" {
		t.Errorf("Get() = %q, %v", got, err)
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)
	store.Set("secret", []byte("v"))

	info, err := os.Stat(filepath.Join(dir, "secret"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	first, _ := NewFileStore(dir)
	first.Set("k", []byte("survives"))

	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	got, err := second.Get("k")
	if err != nil || string(got) != "survives" {
		t.Errorf("Get() = %q, %v", got, err)
	}
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()

	if _, err := store.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	store.Set("k", []byte("v"))
	got, err := store.Get("k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	// Mutating the returned slice must not affect the stored value.
	got[0] = 'x'
	again, _ := store.Get("k")
	if string(again) != "v" {
		t.Error("stored value aliased by caller mutation")
	}

	store.Delete("k")
	if _, err := store.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}
