package blockdev

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSparseFileProviderCreate(t *testing.T) {
	dir := t.TempDir()
	provider := NewSparseFileProvider()

	const size = 64 * 1024 * 1024
	path := filepath.Join(dir, "device.img")

	store, err := provider.Create(path, size)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !store.Ephemeral {
		t.Error("created store should be ephemeral")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("backing file missing: %v", err)
	}
	if info.Size() != size {
		t.Errorf("logical size = %d, want %d", info.Size(), size)
	}
}

func TestSparseFileProviderCreateRefusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	provider := NewSparseFileProvider()

	path := filepath.Join(dir, "device.img")
	if err := os.WriteFile(path, []byte("user data"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := provider.Create(path, 1024); !errors.Is(err, ErrStoreExists) {
		t.Fatalf("Create on existing file: got %v, want ErrStoreExists", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "user data" {
		t.Errorf("existing file was touched: %q, %v", data, err)
	}
}

func TestSparseFileProviderDestroy(t *testing.T) {
	dir := t.TempDir()
	provider := NewSparseFileProvider()

	store, err := provider.Create(filepath.Join(dir, "device.img"), 4096)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := provider.Destroy(store); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := os.Stat(store.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backing file still exists after Destroy: %v", err)
	}

	// second Destroy of the same store is success
	if err := provider.Destroy(store); err != nil {
		t.Errorf("repeated Destroy failed: %v", err)
	}
}

func TestSparseFileProviderKeepsAdoptedFiles(t *testing.T) {
	dir := t.TempDir()
	provider := NewSparseFileProvider()

	path := filepath.Join(dir, "precious.img")
	if err := os.WriteFile(path, make([]byte, 2048), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := provider.Adopt(path)
	if err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}
	if store.Ephemeral {
		t.Error("adopted store must not be ephemeral")
	}
	if store.SizeBytes != 2048 {
		t.Errorf("SizeBytes = %d, want 2048", store.SizeBytes)
	}

	if err := provider.Destroy(store); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("adopted file was deleted: %v", err)
	}
}
