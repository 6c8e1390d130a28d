package blockdev

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// SparseFileProvider creates backing stores as sparse files: the logical
// length is set by extending the file, so a fresh store occupies almost no
// space on its host filesystem regardless of its advertised size.
type SparseFileProvider struct {
	logger *slog.Logger
}

func NewSparseFileProvider() *SparseFileProvider {
	return &SparseFileProvider{logger: slog.Default()}
}

func (p *SparseFileProvider) Create(path string, sizeBytes uint64) (*BackingStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreExists, path)
		}
		return nil, fmt.Errorf("create backing file %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(sizeBytes)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("extend backing file %s to %d bytes: %w", path, sizeBytes, err)
	}

	p.logger.Debug("backing store created", "path", path, "size_bytes", sizeBytes)

	return &BackingStore{
		Path:      path,
		SizeBytes: sizeBytes,
		Ephemeral: true,
	}, nil
}

// Adopt wraps a pre-existing user file as a non-ephemeral backing store.
// Destroy will never delete it.
func (p *SparseFileProvider) Adopt(path string) (*BackingStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat backing file %s: %w", path, err)
	}

	return &BackingStore{
		Path:      path,
		SizeBytes: uint64(info.Size()),
		Ephemeral: false,
	}, nil
}

func (p *SparseFileProvider) Destroy(store *BackingStore) error {
	if !store.Ephemeral {
		p.logger.Debug("keeping non-ephemeral backing store", "path", store.Path)
		return nil
	}

	if err := os.Remove(store.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete backing file %s: %w", store.Path, err)
	}

	return nil
}
