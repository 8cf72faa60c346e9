package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/juju/utils/v4"

	"keyforge/internal/keys"
	"keyforge/pkg/contracts/domain"
)

// FileStore persists the document as a JSON file. Saves write a temporary
// file in the same directory and rename it over the original.
type FileStore struct {
	path  string
	perm  os.FileMode
	codec codec
}

// FileOption configures a FileStore
type FileOption func(*FileStore)

// WithSealer encrypts the file at rest
func WithSealer(s *Sealer) FileOption {
	return func(f *FileStore) { f.codec.sealer = s }
}

// WithFileMode sets the permissions of the written file
func WithFileMode(perm os.FileMode) FileOption {
	return func(f *FileStore) { f.perm = perm }
}

// NewFileStore returns a store backed by path. The file need not exist yet.
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store: path is required")
	}
	s := &FileStore{path: path, perm: 0o600}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("file store: create directory: %w", err)
	}
	return s, nil
}

// Path returns the document location
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (*domain.KeyCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &domain.KeyCollection{Keys: []domain.KeyRecord{}}, nil
	}
	if err != nil {
		return nil, keys.NewStorageError("load", err)
	}
	c, err := s.codec.decode(data)
	if err != nil {
		return nil, keys.NewStorageError("load", err)
	}
	return c, nil
}

func (s *FileStore) Save(ctx context.Context, c *domain.KeyCollection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.encode(c)
	if err != nil {
		return keys.NewStorageError("save", err)
	}
	if err := utils.AtomicWriteFile(s.path, data, s.perm); err != nil {
		return keys.NewStorageError("save", err)
	}
	return nil
}
