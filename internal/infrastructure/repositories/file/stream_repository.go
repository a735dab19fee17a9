package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

// FileStreamRepository keeps the stream collection as a JSON array in a
// single file. Writes go to a temp file that is renamed over the target.
type FileStreamRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileStreamRepository(path string) (*FileStreamRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStreamRepository{path: path}, nil
}

func (r *FileStreamRepository) LoadAll(ctx context.Context) ([]*domain.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var streams []*domain.Stream
	if err := json.Unmarshal(data, &streams); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", r.path, err)
	}
	return streams, nil
}

func (r *FileStreamRepository) SaveAll(ctx context.Context, streams []*domain.Stream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if streams == nil {
		streams = []*domain.Stream{}
	}
	data, err := json.MarshalIndent(streams, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode streams: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", r.path, err)
	}
	return nil
}

var _ ports.StreamStore = (*FileStreamRepository)(nil)
