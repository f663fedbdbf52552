package surgical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository keeps each record as an indented JSON file in a directory.
type FileRepository struct {
	mu  sync.Mutex
	dir string
}

func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileRepository{dir: dir}, nil
}

// Ping checks that the data directory is still reachable.
func (r *FileRepository) Ping(ctx context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return fmt.Errorf("stat data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", r.dir)
	}
	return nil
}

func (r *FileRepository) path(record string) string {
	return filepath.Join(r.dir, record+".json")
}

func (r *FileRepository) LoadCases(ctx context.Context) ([]Case, error) {
	raw, err := r.read(RecordCases)
	if err != nil || raw == nil {
		return nil, err
	}

	var cases []Case
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("decode %s: %w", RecordCases, err)
	}
	return cases, nil
}

func (r *FileRepository) SaveCases(ctx context.Context, cases []Case) error {
	if cases == nil {
		cases = []Case{}
	}
	return r.write(RecordCases, cases)
}

func (r *FileRepository) LoadSettings(ctx context.Context) ([]byte, error) {
	return r.read(RecordSettings)
}

func (r *FileRepository) SaveSettings(ctx context.Context, s Settings) error {
	return r.write(RecordSettings, s)
}

func (r *FileRepository) read(record string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := os.ReadFile(r.path(record))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", record, err)
	}
	return raw, nil
}

// write replaces the record atomically through a temp file in the same dir.
func (r *FileRepository) write(record string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(r.dir, record+"-*.json")
	if err != nil {
		return fmt.Errorf("create temp %s: %w", record, err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode %s: %w", record, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp %s: %w", record, err)
	}

	if err := os.Rename(tmp.Name(), r.path(record)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", record, err)
	}

	return nil
}
