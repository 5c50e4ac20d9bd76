package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// FileStore keeps content in a local JSON or YAML file
type FileStore struct {
	path   string
	format Format
	now    func() time.Time
}

// NewFileStore creates a store for path. The format follows the file extension.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, format: FormatFor(path), now: time.Now}
}

func (s *FileStore) Location() string {
	return s.path
}

// Load reads the file. A missing file is a NotFoundError.
func (s *FileStore) Load(ctx context.Context) ([]models.Policy, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &models.NotFoundError{Resource: "content file", Key: s.path, Cause: err}
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	policies, err := Decode(data, s.format)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.path, err)
	}
	slogcontext.FromCtx(ctx).Log(ctx, slog.LevelDebug, "loaded content",
		slog.String("realm", "state"),
		slog.String("path", s.path),
		slog.Int("policies", len(policies)),
	)
	return policies, nil
}

// Save writes policies through a temporary file renamed over the target
func (s *FileStore) Save(ctx context.Context, policies []models.Policy) error {
	data, meta, err := Encode(policies, s.format, s.now())
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".starmap-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	slogcontext.FromCtx(ctx).Log(ctx, slog.LevelDebug, "saved content",
		slog.String("realm", "state"),
		slog.String("path", s.path),
		slog.String("version", meta.Version),
		slog.Int64("size", meta.Size),
	)
	return nil
}
