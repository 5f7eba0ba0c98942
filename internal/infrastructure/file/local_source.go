package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// LocalSource reads import files from disk for the command line importer.
type LocalSource struct {
	BaseDir string
	MaxSize int64
}

func NewLocalSource(baseDir string, maxSize int64) *LocalSource {
	if baseDir == "" {
		baseDir = "."
	}
	return &LocalSource{BaseDir: baseDir, MaxSize: maxSize}
}

// Read returns the file's bytes and base name. Files over MaxSize fail with
// domain.ErrFileTooLarge without being read in full.
func (s *LocalSource) Read(ctx context.Context, sourcePath string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	path := sourcePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.BaseDir, sourcePath)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open file %s: %w", path, err)
	}
	defer file.Close()

	var r io.Reader = file
	if s.MaxSize > 0 {
		r = io.LimitReader(file, s.MaxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read file %s: %w", path, err)
	}
	if s.MaxSize > 0 && int64(len(data)) > s.MaxSize {
		return nil, "", fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrFileTooLarge, path, s.MaxSize)
	}
	return data, filepath.Base(path), nil
}
