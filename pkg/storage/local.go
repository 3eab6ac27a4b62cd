package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxNameAttempts bounds the search for a free file name.
const maxNameAttempts = 1000

// LocalStorage implements Storage using a directory on disk.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

// Save writes the artifact through a temporary file so that a failed
// download never leaves a partial spreadsheet behind.
func (s *LocalStorage) Save(ctx context.Context, jobID, filename string, r io.Reader) (*FileInfo, error) {
	safe := sanitizeFilename(filepath.Base(filename))
	if safe == "" || safe == "." {
		return nil, fmt.Errorf("invalid file name %q", filename)
	}

	tmp, err := os.CreateTemp(s.basePath, ".kontoexport-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	target, err := s.claimName(safe)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(target)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return &FileInfo{
		JobID:       jobID,
		Name:        filepath.Base(target),
		Path:        target,
		Size:        size,
		ContentType: ContentType(target),
		SavedAt:     time.Now(),
	}, nil
}

// Open resolves name relative to the storage directory unless it is absolute
// or points to an existing file.
func (s *LocalStorage) Open(ctx context.Context, name string) (io.ReadCloser, *FileInfo, error) {
	path := name
	if !filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(s.basePath, path)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("file not found: %s", name)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return f, &FileInfo{
		Name:        filepath.Base(path),
		Path:        path,
		Size:        st.Size(),
		ContentType: ContentType(path),
		SavedAt:     st.ModTime(),
	}, nil
}

// claimName reserves a path that does not exist yet by creating it
// exclusively. The placeholder is replaced by the rename in Save.
func (s *LocalStorage) claimName(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(s.basePath, candidate)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create file: %w", err)
		}
		f.Close()
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s", name)
}

// ctxReader stops copying once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
