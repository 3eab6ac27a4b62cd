// Package storage saves converted statements on the local filesystem.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo describes a saved artifact.
type FileInfo struct {
	JobID       string
	Name        string
	Path        string
	Size        int64
	ContentType string
	SavedAt     time.Time
}

// Storage stores downloaded conversion results.
type Storage interface {
	// Save writes r under filename and returns where it ended up. Existing
	// files are never overwritten; a numeric suffix is added instead.
	Save(ctx context.Context, jobID, filename string, r io.Reader) (*FileInfo, error)

	// Open returns a reader for a previously saved or user-supplied file.
	Open(ctx context.Context, name string) (io.ReadCloser, *FileInfo, error)
}

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv"
)

// ContentType guesses the media type of a statement file from its extension.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return contentTypeXLSX
	case ".csv":
		return contentTypeCSV
	default:
		return "application/octet-stream"
	}
}
