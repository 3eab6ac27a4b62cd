package upload

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(name string, size int64) Candidate {
	return NewCandidate(name, size, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("%PDF-1.4")), nil
	})
}

func TestValidate_Extension(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantErr error
	}{
		{"lower case pdf", "statement.pdf", nil},
		{"upper case pdf", "STATEMENT.PDF", nil},
		{"mixed case pdf", "Kontoauszug.Pdf", nil},
		{"spreadsheet", "statement.xlsx", ErrWrongType},
		{"no extension", "statement", ErrWrongType},
		{"pdf in the middle", "statement.pdf.exe", ErrWrongType},
		{"dot pdf only in name", "pdf", ErrWrongType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(candidate(tt.file, 1024))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.NotEmpty(t, vErr.Message)
		})
	}
}

func TestValidate_Size(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		wantErr error
	}{
		{"empty file", 0, nil},
		{"small file", 2048, nil},
		{"exactly at the limit", MaxFileSize, nil},
		{"one byte over", MaxFileSize + 1, ErrTooLarge},
		{"far over", 50 * 1024 * 1024, ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(candidate("statement.pdf", tt.size))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "10 MB")
		})
	}
}

func TestValidate_TypeCheckedBeforeSize(t *testing.T) {
	err := Validate(candidate("huge.docx", MaxFileSize*2))
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Auszug.PDF")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o600))

	c, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Auszug.PDF", c.Name)
	assert.Equal(t, int64(13), c.SizeBytes)
	assert.Equal(t, ".pdf", c.Extension)
	assert.NoError(t, Validate(c))

	rc, err := c.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))

	_, err = FromFile(dir)
	assert.Error(t, err, "directories are rejected")

	_, err = FromFile(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}

func TestPageCount_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o600))

	_, err := PageCount(path)
	assert.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{MaxFileSize, "10 MB"},
		{1288490189, "1.2 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSize(tt.bytes))
		})
	}
}
