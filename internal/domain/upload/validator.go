// Package upload stages and validates bank statement files before they are
// sent to the conversion service.
package upload

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxFileSize is the largest statement accepted for upload (10 MiB).
const MaxFileSize int64 = 10 * 1024 * 1024

// AllowedExtension is the only accepted file extension.
const AllowedExtension = ".pdf"

// Rejection reasons
var (
	ErrWrongType = errors.New("wrong file type")
	ErrTooLarge  = errors.New("file too large")
)

// ValidationError is returned by Validate. Message is meant for the user.
type ValidationError struct {
	Reason  error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Candidate is a file chosen by the user but not yet uploaded.
type Candidate struct {
	Name      string
	SizeBytes int64
	Extension string // lower-cased, with leading dot

	// Open returns the file content. It may be called more than once.
	Open func() (io.ReadCloser, error)
}

// NewCandidate builds a candidate from a name, size and content opener.
func NewCandidate(name string, size int64, open func() (io.ReadCloser, error)) Candidate {
	return Candidate{
		Name:      name,
		SizeBytes: size,
		Extension: strings.ToLower(filepath.Ext(name)),
		Open:      open,
	}
}

// FromFile stats path and returns a candidate that reads it lazily.
func FromFile(path string) (Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return Candidate{}, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	return NewCandidate(info.Name(), info.Size(), func() (io.ReadCloser, error) {
		return os.Open(path)
	}), nil
}

// Validate checks type and size. It has no side effects.
func Validate(c Candidate) error {
	ext := c.Extension
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(c.Name))
	}
	if ext != AllowedExtension {
		return &ValidationError{
			Reason:  ErrWrongType,
			Message: "Please upload PDF files only.",
		}
	}

	if c.SizeBytes > MaxFileSize {
		return &ValidationError{
			Reason:  ErrTooLarge,
			Message: fmt.Sprintf("File too large. Maximum size: %s", FormatSize(MaxFileSize)),
		}
	}

	return nil
}

// FormatSize renders a byte count the way the upload form shows it
// (e.g. "1.5 MB").
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	units := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}

	value := float64(bytes) / math.Pow(1024, float64(i))
	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + units[i]
}
