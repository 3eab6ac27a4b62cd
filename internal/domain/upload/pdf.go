package upload

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount returns the number of pages of the PDF at path. It is shown next
// to the staged file and is not part of validation.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF page count: %w", err)
	}
	return n, nil
}
