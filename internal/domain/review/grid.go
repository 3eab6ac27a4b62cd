// Package review turns a converted statement into an editable table and
// serializes the user's corrections for resubmission.
package review

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

// ErrNoDataRows is reported when the artifact has a header row but nothing below it.
var ErrNoDataRows = errors.New("no data rows found")

// ParseError means the artifact could not be read. Load still returns the
// placeholder grid alongside it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not read conversion result: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Table is a plain copy of the grid contents. Headers define column identity
// and order; every row holds a value for every header.
type Table struct {
	Headers []string
	Rows    []map[string]string
}

// Grid is the editable review table.
type Grid struct {
	mu          sync.RWMutex
	table       Table
	placeholder bool
}

// New builds a grid from a header row and raw data rows. Missing cells become
// empty strings and cells beyond the header row are dropped.
func New(headers []string, rows [][]string) *Grid {
	hs := normalizeHeaders(headers)
	out := make([]map[string]string, 0, len(rows))
	for _, raw := range rows {
		row := make(map[string]string, len(hs))
		for i, h := range hs {
			if i < len(raw) {
				row[h] = raw[i]
			} else {
				row[h] = ""
			}
		}
		out = append(out, row)
	}
	return &Grid{table: Table{Headers: hs, Rows: out}}
}

// Load parses an xlsx or csv artifact. The first row becomes the headers.
// When the data cannot be read or has no data rows, the placeholder grid is
// returned together with a *ParseError.
func Load(data []byte) (*Grid, error) {
	rows, err := readRows(data)
	if err != nil {
		return Placeholder(), &ParseError{Err: err}
	}

	if len(rows) == 0 {
		return Placeholder(), &ParseError{Err: errors.New("artifact is empty")}
	}

	body := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		if isBlank(r) {
			continue
		}
		body = append(body, r)
	}
	if len(body) == 0 {
		return Placeholder(), &ParseError{Err: ErrNoDataRows}
	}

	return New(rows[0], body), nil
}

func readRows(data []byte) ([][]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("artifact is empty")
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return readXLSX(data)
	}
	return readCSV(data)
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("no sheets in workbook")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	reader := gocsv.LazyCSVReader(bytes.NewReader(data))
	if r, ok := reader.(*csv.Reader); ok {
		r.Comma = sniffDelimiter(data)
		r.FieldsPerRecord = -1
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return rows, nil
}

// sniffDelimiter picks ';' when the header line uses it more than ','.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// normalizeHeaders trims names, names empty columns and suffixes duplicates
// so that every header is a distinct key.
func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s (%d)", name, n+1)
		}
		seen[name]++
		out[i] = name
	}
	return out
}

// Headers returns the column names in order.
func (g *Grid) Headers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, len(g.table.Headers))
	copy(out, g.table.Headers)
	return out
}

// Len returns the number of data rows.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.table.Rows)
}

// IsPlaceholder reports whether the grid holds synthetic sample data.
func (g *Grid) IsPlaceholder() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.placeholder
}

// ApplyEdit sets one cell. It returns false and changes nothing when the row
// is out of bounds or the header is not a column of the grid.
func (g *Grid) ApplyEdit(row int, header, value string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if row < 0 || row >= len(g.table.Rows) {
		return false
	}
	if _, ok := g.table.Rows[row][header]; !ok {
		return false
	}
	g.table.Rows[row][header] = value
	return true
}

// Serialize returns the rows for submission. Values are passed through as
// entered; amounts stay free text.
func (g *Grid) Serialize() []map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyRows(g.table.Rows)
}

// Snapshot returns a deep copy of the table for renderers.
func (g *Grid) Snapshot() Table {
	g.mu.RLock()
	defer g.mu.RUnlock()

	headers := make([]string, len(g.table.Headers))
	copy(headers, g.table.Headers)
	return Table{Headers: headers, Rows: copyRows(g.table.Rows)}
}

func copyRows(rows []map[string]string) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i, r := range rows {
		c := make(map[string]string, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
