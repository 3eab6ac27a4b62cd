package terminal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/FACorreiaa/kontoexport/internal/domain/workflow"
)

// ParseEdit reads an edit written as "<row>:<Header>=<value>". Rows are
// 1-based as printed by WriteTable. The value may be empty and may contain
// '='. A '=' inside the header is written as `\=`.
func ParseEdit(s string) (workflow.EditCell, error) {
	target, value, ok := cutUnescaped(s, '=')
	if !ok {
		return workflow.EditCell{}, fmt.Errorf("edit %q: expected <row>:<column>=<value>", s)
	}

	rowText, header, ok := strings.Cut(target, ":")
	if !ok {
		return workflow.EditCell{}, fmt.Errorf("edit %q: expected <row>:<column>=<value>", s)
	}

	row, err := strconv.Atoi(strings.TrimSpace(rowText))
	if err != nil || row < 1 {
		return workflow.EditCell{}, fmt.Errorf("edit %q: row must be a positive number", s)
	}

	header = strings.TrimSpace(strings.ReplaceAll(header, `\=`, "="))
	if header == "" {
		return workflow.EditCell{}, fmt.Errorf("edit %q: column is empty", s)
	}

	return workflow.EditCell{Row: row - 1, Header: header, Value: value}, nil
}

// cutUnescaped splits s around the first sep not preceded by a backslash.
func cutUnescaped(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == sep {
			i++
			continue
		}
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
