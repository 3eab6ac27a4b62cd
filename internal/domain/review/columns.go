package review

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// ColumnKind classifies a column for presentation.
type ColumnKind int

const (
	ColumnText ColumnKind = iota
	// ColumnFlow holds money moving in or out (Soll/Haben, debit/credit).
	ColumnFlow
	// ColumnBalance holds a running balance (Saldo).
	ColumnBalance
)

// Keyword order matters: indices below flowKeywords are flow columns.
var numericKeywords = []string{"soll", "haben", "debit", "credit", "saldo", "balance"}

const flowKeywords = 4

var keywordMatcher = ahocorasick.NewStringMatcher(numericKeywords)

// Classify returns the kind of a header by keyword search on its lower-cased text.
func Classify(header string) ColumnKind {
	hits := keywordMatcher.MatchThreadSafe([]byte(strings.ToLower(header)))
	if len(hits) == 0 {
		return ColumnText
	}
	for _, idx := range hits {
		if idx < flowKeywords {
			return ColumnFlow
		}
	}
	return ColumnBalance
}

// IsOutgoingColumn reports whether a flow column lists money leaving the
// account (Soll, debit).
func IsOutgoingColumn(header string) bool {
	for _, idx := range keywordMatcher.MatchThreadSafe([]byte(strings.ToLower(header))) {
		if numericKeywords[idx] == "soll" || numericKeywords[idx] == "debit" {
			return true
		}
	}
	return false
}

// IsNumericColumn reports whether a column should be right-aligned.
func IsNumericColumn(header string) bool {
	return Classify(header) != ColumnText
}
