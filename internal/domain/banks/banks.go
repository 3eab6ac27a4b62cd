// Package banks holds the catalogue of statement layouts the conversion
// service understands.
package banks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Auto lets the service detect the bank from the statement itself.
const Auto = "auto"

// Bank is a supported statement layout.
type Bank struct {
	Code        string
	DisplayName string
}

var catalogue = []Bank{
	{Code: Auto, DisplayName: "Automatically detected"},
	{Code: "sparkasse", DisplayName: "Sparkasse"},
	{Code: "ing", DisplayName: "ING"},
	{Code: "deutsche_bank", DisplayName: "Deutsche Bank"},
}

// All returns the catalogue, auto detection first.
func All() []Bank {
	out := make([]Bank, len(catalogue))
	copy(out, catalogue)
	return out
}

// DisplayName returns the human name for a bank code. Unknown codes are
// returned unchanged and an empty code is treated as auto detection.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		code = Auto
	}
	for _, b := range catalogue {
		if strings.EqualFold(b.Code, code) {
			return b.DisplayName
		}
	}
	return code
}

// Resolve maps user input such as "Sparkasse", "deutsche bank" or "spk" to a
// catalogue code.
func Resolve(input string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Auto, nil
	}

	for _, b := range catalogue {
		if normalized == b.Code || normalized == strings.ToLower(b.DisplayName) {
			return b.Code, nil
		}
	}

	targets := make([]string, 0, len(catalogue)*2)
	owner := make(map[string]string, len(catalogue)*2)
	for _, b := range catalogue {
		for _, t := range []string{b.Code, strings.ToLower(b.DisplayName)} {
			targets = append(targets, t)
			owner[t] = b.Code
		}
	}

	candidate := strings.ReplaceAll(normalized, " ", "_")
	ranks := fuzzy.RankFindNormalizedFold(candidate, targets)
	ranks = append(ranks, fuzzy.RankFindNormalizedFold(normalized, targets)...)
	if len(ranks) == 0 {
		return "", fmt.Errorf("unknown bank %q (supported: %s)", input, strings.Join(Codes(), ", "))
	}

	sort.Sort(ranks)
	return owner[ranks[0].Target], nil
}

// Codes lists the catalogue codes.
func Codes() []string {
	codes := make([]string, len(catalogue))
	for i, b := range catalogue {
		codes[i] = b.Code
	}
	return codes
}
