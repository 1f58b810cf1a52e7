package domain

import (
	"fmt"
	"sort"
)

// WarningCode classifies a recoverable data-quality problem
type WarningCode string

const (
	WarnMissingMarkerData     WarningCode = "MissingMarkerData"
	WarnNotScreened           WarningCode = "NotScreened"
	WarnUnresolvedChannel     WarningCode = "UnresolvedChannel"
	WarnDivisionByZeroShare   WarningCode = "DivisionByZeroShare"
	WarnProviderNotClassified WarningCode = "ProviderNotClassified"
	WarnMissingShare          WarningCode = "MissingShare"
	WarnFallbackValue         WarningCode = "FallbackValue"
)

// Warning is a data-quality problem that did not stop processing
type Warning struct {
	Code     WarningCode `json:"code"`
	Message  string      `json:"message"`
	Provider string      `json:"provider,omitempty"`
	Year     int         `json:"year,omitempty"`
	Subject  string      `json:"subject,omitempty"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// Warnings accumulates warnings in the order they were raised
type Warnings []Warning

// Add appends a warning
func (ws *Warnings) Add(code WarningCode, provider string, year int, subject, format string, args ...any) {
	*ws = append(*ws, Warning{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Provider: provider,
		Year:     year,
		Subject:  subject,
	})
}

// Count returns how many warnings carry a code
func (ws Warnings) Count(code WarningCode) int {
	n := 0
	for _, w := range ws {
		if w.Code == code {
			n++
		}
	}
	return n
}

// Has reports whether any warning carries a code
func (ws Warnings) Has(code WarningCode) bool {
	return ws.Count(code) > 0
}

// ByCode groups warning counts by code, sorted for stable output
func (ws Warnings) ByCode() []WarningCount {
	counts := make(map[WarningCode]int)
	for _, w := range ws {
		counts[w.Code]++
	}
	out := make([]WarningCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, WarningCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// WarningCount is a per-code warning tally
type WarningCount struct {
	Code  WarningCode `json:"code"`
	Count int         `json:"count"`
}
