package model

import "strings"

// Reserved theme labels. ThemeNoIssue is always a valid classification
// target; ThemeFallback is the single theme used when discovery cannot
// produce a usable set.
const (
	ThemeNoIssue  = "No Issue"
	ThemeFallback = "Unclassified Issue"
)

// Theme is a recurring complaint label discovered once per run. Themes are
// not stable across runs; no identity is persisted beyond the run record.
type Theme struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsReserved  bool   `json:"is_reserved"`
}

// ReservedTheme returns the always-present "No Issue" theme.
func ReservedTheme() Theme {
	return Theme{Name: ThemeNoIssue, IsReserved: true}
}

// FallbackTheme returns the single theme used when discovery fails.
func FallbackTheme() Theme {
	return Theme{Name: ThemeFallback, Description: "Reviews describing a problem that could not be grouped", IsReserved: true}
}

// ThemeSet provides case-insensitive membership checks over a run's themes.
// The reserved "No Issue" label is always a member.
type ThemeSet struct {
	names map[string]string
}

// NewThemeSet builds a set from the given themes plus the reserved label.
func NewThemeSet(themes []Theme) *ThemeSet {
	names := make(map[string]string, len(themes)+1)
	names[normalizeThemeName(ThemeNoIssue)] = ThemeNoIssue
	for _, t := range themes {
		names[normalizeThemeName(t.Name)] = t.Name
	}
	return &ThemeSet{names: names}
}

// Resolve maps a label to its canonical member name. Unknown labels resolve
// to the reserved "No Issue" label and ok is false.
func (s *ThemeSet) Resolve(label string) (string, bool) {
	if name, ok := s.names[normalizeThemeName(label)]; ok {
		return name, true
	}
	return ThemeNoIssue, false
}

func normalizeThemeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
