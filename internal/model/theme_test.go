package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThemeSetResolvesMembers(t *testing.T) {
	t.Parallel()

	set := NewThemeSet([]Theme{
		{Name: "App Crashes"},
		{Name: "Payment Failures"},
	})

	name, ok := set.Resolve("App Crashes")
	assert.True(t, ok)
	assert.Equal(t, "App Crashes", name)

	// Case and surrounding whitespace do not matter.
	name, ok = set.Resolve("  app crashes ")
	assert.True(t, ok)
	assert.Equal(t, "App Crashes", name)
}

func TestThemeSetCoercesUnknownLabels(t *testing.T) {
	t.Parallel()

	set := NewThemeSet([]Theme{{Name: "App Crashes"}})

	name, ok := set.Resolve("Battery Drain")
	assert.False(t, ok)
	assert.Equal(t, ThemeNoIssue, name)

	name, ok = set.Resolve("")
	assert.False(t, ok)
	assert.Equal(t, ThemeNoIssue, name)
}

func TestThemeSetAlwaysContainsReservedLabel(t *testing.T) {
	t.Parallel()

	set := NewThemeSet(nil)

	name, ok := set.Resolve("no issue")
	assert.True(t, ok)
	assert.Equal(t, ThemeNoIssue, name)
}

func TestReservedThemes(t *testing.T) {
	t.Parallel()

	assert.True(t, ReservedTheme().IsReserved)
	assert.Equal(t, ThemeNoIssue, ReservedTheme().Name)
	assert.True(t, FallbackTheme().IsReserved)
	assert.Equal(t, ThemeFallback, FallbackTheme().Name)
}
