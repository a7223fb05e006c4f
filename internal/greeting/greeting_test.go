package greeting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/LakePipiCAKA/self-discovery/internal/util/timezone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLocales(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	en := `{
  "greeting.morning": "Good morning, {{.Name}}!",
  "greeting.evening": "Good evening, {{.Name}}!",
  "greeting.default": "Hello, {{.Name}}!",
  "tips.default": "Have a great day!"
}`
	ro := `{
  "greeting.morning": "Bună dimineața, {{.Name}}!",
  "greeting.default": "Salut, {{.Name}}!"
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte(en), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ro.json"), []byte(ro), 0o644))
	return dir
}

func TestGreetByPeriod(t *testing.T) {
	c, err := NewComposer(writeLocales(t), "en")
	require.NoError(t, err)

	assert.Equal(t, "Good morning, Ana Pop!", c.Greet("en", "Ana Pop", timezone.PeriodMorning))
	assert.Equal(t, "Good evening, Ana Pop!", c.Greet("en", "Ana Pop", timezone.PeriodEvening))
	assert.Equal(t, "Hello, Ana Pop!", c.Greet("en", "Ana Pop", timezone.PeriodNone))
}

func TestGreetTranslated(t *testing.T) {
	c, err := NewComposer(writeLocales(t), "en")
	require.NoError(t, err)

	assert.Equal(t, "Bună dimineața, Ana Pop!", c.Greet("ro", "Ana Pop", timezone.PeriodMorning))
}

func TestGreetFallsBackToDefaultLanguage(t *testing.T) {
	c, err := NewComposer(writeLocales(t), "en")
	require.NoError(t, err)

	// Unknown language code falls back to English entirely.
	assert.Equal(t, "Good morning, Ana Pop!", c.Greet("de", "Ana Pop", timezone.PeriodMorning))

	// A known language missing one key falls back per message.
	assert.Equal(t, "Good evening, Ana Pop!", c.Greet("ro", "Ana Pop", timezone.PeriodEvening))
}

func TestLocalize(t *testing.T) {
	c, err := NewComposer(writeLocales(t), "en")
	require.NoError(t, err)

	assert.Equal(t, "Have a great day!", c.Localize("en", "tips.default", nil))
	assert.Equal(t, "tips.nonexistent", c.Localize("en", "tips.nonexistent", nil))
}

func TestLanguages(t *testing.T) {
	c, err := NewComposer(writeLocales(t), "en")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"en", "ro"}, c.Languages())
}

func TestNewComposerRequiresDefaultLocale(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ro.json"), []byte(`{"greeting.default": "Salut!"}`), 0o644))

	_, err := NewComposer(dir, "en")
	assert.Error(t, err)
}
