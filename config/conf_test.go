package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaderTitleCasesKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Parse([]string{
		"--header", "content-type: image/jpeg",
		"--header", "X-API-KEY: abc123",
		"https://example.com/image.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", c.Headers["Content-Type"])
	assert.Equal(t, "abc123", c.Headers["X-Api-Key"])
}

func TestParseNormalizesInputURI(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	// decomposed spells the accented letter as "e" plus a combining acute
	// accent, U+0301 (NFD); precomposed uses the single precomposed
	// codepoint U+00E9 (NFC). Parse should fold the former into the latter.
	decomposed := "https://example.com/caf" + "e\u0301" + ".jpg"
	precomposed := "https://example.com/caf" + "\u00e9" + ".jpg"
	c, err := Parse([]string{decomposed})
	require.NoError(t, err)
	assert.Equal(t, precomposed, c.InputURI)
	assert.NotEqual(t, decomposed, c.InputURI)
}

func TestParseMissingInputURI(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Parse([]string{"--largest"})
	require.Error(t, err)
}
