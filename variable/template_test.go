package variable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateExecute(t *testing.T) {
	tpl, err := ParseTemplate("https://ex/{{x/256}}_{{y/256}}.jpg")
	require.NoError(t, err)

	out, err := tpl.Execute(map[string]int64{"x": 0, "y": 0})
	require.NoError(t, err)
	assert.Equal(t, "https://ex/0_0.jpg", out)

	out, err = tpl.Execute(map[string]int64{"x": 256, "y": 0})
	require.NoError(t, err)
	assert.Equal(t, "https://ex/1_0.jpg", out)
}

func TestTemplateZeroPad(t *testing.T) {
	tpl, err := ParseTemplate("{{x/256:03}}")
	require.NoError(t, err)

	out, err := tpl.Execute(map[string]int64{"x": 512})
	require.NoError(t, err)
	assert.Equal(t, "002", out)
}

func TestTemplateUnknownVariable(t *testing.T) {
	tpl, err := ParseTemplate("{{z}}")
	require.NoError(t, err)

	_, err = tpl.Execute(map[string]int64{"x": 1})
	assert.Error(t, err)
}

func TestTemplateDivisionByZero(t *testing.T) {
	tpl, err := ParseTemplate("{{x/y}}")
	require.NoError(t, err)

	_, err = tpl.Execute(map[string]int64{"x": 1, "y": 0})
	assert.Error(t, err)
}

func TestTemplateModuloSign(t *testing.T) {
	tpl, err := ParseTemplate("{{x%3}}")
	require.NoError(t, err)

	out, err := tpl.Execute(map[string]int64{"x": -7})
	require.NoError(t, err)
	// Go's % follows the dividend's sign, matching the spec's requirement.
	assert.Equal(t, "-1", out)
}

func TestTemplatePrecedenceAndParens(t *testing.T) {
	tpl, err := ParseTemplate("{{(x+1)*2}}")
	require.NoError(t, err)

	out, err := tpl.Execute(map[string]int64{"x": 3})
	require.NoError(t, err)
	assert.Equal(t, "8", out)
}

func TestParseBadTemplate(t *testing.T) {
	_, err := ParseTemplate("{{x+}}")
	assert.Error(t, err)

	_, err = ParseTemplate("{{x")
	assert.Error(t, err)
}
