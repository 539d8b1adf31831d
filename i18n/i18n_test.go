package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/irrigation/irrigation"
)

func TestDefaultHasEveryVerdictInEnglish(t *testing.T) {
	c := Default()
	for _, v := range append(irrigation.RiskVerdicts, irrigation.ModelVerdicts...) {
		for _, f := range []string{FieldTitle, FieldAdvice} {
			key := VerdictKey(v, f)
			assert.NotEqual(t, key, c.Lookup(English, key), "missing English text for %s", key)
		}
	}
}

func TestLookupFallbackChain(t *testing.T) {
	c := Default()

	assert.Equal(t, "Estrés hídrico alto", c.Lookup("es", "high.title"))
	// es has no model texts: English subkey
	assert.Equal(t, "Irrigation Needed", c.Lookup("es", "irrigation_needed.title"))
	// unsupported language: English
	assert.Equal(t, "Water Level Optimal", c.Lookup("fr", "low.title"))
	// unknown everywhere: the key itself
	assert.Equal(t, "frost.title", c.Lookup("hi", "frost.title"))
}

func TestRender(t *testing.T) {
	c := Default()

	assert.Equal(t, "Crop Rice requires immediate irrigation to avoid yield loss.", c.Render(English, "high.advice", "Rice"))
	assert.Equal(t, "No irrigation required currently for Wheat.", c.Render(English, "low.advice", "Wheat"))
	assert.Contains(t, c.Render("hi", "low.advice", "Wheat"), "Wheat")
}

func TestVerdictKey(t *testing.T) {
	assert.Equal(t, "high.title", VerdictKey(irrigation.VerdictHigh, FieldTitle))
	assert.Equal(t, "irrigation_needed.advice", VerdictKey(irrigation.VerdictIrrigationNeeded, FieldAdvice))
	assert.Equal(t, "optimal.title", VerdictKey(irrigation.VerdictOptimal, FieldTitle))
}

func TestMatch(t *testing.T) {
	c := Default()

	tests := map[string]string{
		"":                          English,
		"hi":                        "hi",
		"hi-IN,hi;q=0.9,en;q=0.8":   "hi",
		"es-MX":                     "es",
		"fr-FR,es;q=0.5":            "es",
		"de":                        English,
		"en-GB":                     English,
		"not a language tag;;;q=x":  English,
	}
	for in, want := range tests {
		assert.Equal(t, want, c.Match(in), "Match(%q)", in)
	}
}

func TestRecommend(t *testing.T) {
	r := Default().Recommend("es", irrigation.VerdictMedium, "Maize")

	assert.Equal(t, "es", r.Language)
	assert.Equal(t, "Necesidad de agua moderada", r.Title)
	assert.Equal(t, "Vigile el suelo de Maize y planifique el riego pronto.", r.Advice)
}

func TestParse(t *testing.T) {
	_, err := Parse([]byte("hi:\n  a: b\n"))
	assert.Error(t, err, "English table is required")

	_, err = Parse([]byte("en: [1, 2]"))
	assert.Error(t, err)

	c, err := Parse([]byte("en:\n  a: A\nxx-invalid-@:\n  a: B\n"))
	assert.Error(t, err)
	assert.Nil(t, c)

	c, err = Parse([]byte("pt:\n  a: Á\nen:\n  a: A\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "pt"}, c.Languages())
}
