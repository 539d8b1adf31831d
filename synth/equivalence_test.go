package synth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/irrigation/crops"
	"github.com/liamcoop/irrigation/rulesets"
	"github.com/liamcoop/irrigation/synth"
)

// TestLabelRuleSetMatchesRuleLabeler generates the same set with the
// built-in labeler and with the CEL label table and expects identical labels.
func TestLabelRuleSetMatchesRuleLabeler(t *testing.T) {
	catalog := crops.Default()
	m, err := rulesets.NewDefaultManager(rulesets.MemoryStores(), nil)
	require.NoError(t, err)

	builtin, err := synth.Generate(2000, 42, catalog.Size(), synth.NewRuleLabeler(catalog.Groups()))
	require.NoError(t, err)
	viaRules, err := synth.Generate(2000, 42, catalog.Size(), rulesets.NewLabelEngine(m, catalog.Groups()))
	require.NoError(t, err)

	assert.Equal(t, builtin.Labels(), viaRules.Labels())
	assert.Equal(t, builtin.Features(), viaRules.Features())
}
