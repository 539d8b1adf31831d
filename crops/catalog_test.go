package crops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogShape(t *testing.T) {
	c := Default()

	assert.Equal(t, 30, c.Size())
	assert.Equal(t, "Wheat", c.Name(DefaultIndex))

	g := c.Groups()
	assert.Len(t, g.HighWater, 6)
	assert.Len(t, g.LowWater, 4)
	for _, idx := range g.HighWater {
		assert.False(t, g.IsLowWater(idx), "crop %s in both groups", c.Name(idx))
	}
}

func TestIndexLookup(t *testing.T) {
	c := Default()

	testCases := []struct {
		name      string
		wantIdx   int
		wantKnown bool
	}{
		{"Wheat", 0, true},
		{"Rice", 1, true},
		{"  rice ", 1, true},
		{"PIGEON PEA", 13, true},
		{"Quinoa", DefaultIndex, false},
		{"", DefaultIndex, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			idx, known := c.Index(tc.name)
			assert.Equal(t, tc.wantIdx, idx)
			assert.Equal(t, tc.wantKnown, known)
		})
	}
}

func TestEveryNameRoundTrips(t *testing.T) {
	c := Default()
	for i, name := range c.Names() {
		idx, known := c.Index(name)
		require.True(t, known, name)
		assert.Equal(t, i, idx)
		assert.Equal(t, name, c.Name(idx))
	}
}

func TestNameOutOfRangeFallsBack(t *testing.T) {
	c := Default()
	assert.Equal(t, "Wheat", c.Name(-1))
	assert.Equal(t, "Wheat", c.Name(c.Size()))
	assert.Equal(t, "Wheat", c.Canonical("Quinoa"))
	assert.Equal(t, "Sugarcane", c.Canonical("sugarcane"))
}

func TestWaterGroups(t *testing.T) {
	c := Default()
	g := c.Groups()

	rice, _ := c.Index("Rice")
	millet, _ := c.Index("Millet")
	wheat, _ := c.Index("Wheat")

	assert.True(t, g.IsHighWater(rice))
	assert.True(t, g.IsLowWater(millet))
	assert.False(t, g.IsHighWater(wheat))
	assert.False(t, g.IsLowWater(wheat))

	// Returned slices are copies
	g.HighWater[0] = 99
	assert.NotEqual(t, 99, c.Groups().HighWater[0])
}

func TestRegions(t *testing.T) {
	c := Default()

	regions := c.Regions()
	require.NotEmpty(t, regions)
	assert.IsIncreasing(t, regions)

	crops, ok := c.CropsFor("punjab")
	require.True(t, ok)
	assert.Equal(t, "Wheat", crops[0])

	all, ok := c.CropsFor("")
	require.True(t, ok)
	assert.Len(t, all, c.Size())

	_, ok = c.CropsFor("Atlantis")
	assert.False(t, ok)

	assert.True(t, c.InRegion("Kerala", "coconut"))
	assert.False(t, c.InRegion("Kerala", "Wheat"))
	assert.False(t, c.InRegion("Atlantis", "Wheat"))
}

func TestParseRejectsBrokenCatalogs(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"empty", `crops: []`},
		{"duplicate crop", "crops: [Wheat, wheat]"},
		{"unknown group crop", "crops: [Wheat]\ngroups:\n  high_water: [Rice]"},
		{"overlapping groups", "crops: [Wheat, Rice]\ngroups:\n  high_water: [Rice]\n  low_water: [Rice]"},
		{"unknown region crop", "crops: [Wheat]\nregions:\n  - name: X\n    crops: [Rice]"},
		{"duplicate region", "crops: [Wheat]\nregions:\n  - name: X\n    crops: [Wheat]\n  - name: x\n    crops: [Wheat]"},
		{"not yaml", "crops: [Wheat"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}
