// Package crops is the fixed crop catalog used as a categorical model
// feature, plus the per-region crop lists used to filter selectors.
package crops

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultIndex is used for any crop name the catalog does not know.
const DefaultIndex = 0

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Crops  []string `yaml:"crops"`
	Groups struct {
		HighWater []string `yaml:"high_water"`
		LowWater  []string `yaml:"low_water"`
	} `yaml:"groups"`
	Regions []struct {
		Name  string   `yaml:"name"`
		Crops []string `yaml:"crops"`
	} `yaml:"regions"`
}

// Groups are the crop indices with overridden water needs.
type Groups struct {
	HighWater []int
	LowWater  []int
}

// contains reports membership of idx in a group slice.
func contains(group []int, idx int) bool {
	for _, g := range group {
		if g == idx {
			return true
		}
	}
	return false
}

// IsHighWater reports whether idx belongs to the high water group.
func (g Groups) IsHighWater(idx int) bool { return contains(g.HighWater, idx) }

// IsLowWater reports whether idx belongs to the low water group.
func (g Groups) IsLowWater(idx int) bool { return contains(g.LowWater, idx) }

// Region is one entry of the region catalog.
type Region struct {
	Name  string   `json:"name"`
	Crops []string `json:"crops"`
}

// Catalog is immutable after Load and safe for concurrent reads.
type Catalog struct {
	names   []string
	index   map[string]int // lower-cased name -> index
	groups  Groups
	regions []Region
	byName  map[string]int // lower-cased region name -> position in regions
}

// Default returns the embedded catalog. It panics only if the embedded file
// is broken, which the package tests rule out.
func Default() *Catalog {
	c, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("crops: embedded catalog: %v", err))
	}
	return c
}

// Parse builds a catalog from YAML and validates it.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse crop catalog: %w", err)
	}
	if len(f.Crops) == 0 {
		return nil, fmt.Errorf("crop catalog is empty")
	}

	c := &Catalog{
		names:  make([]string, 0, len(f.Crops)),
		index:  make(map[string]int, len(f.Crops)),
		byName: make(map[string]int, len(f.Regions)),
	}
	for i, name := range f.Crops {
		name = strings.TrimSpace(name)
		key := normalize(name)
		if key == "" {
			return nil, fmt.Errorf("crop at index %d has an empty name", i)
		}
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("crop %q is listed twice", name)
		}
		c.names = append(c.names, name)
		c.index[key] = i
	}

	var err error
	if c.groups.HighWater, err = c.resolveAll(f.Groups.HighWater); err != nil {
		return nil, fmt.Errorf("high water group: %w", err)
	}
	if c.groups.LowWater, err = c.resolveAll(f.Groups.LowWater); err != nil {
		return nil, fmt.Errorf("low water group: %w", err)
	}
	for _, idx := range c.groups.HighWater {
		if c.groups.IsLowWater(idx) {
			return nil, fmt.Errorf("crop %q is in both water groups", c.names[idx])
		}
	}

	for _, r := range f.Regions {
		name := strings.TrimSpace(r.Name)
		key := normalize(name)
		if key == "" {
			return nil, fmt.Errorf("region with empty name")
		}
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("region %q is listed twice", name)
		}
		idxs, err := c.resolveAll(r.Crops)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", name, err)
		}
		region := Region{Name: name, Crops: make([]string, 0, len(idxs))}
		for _, idx := range idxs {
			region.Crops = append(region.Crops, c.names[idx])
		}
		c.byName[key] = len(c.regions)
		c.regions = append(c.regions, region)
	}

	return c, nil
}

func (c *Catalog) resolveAll(names []string) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, n := range names {
		idx, ok := c.index[normalize(n)]
		if !ok {
			return nil, fmt.Errorf("unknown crop %q", n)
		}
		out = append(out, idx)
	}
	return out, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Index resolves a crop name. Unknown names resolve to DefaultIndex with
// known=false; this is a best-effort fallback, never an error.
func (c *Catalog) Index(name string) (idx int, known bool) {
	if i, ok := c.index[normalize(name)]; ok {
		return i, true
	}
	return DefaultIndex, false
}

// Name returns the canonical name at idx, or the default crop name when idx
// is out of range.
func (c *Catalog) Name(idx int) string {
	if idx < 0 || idx >= len(c.names) {
		return c.names[DefaultIndex]
	}
	return c.names[idx]
}

// Canonical returns the catalog spelling of name after fallback.
func (c *Catalog) Canonical(name string) string {
	idx, _ := c.Index(name)
	return c.names[idx]
}

// Size is the number of crops in the catalog.
func (c *Catalog) Size() int { return len(c.names) }

// Names returns the crops in index order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Groups returns copies of the water group index lists.
func (c *Catalog) Groups() Groups {
	return Groups{
		HighWater: append([]int(nil), c.groups.HighWater...),
		LowWater:  append([]int(nil), c.groups.LowWater...),
	}
}

// Regions returns the region names sorted alphabetically.
func (c *Catalog) Regions() []string {
	out := make([]string, 0, len(c.regions))
	for _, r := range c.regions {
		out = append(out, r.Name)
	}
	sort.Strings(out)
	return out
}

// Region looks up a region by name, case-insensitively.
func (c *Catalog) Region(name string) (Region, bool) {
	pos, ok := c.byName[normalize(name)]
	if !ok {
		return Region{}, false
	}
	r := c.regions[pos]
	return Region{Name: r.Name, Crops: append([]string(nil), r.Crops...)}, true
}

// CropsFor returns the ordered crop list of a region. An empty region name
// returns the whole catalog.
func (c *Catalog) CropsFor(region string) ([]string, bool) {
	if strings.TrimSpace(region) == "" {
		return c.Names(), true
	}
	r, ok := c.Region(region)
	if !ok {
		return nil, false
	}
	return r.Crops, true
}

// InRegion reports whether crop is listed for region.
func (c *Catalog) InRegion(region, crop string) bool {
	r, ok := c.Region(region)
	if !ok {
		return false
	}
	key := normalize(crop)
	for _, name := range r.Crops {
		if normalize(name) == key {
			return true
		}
	}
	return false
}
