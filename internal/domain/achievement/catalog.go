package achievement

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed catalog.toml
var defaultCatalogTOML []byte

// Difficulty groups achievements for display.
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultySpecial Difficulty = "special"
	DifficultyEpic    Difficulty = "epic"
)

// IsValid checks the difficulty is one of the known tiers.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultySpecial, DifficultyEpic:
		return true
	}
	return false
}

// Definition is one immutable catalog entry.
type Definition struct {
	ID          string     `toml:"id"`
	Type        MetricType `toml:"type"`
	TargetValue int        `toml:"target"`
	Name        string     `toml:"name"`
	Description string     `toml:"description"`
	Icon        string     `toml:"icon"`
	Difficulty  Difficulty `toml:"difficulty"`
	Color       string     `toml:"color"`
}

// IsReached reports whether progress meets the target.
func (d Definition) IsReached(progress int) bool {
	return progress >= d.TargetValue
}

// Catalog is the read-only achievement table. Safe for concurrent use.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

type catalogFile struct {
	Achievements []Definition `toml:"achievement"`
}

// DefaultCatalog loads the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalogTOML))
}

// MustDefaultCatalog is DefaultCatalog for package init and tests.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalogFile loads a catalog override from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog decodes and validates a TOML catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return NewCatalog(file.Achievements)
}

// NewCatalog validates definitions and builds a catalog, keeping their order.
func NewCatalog(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, errors.New("catalog: no achievements defined")
	}

	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}

	var problems []string
	for i, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		switch {
		case d.ID == "":
			problems = append(problems, fmt.Sprintf("entry %d: empty id", i))
			continue
		case !d.Type.IsValid():
			problems = append(problems, fmt.Sprintf("%s: unknown metric type", d.ID))
		case d.TargetValue < 1:
			problems = append(problems, fmt.Sprintf("%s: target must be at least 1, got %d", d.ID, d.TargetValue))
		case d.Difficulty != "" && !d.Difficulty.IsValid():
			problems = append(problems, fmt.Sprintf("%s: unknown difficulty %q", d.ID, d.Difficulty))
		}
		if _, dup := c.index[d.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate id", d.ID))
			continue
		}
		c.index[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("catalog errors:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return c, nil
}

// Get returns the definition for id.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.index[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// All returns a copy of every definition in catalog order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// IDs returns every achievement id in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.defs))
	for i, d := range c.defs {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of achievements.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// ByMetric returns the definitions measured by metric.
func (c *Catalog) ByMetric(metric MetricType) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if d.Type == metric {
			out = append(out, d)
		}
	}
	return out
}
