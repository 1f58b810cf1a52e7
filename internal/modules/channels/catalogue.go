// Package channels resolves free-text multilateral institution names to
// channel codes.
package channels

import (
	"context"
	"sort"
)

// Entity is a canonical multilateral institution
type Entity struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	EnAcronym string `json:"en_acronym,omitempty"`
	FrAcronym string `json:"fr_acronym,omitempty"`
}

// Source loads the authoritative channel list
type Source interface {
	LoadChannels(ctx context.Context) ([]Entity, error)
}

// StaticSource serves a fixed channel list
type StaticSource []Entity

// LoadChannels returns the fixed list
func (s StaticSource) LoadChannels(context.Context) ([]Entity, error) {
	return []Entity(s), nil
}

// Catalogue indexes entities for direct and fuzzy lookup. It is immutable
// once built.
type Catalogue struct {
	entities  []Entity
	byCode    map[string]Entity
	names     map[string]string
	enAcronym map[string]string
	frAcronym map[string]string

	fuzzyNames     []fuzzyCandidate
	fuzzyEnAcronym []fuzzyCandidate
	fuzzyFrAcronym []fuzzyCandidate
}

// NewCatalogue indexes entities. When several entities share a normalised
// name or acronym the lowest code keeps it.
func NewCatalogue(entities []Entity) *Catalogue {
	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	c := &Catalogue{
		entities:  sorted,
		byCode:    make(map[string]Entity, len(sorted)),
		names:     make(map[string]string, len(sorted)),
		enAcronym: make(map[string]string),
		frAcronym: make(map[string]string),
	}

	for _, e := range sorted {
		if e.Code == "" {
			continue
		}
		if _, ok := c.byCode[e.Code]; !ok {
			c.byCode[e.Code] = e
		}
		addKey(c.names, Normalise(e.Name), e.Code)
		addKey(c.enAcronym, Normalise(e.EnAcronym), e.Code)
		addKey(c.frAcronym, Normalise(e.FrAcronym), e.Code)
	}

	c.fuzzyNames = candidates(c.names)
	c.fuzzyEnAcronym = candidates(c.enAcronym)
	c.fuzzyFrAcronym = candidates(c.frAcronym)
	return c
}

func addKey(index map[string]string, key, code string) {
	if key == "" || key == "nan" {
		return
	}
	if _, ok := index[key]; !ok {
		index[key] = code
	}
}

func candidates(index map[string]string) []fuzzyCandidate {
	out := make([]fuzzyCandidate, 0, len(index))
	for key, code := range index {
		out = append(out, fuzzyCandidate{key: key, code: code})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Entities returns the catalogue entries ordered by code
func (c *Catalogue) Entities() []Entity {
	out := make([]Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Lookup returns the entity for a channel code
func (c *Catalogue) Lookup(code string) (Entity, bool) {
	e, ok := c.byCode[code]
	return e, ok
}

// Len returns the number of distinct channel codes
func (c *Catalogue) Len() int {
	return len(c.byCode)
}

// direct matches a normalised name against names, then English and French acronyms
func (c *Catalogue) direct(normalised string) (string, bool) {
	for _, index := range []map[string]string{c.names, c.enAcronym, c.frAcronym} {
		if code, ok := index[normalised]; ok {
			return code, true
		}
	}
	return "", false
}
