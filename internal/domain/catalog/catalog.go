// Package catalog contains the canonical ingredient registry used to
// constrain and validate AI-generated formulas. The catalog is write-once at
// startup and shared read-only across all requests.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Class distinguishes the two disjoint ingredient classes.
type Class string

const (
	// ClassSystemSupport is a fixed-dose composite blend treated as a single
	// line item. It cannot be dosed at arbitrary amounts.
	ClassSystemSupport Class = "system_support"

	// ClassIndividual is a single active compound, either fixed-dose or dosed
	// within a declared range.
	ClassIndividual Class = "individual"
)

// Entry is one catalog ingredient. Exactly one of DoseMg or the
// DoseRangeMinMg/DoseRangeMaxMg pair is set.
type Entry struct {
	Name           string
	Class          Class
	DoseMg         int
	DoseRangeMinMg int
	DoseRangeMaxMg int
	Description    string
}

// FixedDose reports whether the entry carries a single canonical dose.
func (e Entry) FixedDose() bool {
	return e.DoseMg > 0
}

func (e Entry) validate() error {
	if e.Name == "" {
		return fmt.Errorf("catalog entry with empty name")
	}
	fixed := e.DoseMg > 0
	ranged := e.DoseRangeMinMg > 0 || e.DoseRangeMaxMg > 0
	if fixed == ranged {
		return fmt.Errorf("catalog entry %q must set exactly one of fixed dose or dose range", e.Name)
	}
	if ranged && e.DoseRangeMinMg > e.DoseRangeMaxMg {
		return fmt.Errorf("catalog entry %q has inverted dose range %d-%d", e.Name, e.DoseRangeMinMg, e.DoseRangeMaxMg)
	}
	return nil
}

// Catalog is an immutable ingredient registry with case-insensitive lookup.
type Catalog struct {
	entries []Entry
	byName  map[string]Entry
	aliases map[string]string
}

// New builds a catalog from entries and an alias map keyed by lowercase
// variant. Duplicate canonical names and aliases pointing at unknown entries
// are rejected.
func New(entries []Entry, aliases map[string]string) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, len(entries)),
		byName:  make(map[string]Entry, len(entries)),
		aliases: make(map[string]string, len(aliases)),
	}
	copy(c.entries, entries)

	for _, e := range c.entries {
		if err := e.validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(e.Name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", e.Name)
		}
		c.byName[key] = e
	}

	for alias, canonical := range aliases {
		if _, ok := c.byName[strings.ToLower(canonical)]; !ok {
			return nil, fmt.Errorf("alias %q points at unknown entry %q", alias, canonical)
		}
		c.aliases[strings.ToLower(alias)] = canonical
	}

	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog built from the embedded entry data.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := New(defaultEntries, defaultAliases)
		if err != nil {
			panic(fmt.Sprintf("invalid builtin catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Lookup finds an entry by canonical name, case-insensitively. It does not
// normalize; use Normalize for arbitrary input.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// Names returns all canonical names in sorted order. Used to build the
// tool-schema enum that constrains generation.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// SystemSupports returns the fixed-dose composite blends.
func (c *Catalog) SystemSupports() []Entry {
	return c.byClass(ClassSystemSupport)
}

// Individuals returns the single-active ingredients.
func (c *Catalog) Individuals() []Entry {
	return c.byClass(ClassIndividual)
}

func (c *Catalog) byClass(class Class) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Class == class {
			out = append(out, e)
		}
	}
	return out
}

// Dose returns the canonical dose for an ingredient: the fixed dose, or the
// range minimum for range-based entries.
func (c *Catalog) Dose(name string) (int, bool) {
	e, ok := c.Lookup(name)
	if !ok {
		return 0, false
	}
	if e.FixedDose() {
		return e.DoseMg, true
	}
	return e.DoseRangeMinMg, true
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
