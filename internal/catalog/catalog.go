// Package catalog declares which tables a backup covers and in which order
// they are cleared and repopulated.
//
// The catalog is built from a single dependency graph: every included table
// names the tables its foreign keys reference. Restore order, clear order and
// dependency ranks are all derived from that graph at construction time, and
// construction fails if the graph has a cycle, a dangling dependency, or
// mentions an excluded table.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrCycle is returned when the declared dependencies are not acyclic
	ErrCycle = errors.New("table dependency graph contains a cycle")
	// ErrUnknownDependency is returned when a table depends on a table that is not included
	ErrUnknownDependency = errors.New("dependency on a table outside the catalog")
	// ErrExcludedTable is returned when an excluded table is declared as included
	ErrExcludedTable = errors.New("excluded table declared in catalog")
)

// TableSpec declares one included table and the tables it references
type TableSpec struct {
	Name      string   `yaml:"name" json:"name"`
	DependsOn []string `yaml:"depends_on" json:"depends_on,omitempty"`
}

// Catalog is the immutable, validated view over the included table set
type Catalog struct {
	specs        map[string]TableSpec
	ranks        map[string]int
	restoreOrder []string
	excluded     map[string]struct{}
}

// New validates the graph and derives the orderings. excluded names are
// matched case-insensitively.
func New(tables []TableSpec, excluded []string) (*Catalog, error) {
	c := &Catalog{
		specs:    make(map[string]TableSpec, len(tables)),
		ranks:    make(map[string]int, len(tables)),
		excluded: make(map[string]struct{}, len(excluded)),
	}

	for _, name := range excluded {
		c.excluded[strings.ToLower(name)] = struct{}{}
	}

	for _, t := range tables {
		if t.Name == "" {
			return nil, errors.New("table name cannot be empty")
		}
		if _, dup := c.specs[t.Name]; dup {
			return nil, fmt.Errorf("table %q declared twice", t.Name)
		}
		if c.IsExcluded(t.Name) {
			return nil, fmt.Errorf("%w: %s", ErrExcludedTable, t.Name)
		}
		c.specs[t.Name] = TableSpec{Name: t.Name, DependsOn: append([]string(nil), t.DependsOn...)}
	}

	for _, t := range c.specs {
		for _, dep := range t.DependsOn {
			if dep == t.Name {
				return nil, fmt.Errorf("%w: %s references itself", ErrCycle, t.Name)
			}
			if _, ok := c.specs[dep]; !ok {
				return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownDependency, t.Name, dep)
			}
		}
	}

	if err := c.sort(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew is New for package-level declarations; it panics on an invalid graph
func MustNew(tables []TableSpec, excluded []string) *Catalog {
	c, err := New(tables, excluded)
	if err != nil {
		panic(err)
	}
	return c
}

// sort runs Kahn's algorithm. A table's rank is one more than the highest
// rank among its dependencies; roots have rank 0.
func (c *Catalog) sort() error {
	inDegree := make(map[string]int, len(c.specs))
	children := make(map[string][]string, len(c.specs))
	for name, t := range c.specs {
		inDegree[name] += 0
		for _, dep := range t.DependsOn {
			inDegree[name]++
			children[dep] = append(children[dep], name)
		}
	}

	var ready []string
	for name, d := range inDegree {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	visited := 0
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		visited++

		for _, child := range children[name] {
			if r := c.ranks[name] + 1; r > c.ranks[child] {
				c.ranks[child] = r
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
				sort.Strings(ready)
			}
		}
	}

	if visited != len(c.specs) {
		var stuck []string
		for name, d := range inDegree {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}

	c.restoreOrder = make([]string, 0, len(c.specs))
	for name := range c.specs {
		c.restoreOrder = append(c.restoreOrder, name)
	}
	sort.Slice(c.restoreOrder, func(i, j int) bool {
		a, b := c.restoreOrder[i], c.restoreOrder[j]
		if c.ranks[a] != c.ranks[b] {
			return c.ranks[a] < c.ranks[b]
		}
		return a < b
	})
	return nil
}

// Included returns the included table names in alphabetical order
func (c *Catalog) Included() []string {
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RestoreOrder returns tables parents-first
func (c *Catalog) RestoreOrder() []string {
	return append([]string(nil), c.restoreOrder...)
}

// ClearOrder returns tables children-first
func (c *Catalog) ClearOrder() []string {
	order := make([]string, len(c.restoreOrder))
	for i, name := range c.restoreOrder {
		order[len(order)-1-i] = name
	}
	return order
}

// IsExcluded reports whether name is in the exclusion set
func (c *Catalog) IsExcluded(name string) bool {
	_, ok := c.excluded[strings.ToLower(name)]
	return ok
}

// Excluded returns the exclusion set in alphabetical order
func (c *Catalog) Excluded() []string {
	names := make([]string, 0, len(c.excluded))
	for name := range c.excluded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether name is an included table
func (c *Catalog) Contains(name string) bool {
	_, ok := c.specs[name]
	return ok
}

// Rank returns the dependency rank of an included table
func (c *Catalog) Rank(name string) (int, bool) {
	if !c.Contains(name) {
		return 0, false
	}
	return c.ranks[name], true
}

// Dependencies returns the tables name references
func (c *Catalog) Dependencies(name string) []string {
	return append([]string(nil), c.specs[name].DependsOn...)
}

// Len returns the number of included tables
func (c *Catalog) Len() int {
	return len(c.specs)
}
