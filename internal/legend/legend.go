// Package legend groups features by category and owns the hidden-category
// set. It is the only writer of feature visibility.
package legend

import (
	"sort"
	"sync"

	"github.com/joeblew999/plat-recmap/internal/feature"
	"github.com/joeblew999/plat-recmap/internal/palette"
)

// Item is one legend entry.
type Item struct {
	Value   string `json:"value" doc:"Stringified category value"`
	Color   string `json:"color" doc:"Category color (CSS)"`
	Count   int    `json:"count" doc:"Number of features in the category"`
	Visible bool   `json:"visible" doc:"Whether features in the category are shown"`
}

type group struct {
	value string
	count int
}

// Controller tracks hidden categories for the current feature set.
type Controller struct {
	mu      sync.Mutex
	palette palette.Palette
	hidden  map[string]struct{}
	set     *feature.Set
	field   string
	groups  []group
}

// New creates a controller with nothing hidden.
func New(p palette.Palette) *Controller {
	return &Controller{
		palette: p,
		hidden:  make(map[string]struct{}),
		set:     feature.EmptySet(),
	}
}

// Rebuild regroups set by category and reapplies the hidden set to it.
// Selecting a different color field clears the hidden set. It returns the
// features whose visibility changed.
func (c *Controller) Rebuild(set *feature.Set) []*feature.Feature {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set.ColorField() != c.field {
		c.hidden = make(map[string]struct{})
		c.field = set.ColorField()
	}
	c.set = set

	c.groups = c.groups[:0]
	if c.field != "" {
		counts := make(map[string]int)
		for _, f := range set.Features() {
			if counts[f.Category()] == 0 {
				c.groups = append(c.groups, group{value: f.Category()})
			}
			counts[f.Category()]++
		}
		for i := range c.groups {
			c.groups[i].count = counts[c.groups[i].value]
		}
		sort.SliceStable(c.groups, func(i, j int) bool {
			if c.groups[i].count != c.groups[j].count {
				return c.groups[i].count > c.groups[j].count
			}
			return c.groups[i].value < c.groups[j].value
		})
	}

	return c.applyLocked()
}

// Items returns the legend entries. Visible is derived from the hidden set.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]Item, 0, len(c.groups))
	for _, g := range c.groups {
		_, hidden := c.hidden[g.value]
		items = append(items, Item{
			Value:   g.value,
			Color:   c.palette.ColorFor(g.value),
			Count:   g.count,
			Visible: !hidden,
		})
	}
	return items
}

// Field returns the categorical field the legend is grouped by.
func (c *Controller) Field() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.field
}

// Toggle flips value in the hidden set and returns the features whose
// visibility changed.
func (c *Controller) Toggle(value string) []*feature.Feature {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.hidden[value]; ok {
		delete(c.hidden, value)
	} else {
		c.hidden[value] = struct{}{}
	}
	return c.applyLocked()
}

// ShowAll clears the hidden set.
func (c *Controller) ShowAll() []*feature.Feature {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hidden = make(map[string]struct{})
	return c.applyLocked()
}

// Hidden reports whether value is hidden.
func (c *Controller) Hidden(value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.hidden[value]
	return ok
}

// HiddenValues returns the hidden categories in sorted order.
func (c *Controller) HiddenValues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.hidden))
	for v := range c.hidden {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (c *Controller) applyLocked() []*feature.Feature {
	if c.field == "" {
		return c.set.ApplyHidden(func(string) bool { return false })
	}
	return c.set.ApplyHidden(func(category string) bool {
		_, ok := c.hidden[category]
		return ok
	})
}
