// Package values holds the canonical values dataset offered in the wizard.
package values

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed values.yaml
var builtin []byte

// Value is one entry in the dataset.
type Value struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Prompts     []string `yaml:"prompts"`
	Actions     []string `yaml:"actions"`
}

// Category groups related values.
type Category struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type document struct {
	Categories []Category `yaml:"categories"`
	Values     []Value    `yaml:"values"`
}

// Catalog is an immutable, ordered index of values.
type Catalog struct {
	values     []Value
	byID       map[string]int
	categories []Category
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("values: builtin catalog: %v", err))
	}
	return c
}

// Parse builds a catalog from YAML. Ids must be unique and every value must
// belong to a declared category.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("values: parse catalog: %w", err)
	}
	known := make(map[string]struct{}, len(doc.Categories))
	for _, cat := range doc.Categories {
		if strings.TrimSpace(cat.ID) == "" {
			return nil, fmt.Errorf("values: category without id")
		}
		known[cat.ID] = struct{}{}
	}
	c := &Catalog{
		byID:       make(map[string]int, len(doc.Values)),
		categories: doc.Categories,
	}
	for _, v := range doc.Values {
		v.ID = strings.TrimSpace(v.ID)
		if v.ID == "" {
			return nil, fmt.Errorf("values: value without id")
		}
		if _, dup := c.byID[v.ID]; dup {
			return nil, fmt.Errorf("values: duplicate id %q", v.ID)
		}
		if _, ok := known[v.Category]; !ok {
			return nil, fmt.Errorf("values: %s: unknown category %q", v.ID, v.Category)
		}
		if v.Name == "" {
			v.Name = v.ID
		}
		c.byID[v.ID] = len(c.values)
		c.values = append(c.values, v)
	}
	return c, nil
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the value with id.
func (c *Catalog) Get(id string) (Value, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Value{}, false
	}
	return c.values[i], true
}

// Name returns the display name for id, or the id itself when unknown.
func (c *Catalog) Name(id string) string {
	if v, ok := c.Get(id); ok {
		return v.Name
	}
	return id
}

// All returns every value in catalog order.
func (c *Catalog) All() []Value {
	out := make([]Value, len(c.values))
	copy(out, c.values)
	return out
}

// Len returns the number of values.
func (c *Catalog) Len() int {
	return len(c.values)
}

// Categories returns the categories in declaration order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Category returns the category with id.
func (c *Catalog) Category(id string) (Category, bool) {
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// ByCategory returns the values in category id, in catalog order.
func (c *Catalog) ByCategory(id string) []Value {
	var out []Value
	for _, v := range c.values {
		if v.Category == id {
			out = append(out, v)
		}
	}
	return out
}
