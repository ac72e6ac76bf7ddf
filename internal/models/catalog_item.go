// Package models defines data structures for the pricecat catalog and ingestion jobs.
package models

import (
	"fmt"
	"slices"
	"strings"
)

// CatalogItem is one priced task of a unit-price catalog edition.
//
// Items are identified by year and code. Zero values mean "not provided":
// a write carrying an empty field never clears what is already stored.
// Prices are pointers so that an explicit 0 is still a value.
type CatalogItem struct {
	Code          string    `json:"code" yaml:"code"`
	Year          int       `json:"year,omitempty" yaml:"year,omitempty"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	Unit          string    `json:"unit,omitempty" yaml:"unit,omitempty"`
	PriceLabor    *float64  `json:"price_labor,omitempty" yaml:"price_labor,omitempty"`
	PriceMaterial *float64  `json:"price_material,omitempty" yaml:"price_material,omitempty"`
	PriceTotal    *float64  `json:"price_total,omitempty" yaml:"price_total,omitempty"`
	Chapter       string    `json:"chapter,omitempty" yaml:"chapter,omitempty"`
	Section       string    `json:"section,omitempty" yaml:"section,omitempty"`
	Page          int       `json:"page,omitempty" yaml:"page,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty" yaml:"-"`
}

// IdentityKey returns the upsert key for a code in a given edition.
func IdentityKey(year int, code string) string {
	return fmt.Sprintf("%d_%s", year, code)
}

// Key returns the item's identity key, e.g. "2024_A01".
func (c CatalogItem) Key() string {
	return IdentityKey(c.Year, c.Code)
}

// HasEmbedding reports whether the item has been vectorized.
func (c CatalogItem) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Normalize trims the code and fills in the edition year when absent.
func (c *CatalogItem) Normalize(defaultYear int) {
	c.Code = strings.TrimSpace(c.Code)
	if c.Year == 0 {
		c.Year = defaultYear
	}
}

// Validate checks that the item can be keyed.
func (c CatalogItem) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("catalog item: code is required")
	}
	if c.Year <= 0 {
		return fmt.Errorf("catalog item %s: year must be positive", c.Code)
	}
	return nil
}

// WithoutEmbedding returns a copy of the item with the vector dropped.
// Used wherever an item is embedded into another record.
func (c CatalogItem) WithoutEmbedding() CatalogItem {
	c.Embedding = nil
	return c
}

// Copy returns a deep copy of the item, prices and vector included.
func (c CatalogItem) Copy() CatalogItem {
	c.Embedding = slices.Clone(c.Embedding)
	c.PriceLabor = clonePrice(c.PriceLabor)
	c.PriceMaterial = clonePrice(c.PriceMaterial)
	c.PriceTotal = clonePrice(c.PriceTotal)
	return c
}

// Total returns the total price, or 0 when none was extracted.
func (c CatalogItem) Total() float64 {
	if c.PriceTotal == nil {
		return 0
	}
	return *c.PriceTotal
}

func clonePrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Fields returns the provided fields of the item keyed by their stored
// names. Identity fields are always present.
func (c CatalogItem) Fields() map[string]any {
	f := map[string]any{
		"key":  c.Key(),
		"code": c.Code,
		"year": c.Year,
	}
	if c.Description != "" {
		f["description"] = c.Description
	}
	if c.Unit != "" {
		f["unit"] = c.Unit
	}
	if c.PriceLabor != nil {
		f["price_labor"] = *c.PriceLabor
	}
	if c.PriceMaterial != nil {
		f["price_material"] = *c.PriceMaterial
	}
	if c.PriceTotal != nil {
		f["price_total"] = *c.PriceTotal
	}
	if c.Chapter != "" {
		f["chapter"] = c.Chapter
	}
	if c.Section != "" {
		f["section"] = c.Section
	}
	if c.Page != 0 {
		f["page"] = c.Page
	}
	if len(c.Embedding) > 0 {
		f["embedding"] = c.Embedding
	}
	return f
}

// Merge applies the provided fields of update on top of base.
func Merge(base, update CatalogItem) CatalogItem {
	out := base
	out.Code = update.Code
	out.Year = update.Year
	if update.Description != "" {
		out.Description = update.Description
	}
	if update.Unit != "" {
		out.Unit = update.Unit
	}
	if update.PriceLabor != nil {
		v := *update.PriceLabor
		out.PriceLabor = &v
	}
	if update.PriceMaterial != nil {
		v := *update.PriceMaterial
		out.PriceMaterial = &v
	}
	if update.PriceTotal != nil {
		v := *update.PriceTotal
		out.PriceTotal = &v
	}
	if update.Chapter != "" {
		out.Chapter = update.Chapter
	}
	if update.Section != "" {
		out.Section = update.Section
	}
	if update.Page != 0 {
		out.Page = update.Page
	}
	if len(update.Embedding) > 0 {
		out.Embedding = append([]float32(nil), update.Embedding...)
	}
	return out
}

// Price returns a pointer to v, for building items with optional prices.
func Price(v float64) *float64 {
	return &v
}
