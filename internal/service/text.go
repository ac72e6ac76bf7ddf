package service

import (
	"strconv"
	"strings"

	"github.com/raphaelgruber/pricecat/internal/models"
)

// TextFormatter renders the text that is embedded for a catalog item.
type TextFormatter func(item models.CatalogItem) string

// EmbeddingText is the default TextFormatter. It joins code, location in
// the catalog, description, unit and total price so that queries for any of
// them land near the item.
func EmbeddingText(item models.CatalogItem) string {
	parts := make([]string, 0, 5)
	parts = append(parts, "Code "+item.Code)

	var where []string
	if item.Chapter != "" {
		where = append(where, item.Chapter)
	}
	if item.Section != "" {
		where = append(where, item.Section)
	}
	if len(where) > 0 {
		parts = append(parts, strings.Join(where, " > "))
	}

	if item.Description != "" {
		parts = append(parts, item.Description)
	}
	if item.Unit != "" {
		parts = append(parts, "unit: "+item.Unit)
	}
	parts = append(parts, "total price: "+strconv.FormatFloat(item.Total(), 'f', 2, 64))

	return strings.Join(parts, " | ")
}
