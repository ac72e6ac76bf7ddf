package service

import (
	"context"
	"fmt"
)

// CatalogStats summarizes how much of the catalog is searchable.
type CatalogStats struct {
	Items    int `json:"items"`
	Embedded int `json:"embedded"`
}

// CollectStats counts items and walks the catalog to count embedded ones.
func CollectStats(ctx context.Context, store CatalogStore, pageSize int) (CatalogStats, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	var stats CatalogStats
	total, err := store.Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: count items: %w", ErrStore, err)
	}
	stats.Items = total

	for offset := 0; offset < total; {
		page, err := store.FindAll(ctx, pageSize, offset)
		if err != nil {
			return stats, fmt.Errorf("%w: find all at %d: %w", ErrStore, offset, err)
		}
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			if item.HasEmbedding() {
				stats.Embedded++
			}
		}
		offset += len(page)
	}
	return stats, nil
}
