package db

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// Save upserts one catalog item, merging provided fields into the record
// keyed by the item's identity key.
func (c *Client) Save(ctx context.Context, item models.CatalogItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("catalog_item", $key) MERGE $data RETURN NONE
	`, map[string]any{
		"key":  item.Key(),
		"data": item.Fields(),
	})
	if err != nil {
		return fmt.Errorf("save item %s: %w", item.Key(), wrapQueryError(err))
	}
	return nil
}

// SaveBatch upserts items in a single transaction.
func (c *Client) SaveBatch(ctx context.Context, items []models.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(items))
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
		rows[i] = map[string]any{"key": item.Key(), "data": item.Fields()}
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		FOR $row IN $rows {
			UPSERT type::record("catalog_item", $row.key) MERGE $row.data RETURN NONE;
		};
		COMMIT TRANSACTION;
	`, map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("save batch of %d: %w", len(items), wrapQueryError(err))
	}
	return nil
}

// FindByCode returns the most recent edition of code, or nil if absent.
func (c *Client) FindByCode(ctx context.Context, code string) (*models.CatalogItem, error) {
	results, err := surrealdb.Query[[]models.CatalogItem](ctx, c.db, `
		SELECT * FROM catalog_item WHERE code = $code ORDER BY year DESC LIMIT 1
	`, map[string]any{"code": code})
	if err != nil {
		return nil, fmt.Errorf("find item %s: %w", code, err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// Count returns the number of catalog items.
func (c *Client) Count(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct {
		C int `json:"c"`
	}](ctx, c.db, `SELECT count() AS c FROM catalog_item GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}

// FindAll pages through items ordered by identity key.
func (c *Client) FindAll(ctx context.Context, limit, offset int) ([]models.CatalogItem, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid page: limit=%d offset=%d", limit, offset)
	}

	results, err := surrealdb.Query[[]models.CatalogItem](ctx, c.db, `
		SELECT * FROM catalog_item ORDER BY key LIMIT $limit START $offset
	`, map[string]any{"limit": limit, "offset": offset})
	if err != nil {
		return nil, fmt.Errorf("find all at %d: %w", offset, err)
	}

	if results == nil || len(*results) == 0 {
		return []models.CatalogItem{}, nil
	}
	return (*results)[0].Result, nil
}

// SearchBySimilarity returns the nearest embedded items using the HNSW
// index (ef=40), nearest first with ties broken by key.
func (c *Client) SearchBySimilarity(ctx context.Context, embedding []float32, limit int) ([]models.CatalogItem, error) {
	if limit <= 0 {
		return []models.CatalogItem{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT *, vector::distance::knn() AS distance
		FROM catalog_item
		WHERE embedding <|%d,40|> $emb
		ORDER BY distance, key
	`, limit)

	results, err := surrealdb.Query[[]models.CatalogItem](ctx, c.db, sql, map[string]any{"emb": embedding})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.CatalogItem{}, nil
	}
	return (*results)[0].Result, nil
}
