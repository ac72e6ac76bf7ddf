package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/raphaelgruber/pricecat/internal/models"
	"gopkg.in/yaml.v3"
)

// DecodeRows parses extracted catalog rows. It accepts a JSON array,
// JSON lines (one object per line) or a YAML list.
func DecodeRows(data []byte) ([]models.CatalogItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []models.CatalogItem{}, nil
	}

	switch trimmed[0] {
	case '[':
		var rows []models.CatalogItem
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("decode json rows: %w", err)
		}
		return rows, nil
	case '{':
		return decodeJSONLines(trimmed)
	default:
		var rows []models.CatalogItem
		if err := yaml.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("decode yaml rows: %w", err)
		}
		return rows, nil
	}
}

func decodeJSONLines(data []byte) ([]models.CatalogItem, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var rows []models.CatalogItem
	for {
		var row models.CatalogItem
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode json line %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
}
