package qdrant

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/pricecat/internal/models"
)

func TestPointID_StablePerKey(t *testing.T) {
	a := PointID("2024_A01").GetUuid()
	b := PointID("2024_A01").GetUuid()
	c := PointID("2025_A01").GetUuid()

	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestToPoint_PayloadRoundTrip(t *testing.T) {
	item := models.CatalogItem{
		Code:        "A01",
		Year:        2024,
		Description: "Excavation",
		Unit:        "m3",
		PriceLabor:  models.Price(4.5),
		PriceTotal:  models.Price(10),
		Chapter:     "Earthworks",
		Page:        12,
	}

	p := toPoint(item)
	require.NotNil(t, p.GetPayload())
	assert.Equal(t, PointID("2024_A01").GetUuid(), p.GetId().GetUuid())
	assert.Equal(t, "2024_A01", p.GetPayload()["key"].GetStringValue())
	assert.NotContains(t, p.GetPayload(), "section")
	assert.NotContains(t, p.GetPayload(), "price_material")
	assert.NotContains(t, p.GetPayload(), "embedding")

	got := itemFromPoint(p.GetPayload(), nil)
	assert.Equal(t, item, got)
}

func TestToPoint_UnembeddedHasNoNamedVector(t *testing.T) {
	p := toPoint(models.CatalogItem{Code: "A01", Year: 2024})
	assert.Empty(t, p.GetVectors().GetVectors().GetVectors())

	p = toPoint(models.CatalogItem{Code: "A01", Year: 2024, Embedding: []float32{1, 0}})
	assert.Contains(t, p.GetVectors().GetVectors().GetVectors(), VectorName)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		name string
		in   *pb.Value
		want float64
	}{
		{"double", &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: 2.5}}, 2.5},
		{"integer", &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: 3}}, 3},
		{"string", &pb.Value{Kind: &pb.Value_StringValue{StringValue: "3"}}, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, number(tt.in))
		})
	}
}

func TestNamedVector_Missing(t *testing.T) {
	assert.Nil(t, namedVector(nil))
}
