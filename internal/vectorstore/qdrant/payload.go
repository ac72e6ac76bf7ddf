package qdrant

import (
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/raphaelgruber/pricecat/internal/models"
)

// toPoint converts a merged item into a point. The embedding goes into the
// named vector, everything else into the payload.
func toPoint(item models.CatalogItem) *pb.PointStruct {
	fields := item.Fields()
	delete(fields, "embedding")

	vectors := map[string]*pb.Vector{}
	if item.HasEmbedding() {
		vectors[VectorName] = &pb.Vector{Data: item.Embedding}
	}

	return &pb.PointStruct{
		Id:      PointID(item.Key()),
		Payload: toPayload(fields),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vectors{
				Vectors: &pb.NamedVectors{Vectors: vectors},
			},
		},
	}
}

func toPayload(fields map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(fields))
	for k, val := range fields {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		case nil:
			continue
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

// itemFromPoint rebuilds an item from a stored payload and its vectors.
func itemFromPoint(payload map[string]*pb.Value, vectors *pb.VectorsOutput) models.CatalogItem {
	item := models.CatalogItem{
		Code:        payload["code"].GetStringValue(),
		Year:        int(payload["year"].GetIntegerValue()),
		Description: payload["description"].GetStringValue(),
		Unit:        payload["unit"].GetStringValue(),
		Chapter:     payload["chapter"].GetStringValue(),
		Section:     payload["section"].GetStringValue(),
		Page:        int(payload["page"].GetIntegerValue()),
	}
	if v, ok := payload["price_labor"]; ok {
		item.PriceLabor = models.Price(number(v))
	}
	if v, ok := payload["price_material"]; ok {
		item.PriceMaterial = models.Price(number(v))
	}
	if v, ok := payload["price_total"]; ok {
		item.PriceTotal = models.Price(number(v))
	}
	item.Embedding = namedVector(vectors)
	return item
}

// number reads a numeric payload value; whole-number doubles may come back
// as integers.
func number(v *pb.Value) float64 {
	switch k := v.GetKind().(type) {
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_IntegerValue:
		return float64(k.IntegerValue)
	default:
		return 0
	}
}

func namedVector(vectors *pb.VectorsOutput) []float32 {
	v, ok := vectors.GetVectors().GetVectors()[VectorName]
	if !ok {
		return nil
	}
	if data := v.GetDense().GetData(); len(data) > 0 {
		return data
	}
	return v.GetData()
}
