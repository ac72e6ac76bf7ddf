// Package qdrant is a CatalogStore backed by a Qdrant collection over gRPC.
//
// Each catalog item is one point. The point id is derived from the identity
// key, the item fields live in the payload and the embedding is stored under
// a named vector so unembedded items can be kept in the same collection.
package qdrant

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/raphaelgruber/pricecat/internal/models"
)

// VectorName is the named vector holding item embeddings.
const VectorName = "catalog"

// Store owns all Qdrant operations for one collection.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string

	// cursors maps a FindAll offset to the point id that starts it.
	mu      sync.Mutex
	cursors map[int]*pb.PointId
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr, collection string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		cursors:     make(map[int]*pb.PointId),
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{
					Map: map[string]*pb.VectorParams{
						VectorName: {Size: uint64(dims), Distance: pb.Distance_Cosine},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	return nil
}

// DeleteCollection drops the collection and forgets cached cursors.
func (s *Store) DeleteCollection(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("qdrant: delete collection %s: %w", s.collection, err)
	}
	s.resetCursors()
	return nil
}

// Save upserts one item.
func (s *Store) Save(ctx context.Context, item models.CatalogItem) error {
	return s.SaveBatch(ctx, []models.CatalogItem{item})
}

// SaveBatch merges items into their stored points. Existing points are read
// first so absent fields keep their stored values. Qdrant has no multi-point
// transaction; a retried batch converges to the same points.
func (s *Store) SaveBatch(ctx context.Context, items []models.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}

	ids := make([]*pb.PointId, len(items))
	for i, item := range items {
		ids[i] = PointID(item.Key())
	}
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            ids,
		WithPayload:    withPayload(),
		WithVectors:    withVectors(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: get %d points: %w", len(ids), err)
	}
	existing := make(map[string]models.CatalogItem, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		item := itemFromPoint(p.GetPayload(), p.GetVectors())
		existing[item.Key()] = item
	}

	// Later items in the same batch merge on top of earlier ones.
	merged := make(map[string]models.CatalogItem, len(items))
	order := make([]string, 0, len(items))
	inserted := false
	for _, item := range items {
		key := item.Key()
		base, seen := merged[key]
		if !seen {
			order = append(order, key)
			var ok bool
			base, ok = existing[key]
			if !ok {
				inserted = true
			}
		}
		merged[key] = models.Merge(base, item)
	}

	points := make([]*pb.PointStruct, 0, len(order))
	for _, key := range order {
		points = append(points, toPoint(merged[key]))
	}

	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}
	if inserted {
		s.resetCursors()
	}
	return nil
}

// FindByCode returns the highest-year item stored under code.
func (s *Store) FindByCode(ctx context.Context, code string) (*models.CatalogItem, error) {
	var (
		found  *models.CatalogItem
		offset *pb.PointId
		limit  uint32 = 100
	)
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         &pb.Filter{Must: []*pb.Condition{fieldMatch("code", code)}},
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    withPayload(),
			WithVectors:    withVectors(),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll code %s: %w", code, err)
		}
		for _, p := range resp.GetResult() {
			item := itemFromPoint(p.GetPayload(), p.GetVectors())
			if found == nil || item.Year > found.Year {
				found = &item
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return found, nil
		}
	}
}

func (s *Store) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	// A traversal is bounded by this count; other writers may have moved
	// every cursor cached before it.
	s.resetCursors()
	return int(resp.GetResult().GetCount()), nil
}

// FindAll pages through points in point id order. Qdrant only pages by
// cursor, so the cursor reached at the end of each page is cached under its
// offset; a cold offset is located with one payload-free scroll. The cache
// lives for one traversal: offset 0 and Count both drop it.
func (s *Store) FindAll(ctx context.Context, limit, offset int) ([]models.CatalogItem, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid page: limit=%d offset=%d", limit, offset)
	}

	start, ok, err := s.cursorAt(ctx, offset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []models.CatalogItem{}, nil
	}

	n := uint32(limit)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collection,
		Offset:         start,
		Limit:          &n,
		WithPayload:    withPayload(),
		WithVectors:    withVectors(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll offset %d: %w", offset, err)
	}

	out := make([]models.CatalogItem, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		out = append(out, itemFromPoint(p.GetPayload(), p.GetVectors()))
	}
	s.rememberCursor(offset+len(out), resp.GetNextPageOffset())
	return out, nil
}

// SearchBySimilarity returns the closest embedded items. Only points that
// carry the named vector are candidates.
func (s *Store) SearchBySimilarity(ctx context.Context, embedding []float32, limit int) ([]models.CatalogItem, error) {
	if limit <= 0 {
		return []models.CatalogItem{}, nil
	}

	name := VectorName
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		VectorName:     &name,
		Limit:          uint64(limit),
		WithPayload:    withPayload(),
		WithVectors:    withVectors(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	type scored struct {
		item  models.CatalogItem
		score float32
	}
	hits := make([]scored, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		hits = append(hits, scored{item: itemFromPoint(r.GetPayload(), r.GetVectors()), score: r.GetScore()})
	}
	// Cosine score is 1 - distance: higher first, key breaks ties.
	slices.SortStableFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.item.Key(), b.item.Key())
	})

	out := make([]models.CatalogItem, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out, nil
}

// cursorAt returns the scroll start for offset. ok is false when offset is
// past the last point.
func (s *Store) cursorAt(ctx context.Context, offset int) (*pb.PointId, bool, error) {
	if offset == 0 {
		s.resetCursors()
		return nil, true, nil
	}

	s.mu.Lock()
	id, cached := s.cursors[offset]
	s.mu.Unlock()
	if cached {
		return id, id != nil, nil
	}

	n := uint32(offset)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collection,
		Limit:          &n,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false}},
	})
	if err != nil {
		return nil, false, fmt.Errorf("qdrant: locate offset %d: %w", offset, err)
	}
	next := resp.GetNextPageOffset()
	s.rememberCursor(offset, next)
	return next, next != nil, nil
}

func (s *Store) rememberCursor(offset int, id *pb.PointId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[offset] = id
}

func (s *Store) resetCursors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cursors)
}

// PointID derives the stable point id for an identity key.
func PointID(key string) *pb.PointId {
	return &pb.PointId{
		PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()},
	}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func withVectors() *pb.WithVectorsSelector {
	return &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
