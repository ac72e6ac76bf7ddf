package qdrant

import (
	"context"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// scrollRecorder answers Count with a fixed total and every Scroll with
// page points and next as the following cursor. It records each scroll start.
type scrollRecorder struct {
	pb.PointsClient
	total  uint64
	page   int
	next   *pb.PointId
	starts []*pb.PointId
}

func (r *scrollRecorder) Count(context.Context, *pb.CountPoints, ...grpc.CallOption) (*pb.CountResponse, error) {
	return &pb.CountResponse{Result: &pb.CountResult{Count: r.total}}, nil
}

func (r *scrollRecorder) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	r.starts = append(r.starts, in.GetOffset())
	points := make([]*pb.RetrievedPoint, r.page)
	for i := range points {
		points[i] = &pb.RetrievedPoint{Id: PointID("p")}
	}
	return &pb.ScrollResponse{Result: points, NextPageOffset: r.next}, nil
}

func storeWithStaleCursor(r *scrollRecorder, offset int) *Store {
	return &Store{
		points:     r,
		collection: "catalog_test",
		cursors:    map[int]*pb.PointId{offset: PointID("stale")},
	}
}

func TestCountDropsCachedCursors(t *testing.T) {
	ctx := context.Background()
	rec := &scrollRecorder{total: 4, next: PointID("fresh")}
	s := storeWithStaleCursor(rec, 2)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = s.FindAll(ctx, 2, 2)
	require.NoError(t, err)

	// One scroll to locate offset 2, one to read the page from there.
	require.Len(t, rec.starts, 2)
	assert.Nil(t, rec.starts[0])
	assert.Equal(t, PointID("fresh").GetUuid(), rec.starts[1].GetUuid())
}

func TestFindAllFromStartDropsCachedCursors(t *testing.T) {
	ctx := context.Background()
	rec := &scrollRecorder{page: 2, next: PointID("fresh")}
	s := storeWithStaleCursor(rec, 4)

	items, err := s.FindAll(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// Offset 4 was cached by an earlier traversal, so it is located again.
	_, err = s.FindAll(ctx, 2, 4)
	require.NoError(t, err)

	require.Len(t, rec.starts, 3)
	assert.Nil(t, rec.starts[0])
	assert.Nil(t, rec.starts[1])
	assert.Equal(t, PointID("fresh").GetUuid(), rec.starts[2].GetUuid())
}
