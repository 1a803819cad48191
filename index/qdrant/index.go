package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/viant/docvec"
	"github.com/viant/docvec/index"
	"github.com/viant/docvec/vector"
)

// idField carries the docvec id in the point payload, since Qdrant only
// accepts UUID or integer point ids.
const idField = "docvec_id"

// namespace derives stable point UUIDs for ids that are not UUIDs.
var namespace = uuid.MustParse("6f1c0d3e-8a4b-4c55-9d8e-2b7f1a3c9e40")

// Index is a vector index stored in one Qdrant collection. Ties are ordered
// the way Qdrant returns them.
type Index struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// Collection returns the Qdrant collection name.
func (i *Index) Collection() string { return i.collection }

// Put upserts the vector for id and waits for the write to be applied.
func (i *Index) Put(ctx context.Context, id string, vec []float32) error {
	if len(vec) != i.dim {
		return fmt.Errorf("%w: qdrant: vector has %d values, index dimension is %d", docvec.ErrDimensionMismatch, len(vec), i.dim)
	}
	_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(map[string]any{idField: id}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to upsert %s: %w", id, err)
	}
	return nil
}

// Remove deletes the point for id. Deleting an absent point succeeds.
func (i *Index) Remove(ctx context.Context, id string) error {
	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointID(id)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to delete %s: %w", id, err)
	}
	return nil
}

// Get fetches the stored vector for id.
func (i *Index) Get(ctx context.Context, id string) ([]float32, error) {
	points, err := i.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: i.collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to get %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: qdrant: id %q", docvec.ErrNotFound, id)
	}
	return vector.Clone(points[0].GetVectors().GetVector().GetData()), nil
}

// Query runs a nearest-neighbour query, restricted to candidates by a HasId
// condition when candidates is non-nil.
func (i *Index) Query(ctx context.Context, query []float32, k int, candidates index.Set) ([]index.Match, error) {
	if k <= 0 || (candidates != nil && len(candidates) == 0) {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("%w: qdrant: query has %d values, index dimension is %d", docvec.ErrDimensionMismatch, len(query), i.dim)
	}
	if vector.Magnitude(query) == 0 {
		return nil, nil
	}
	limit := uint64(k)
	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		Filter:         candidateFilter(candidates),
		WithPayload:    qdrant.NewWithPayloadInclude(idField),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query failed: %w", err)
	}
	out := make([]index.Match, 0, len(points))
	for _, p := range points {
		out = append(out, index.Match{ID: docID(p.GetPayload(), p.GetId()), Score: float64(p.GetScore())})
	}
	return out, nil
}

// listPage is the number of points read per scroll request.
const listPage = 256

// List scrolls every point of the collection and returns the docvec ids.
func (i *Index) List(ctx context.Context) ([]string, error) {
	// one extra point per page carries the (inclusive) offset of the next page
	limit := uint32(listPage + 1)
	var (
		out    []string
		offset *qdrant.PointId
	)
	for {
		points, err := i.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: i.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayloadInclude(idField),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: failed to scroll %s: %w", i.collection, err)
		}
		page := points
		if len(points) > listPage {
			page = points[:listPage]
		}
		for _, p := range page {
			out = append(out, docID(p.GetPayload(), p.GetId()))
		}
		if len(points) <= listPage {
			return out, nil
		}
		offset = points[listPage].GetId()
	}
}

// docID recovers the docvec id of a point.
func docID(payload map[string]*qdrant.Value, id *qdrant.PointId) string {
	if v := payload[idField].GetStringValue(); v != "" {
		return v
	}
	return id.GetUuid()
}

// Close is a no-op; the connection belongs to the Client.
func (i *Index) Close() error { return nil }

// pointID maps a docvec id to a Qdrant point id. UUIDs are used as is, any
// other id gets a name-based UUID.
func pointID(id string) *qdrant.PointId {
	if u, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(u.String())
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(namespace, []byte(id)).String())
}

func candidateFilter(candidates index.Set) *qdrant.Filter {
	if candidates == nil {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, pointID(id))
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewHasID(ids...)}}
}

var (
	_ index.Index  = (*Index)(nil)
	_ index.Lister = (*Index)(nil)
)
