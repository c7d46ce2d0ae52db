// Package semantic owns all vector-index operations for chunk embeddings.
// The production index is Qdrant over gRPC; Memory provides the same
// contract in-process for tests and small corpora.
package semantic

import (
	"context"
	"fmt"

	"github.com/david1005910/Bio2/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

var _ Index = (*VectorStore)(nil)

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the cosine-distance collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores chunk vectors. Called by engine/ingest. Wait is set so the
// write is visible before the caller proceeds to the next stage.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: recordPayload(r),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByPMID removes every chunk vector of a paper. Wait makes the delete
// visible before re-ingestion upserts replacements, so callers never observe
// a mix of old and new chunks.
func (v *VectorStore) DeleteByPMID(ctx context.Context, pmid string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("pmid", pmid),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by pmid %s: %w", pmid, err)
	}
	return nil
}

// Search performs k-NN cosine search with optional native metadata filtering.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int, filters domain.Filters) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	if f := buildFilter(filters); f != nil {
		req.Filter = f
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
		}
		fillFromPayload(&sr, r.GetPayload())
		results[i] = sr
	}
	return results, nil
}

// FetchByPMID returns every stored chunk vector of a paper, used for the
// paper's representative vector in recommendations.
func (v *VectorStore) FetchByPMID(ctx context.Context, pmid string) ([]VectorRecord, error) {
	limit := uint32(256)
	resp, err := v.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: v.collection,
		Filter: &pb.Filter{
			Must: []*pb.Condition{fieldMatch("pmid", pmid)},
		},
		Limit:       &limit,
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors: &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: scroll pmid %s: %w", pmid, err)
	}

	records := make([]VectorRecord, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		var sr SearchResult
		fillFromPayload(&sr, p.GetPayload())
		records = append(records, VectorRecord{
			ID:        p.GetId().GetUuid(),
			Embedding: p.GetVectors().GetVector().GetData(),
			Chunk: domain.Chunk{
				PMID:    sr.PMID,
				Index:   sr.ChunkIndex,
				Section: sr.Section,
				Text:    sr.Text,
			},
			Journal: sr.Journal,
			Year:    sr.Year,
			Title:   sr.Title,
		})
	}
	return records, nil
}

func recordPayload(r VectorRecord) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"pmid":        strValue(r.Chunk.PMID),
		"title":       strValue(r.Title),
		"section":     strValue(r.Chunk.Section),
		"content":     strValue(r.Chunk.Text),
		"chunk_index": intValue(int64(r.Chunk.Index)),
		"token_count": intValue(int64(r.Chunk.TokenCount)),
	}
	if r.Journal != "" {
		payload["journal"] = strValue(r.Journal)
	}
	if r.Year != 0 {
		payload["year"] = intValue(int64(r.Year))
	}
	return payload
}

func fillFromPayload(sr *SearchResult, payload map[string]*pb.Value) {
	for k, val := range payload {
		switch k {
		case "pmid":
			sr.PMID = val.GetStringValue()
		case "title":
			sr.Title = val.GetStringValue()
		case "section":
			sr.Section = val.GetStringValue()
		case "content":
			sr.Text = val.GetStringValue()
		case "chunk_index":
			sr.ChunkIndex = int(val.GetIntegerValue())
		case "journal":
			sr.Journal = val.GetStringValue()
		case "year":
			sr.Year = int(val.GetIntegerValue())
		}
	}
}

// buildFilter translates domain filters into a native Qdrant filter so
// restricted searches avoid a full rescan.
func buildFilter(f domain.Filters) *pb.Filter {
	if f.Empty() {
		return nil
	}
	var must []*pb.Condition
	if f.Section != "" {
		must = append(must, fieldMatch("section", f.Section))
	}
	if len(f.Journals) > 0 {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "journal",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: f.Journals},
						},
					},
				},
			},
		})
	}
	if f.YearStart != 0 || f.YearEnd != 0 {
		rng := &pb.Range{}
		if f.YearStart != 0 {
			gte := float64(f.YearStart)
			rng.Gte = &gte
		}
		if f.YearEnd != 0 {
			lte := float64(f.YearEnd)
			rng.Lte = &lte
		}
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{Key: "year", Range: rng},
			},
		})
	}
	return &pb.Filter{Must: must}
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

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}
