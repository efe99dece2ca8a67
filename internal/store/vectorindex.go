// Package store implements the Registry Store (spec C1): a relational half
// (Postgres, via PGStore over pgx) for StagingItem/Grant/Extraction/Embedding rows, and
// a vector half (Qdrant) for similarity search over Extraction summaries.
package store

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorIndex is the sole owner of all Qdrant operations for this pipeline.
// One point per Extraction, keyed by a UUID derived from the extraction ID.
type VectorIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// NewVectorIndex creates a VectorIndex connected to Qdrant at the given gRPC address.
func NewVectorIndex(addr string, collection string) (*VectorIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dial qdrant %s: %w", addr, err)
	}
	return &VectorIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorIndex) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorIndex) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorindex: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Record is one vector point: an Extraction's embedding plus the metadata
// fields that hybrid search filters on.
type Record struct {
	ExtractionID string
	Embedding    []float32
	Payload      map[string]any
}

// Upsert stores embedding records into Qdrant, keyed by a deterministic
// UUID derived from the extraction ID so re-ingestion overwrites in place.
func (v *VectorIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, val := range r.Payload {
			payload[k] = toQdrantValue(val)
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(r.ExtractionID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: upsert %d points: %w", len(records), err)
	}
	return nil
}

// DeleteByExtraction removes the point for an extraction. The pipeline itself
// never calls it: re-embedding overwrites the point in place via Upsert.
func (v *VectorIndex) DeleteByExtraction(ctx context.Context, extractionID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(extractionID)}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete extraction %s: %w", extractionID, err)
	}
	return nil
}

// SearchResult is one hit from a similarity search.
type SearchResult struct {
	ExtractionID string
	GrantID      string
	Score        float32
	Summary      string
	Meta         map[string]string
}

// Filter composes the AND-ed metadata constraints a hybrid search applies
// alongside the vector similarity ranking.
type Filter struct {
	Keyword map[string]string // exact-match payload fields (instrument, procedure, nuts_code, ...)
	Bool    map[string]bool   // exact-match boolean payload fields (the embed stage writes none)
}

// Search performs a k-NN similarity search with optional metadata filters
// and an optional similarity floor, implementing spec's hybrid search
// (vector similarity AND metadata filter) plus its min_similarity cutoff.
// minSimilarity <= 0 applies no threshold. Scores are clamped to [0,1]:
// Qdrant's cosine score can drift fractionally outside that range due to
// floating point error, and spec's min_similarity contract assumes a
// normalized [0,1] scale.
func (v *VectorIndex) Search(ctx context.Context, embedding []float32, topK int, minSimilarity float32, filter Filter) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if minSimilarity > 0 {
		req.ScoreThreshold = &minSimilarity
	}

	var must []*pb.Condition
	for k, val := range filter.Keyword {
		must = append(must, keywordMatch(k, val))
	}
	for k, val := range filter.Bool {
		must = append(must, boolMatch(k, val))
	}
	if len(must) > 0 {
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		score := r.GetScore()
		switch {
		case score < 0:
			score = 0
		case score > 1:
			score = 1
		}
		sr := SearchResult{Score: score, Meta: make(map[string]string)}
		for k, val := range r.GetPayload() {
			s := val.GetStringValue()
			switch k {
			case "extraction_id":
				sr.ExtractionID = s
			case "grant_id":
				sr.GrantID = s
			case "summary":
				sr.Summary = s
			default:
				if s != "" {
					sr.Meta[k] = s
				}
			}
		}
		results[i] = sr
	}
	return results, nil
}

// VectorByExtraction fetches the raw stored vector for an extraction's
// point, letting find_similar reuse an existing embedding instead of
// re-embedding its summary text (spec §4.1 find_similar).
func (v *VectorIndex) VectorByExtraction(ctx context.Context, extractionID string) ([]float32, error) {
	withVectors := &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}}
	resp, err := v.points.Get(ctx, &pb.GetPoints{
		CollectionName: v.collection,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(extractionID)}}},
		WithVectors:    withVectors,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: get point for extraction %s: %w", extractionID, err)
	}
	points := resp.GetResult()
	if len(points) == 0 {
		return nil, fmt.Errorf("vectorindex: no point stored for extraction %s", extractionID)
	}
	return points[0].GetVectors().GetVector().GetData(), nil
}

func toQdrantValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func keywordMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func boolMatch(key string, value bool) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: value}},
			},
		},
	}
}

// pointID derives a deterministic Qdrant point UUID from an extraction ID so
// re-upserting the same extraction overwrites rather than duplicates.
func pointID(extractionID string) string {
	return deterministicUUID("extraction", extractionID)
}
