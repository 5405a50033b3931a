package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore implements Store against a Qdrant server over gRPC.
type QdrantStore struct {
	client *qdrant.Client
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore connects to a Qdrant server. Port is the gRPC port,
// usually 6334.
func NewQdrantStore(host string, port int, apiKey string, useTLS bool) (*QdrantStore, error) {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client for %s:%d: %w", host, port, err)
	}
	return &QdrantStore{client: client}, nil
}

// Upsert implements Store. The collection is created on first write with the
// vector's dimension.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, id string, vec []float32, metadata map[string]any) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", collection, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(len(vec)),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create collection %q: %w", collection, err)
		}
	}

	payload := make(map[string]*qdrant.Value, len(metadata))
	for key, value := range metadata {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return fmt.Errorf("failed to convert metadata key %q: %w", key, err)
		}
		payload[key] = val
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point %q: %w", id, err)
	}
	return nil
}

// Search implements Store.
func (s *QdrantStore) Search(ctx context.Context, collection string, vec []float32, topK int) ([]SearchResult, error) {
	return s.SearchWithFilter(ctx, collection, vec, topK, nil)
}

// SearchWithFilter implements Store.
func (s *QdrantStore) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		req.Filter = buildQdrantFilter(filter)
	}

	resp, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return convertScoredPoints(resp.Result), nil
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func buildQdrantFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: val.GetStringValue()},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func convertScoredPoints(points []*qdrant.ScoredPoint) []SearchResult {
	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		var id string
		if point.Id != nil {
			switch idType := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = idType.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", idType.Num)
			}
		}

		metadata := make(map[string]any, len(point.Payload))
		for key, value := range point.Payload {
			switch v := value.Kind.(type) {
			case *qdrant.Value_StringValue:
				metadata[key] = v.StringValue
			case *qdrant.Value_IntegerValue:
				metadata[key] = v.IntegerValue
			case *qdrant.Value_DoubleValue:
				metadata[key] = v.DoubleValue
			case *qdrant.Value_BoolValue:
				metadata[key] = v.BoolValue
			case *qdrant.Value_ListValue:
				items := make([]any, 0, len(v.ListValue.GetValues()))
				for _, item := range v.ListValue.GetValues() {
					switch iv := item.Kind.(type) {
					case *qdrant.Value_StringValue:
						items = append(items, iv.StringValue)
					case *qdrant.Value_IntegerValue:
						items = append(items, iv.IntegerValue)
					case *qdrant.Value_DoubleValue:
						items = append(items, iv.DoubleValue)
					case *qdrant.Value_BoolValue:
						items = append(items, iv.BoolValue)
					}
				}
				metadata[key] = items
			default:
				metadata[key] = value
			}
		}

		content, _ := metadata[MetaContent].(string)
		results = append(results, SearchResult{
			ID:       id,
			Content:  content,
			Score:    point.Score,
			Metadata: metadata,
		})
	}
	return results
}
