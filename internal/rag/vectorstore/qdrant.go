package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragcore/internal/apperr"
)

// payloadIDField stores the caller's original point id in the payload,
// since Qdrant point ids must be either a UUID or a positive integer.
const payloadIDField = "_original_id"

// QdrantStore talks to a local Qdrant instance over gRPC for vector data
// and plain HTTP for the health check, per §4.E.
type QdrantStore struct {
	client     *qdrant.Client
	healthURL  string
	httpClient *http.Client
}

// NewQdrantStore dials host:grpcPort for data operations; restPort is used
// only for the REST health check Ping performs.
func NewQdrantStore(host string, grpcPort, restPort int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: grpcPort})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create qdrant client: %w", err)
	}
	return &QdrantStore{
		client:     client,
		healthURL:  fmt.Sprintf("http://%s:%d/healthz", host, restPort),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func (q *QdrantStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "check qdrant collection", err)
	}
	if exists {
		return nil
	}
	if dimension <= 0 {
		return apperr.New(apperr.ValidationFailed, "vectorstore: dimension must be > 0 to create a collection")
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "create qdrant collection", err)
	}
	return nil
}

func (q *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "list qdrant collections", err)
	}
	return names, nil
}

func (q *QdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	if err := q.client.DeleteCollection(ctx, collection); err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "delete qdrant collection", err)
	}
	return nil
}

func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pbPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &qdrant.PointStruct{
			Id:      qdrantPointID(p.ID),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: qdrant.NewValueMap(metadataToPayload(p.ID, p.Metadata)),
		}
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         pbPoints,
	})
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "upsert qdrant points", err)
	}
	return nil
}

func (q *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrantPointID(id)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "delete qdrant points", err)
	}
	return nil
}

func (q *QdrantStore) Search(ctx context.Context, collection string, vector []float32, k int, minScore float64) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "query qdrant", err)
	}

	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		score := float64(hit.Score)
		if score < minScore {
			continue
		}
		id, metadata := payloadToMetadata(hit.Id, hit.Payload)
		out = append(out, SearchResult{ID: id, Score: score, Metadata: metadata})
	}
	return out, nil
}

func (q *QdrantStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "qdrant health check", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return apperr.New(apperr.BackendUnavailable, fmt.Sprintf("qdrant health check returned %s", resp.Status))
	}
	return nil
}

func (q *QdrantStore) Close() error {
	return q.client.Close()
}

func qdrantPointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func metadataToPayload(originalID string, metadata map[string]string) map[string]any {
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[payloadIDField] = originalID
	return payload
}

func payloadToMetadata(pointID *qdrant.PointId, payload map[string]*qdrant.Value) (string, map[string]string) {
	metadata := make(map[string]string)
	var originalID string
	for k, v := range payload {
		if k == payloadIDField {
			originalID = v.GetStringValue()
			continue
		}
		metadata[k] = v.GetStringValue()
	}
	if originalID != "" {
		return originalID, metadata
	}
	if pointID != nil {
		if u := pointID.GetUuid(); u != "" {
			return u, metadata
		}
	}
	return "", metadata
}
