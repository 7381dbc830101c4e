package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

const (
	entityCollection = "FinancialEntity"
	chunkCollection  = "DocumentChunk"
)

// vectorClient mirrors the subset of *qdrant.Client the store uses, so tests
// can substitute a fake.
type vectorClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// VectorStore indexes entities and document chunks in Qdrant.
type VectorStore struct {
	client   vectorClient
	embedder llm.Embedder
	logger   *slog.Logger
}

// NewVectorStore connects to Qdrant at url (host or host:port, gRPC port
// 6334 by default).
func NewVectorStore(url, apiKey string, embedder llm.Embedder, logger *slog.Logger) (*VectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	host, port := splitHostPort(url)
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: false,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return &VectorStore{client: client, embedder: embedder, logger: logger}, nil
}

func splitHostPort(url string) (string, int) {
	url = strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
	host, portRaw, found := strings.Cut(url, ":")
	if host == "" {
		host = "localhost"
	}
	if found {
		if port, err := strconv.Atoi(portRaw); err == nil {
			return host, port
		}
	}
	return host, 6334
}

// EnsureCollections creates the entity and chunk collections when missing.
func (s *VectorStore) EnsureCollections(ctx context.Context) error {
	for _, name := range []string{entityCollection, chunkCollection} {
		exists, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check collection %s: %w", name, err)
		}
		if exists {
			continue
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(llm.EmbedDimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		s.logger.Info("Created vector collection", "collection", name)
	}
	return nil
}

// pointID derives a stable UUID from an entity or chunk id so re-indexing
// overwrites the existing point instead of duplicating it.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// UpsertEntities embeds and upserts one point per entity, vectorized on the
// concatenation of name and serialized properties.
func (s *VectorStore) UpsertEntities(ctx context.Context, entities []*models.Entity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	texts := make([]string, len(entities))
	for i, entity := range entities {
		texts[i] = entityText(entity)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed entities: %w", err)
	}

	points := make([]*qdrant.PointStruct, len(entities))
	for i, entity := range entities {
		properties, _ := json.Marshal(entity.Properties)
		citations, _ := json.Marshal(entity.Citations)
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(entity.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"entityId":   entity.ID,
				"entityType": string(entity.Type),
				"name":       entity.Name,
				"properties": string(properties),
				"citations":  string(citations),
				"documentId": entity.DocumentID,
				"graphId":    entity.GraphID,
			}),
		}
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: entityCollection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("upsert entities: %w", err)
	}
	return len(points), nil
}

func entityText(entity *models.Entity) string {
	properties, _ := json.Marshal(entity.Properties)
	return entity.Name + " " + string(properties)
}

// UpsertChunks embeds and upserts document text chunks.
func (s *VectorStore) UpsertChunks(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		refs, _ := json.Marshal(chunk.EntityRefs)
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(chunk.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunkId":    chunk.ID,
				"documentId": chunk.DocumentID,
				"content":    chunk.Content,
				"pageNumber": int64(chunk.PageNumber),
				"filename":   chunk.Filename,
				"entityRefs": string(refs),
			}),
		}
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: chunkCollection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}
	return len(points), nil
}

// EntityHit is one semantic entity search result.
type EntityHit struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Properties map[string]any    `json:"properties"`
	Citations  []models.Citation `json:"citations,omitempty"`
	DocumentID string            `json:"document_id,omitempty"`
	GraphID    string            `json:"graph_id,omitempty"`
	Score      float32           `json:"score"`
}

// SearchEntities runs nearest-neighbor search over indexed entities,
// optionally restricted to one graph.
func (s *VectorStore) SearchEntities(ctx context.Context, query string, limit int, graphID string) ([]EntityHit, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	request := &qdrant.QueryPoints{
		CollectionName: entityCollection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if graphID != "" {
		request.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("graphId", graphID)},
		}
	}
	points, err := s.client.Query(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}

	hits := make([]EntityHit, 0, len(points))
	for _, point := range points {
		hit := EntityHit{
			ID:         payloadString(point.Payload, "entityId"),
			Name:       payloadString(point.Payload, "name"),
			Type:       payloadString(point.Payload, "entityType"),
			DocumentID: payloadString(point.Payload, "documentId"),
			GraphID:    payloadString(point.Payload, "graphId"),
			Score:      point.Score,
		}
		hit.Properties = decodeJSONMap(payloadString(point.Payload, "properties"))
		if raw := payloadString(point.Payload, "citations"); raw != "" {
			_ = json.Unmarshal([]byte(raw), &hit.Citations)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// ChunkHit is one chunk search result.
type ChunkHit struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Content    string   `json:"content"`
	PageNumber int      `json:"page_number"`
	Filename   string   `json:"filename"`
	EntityRefs []string `json:"entity_refs,omitempty"`
	Score      float32  `json:"score"`
}

// SearchChunks runs nearest-neighbor search over document chunks.
func (s *VectorStore) SearchChunks(ctx context.Context, query string, limit int) ([]ChunkHit, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: chunkCollection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}

	hits := make([]ChunkHit, 0, len(points))
	for _, point := range points {
		hit := ChunkHit{
			ChunkID:    payloadString(point.Payload, "chunkId"),
			DocumentID: payloadString(point.Payload, "documentId"),
			Content:    payloadString(point.Payload, "content"),
			PageNumber: int(payloadInteger(point.Payload, "pageNumber")),
			Filename:   payloadString(point.Payload, "filename"),
			Score:      point.Score,
		}
		if raw := payloadString(point.Payload, "entityRefs"); raw != "" {
			_ = json.Unmarshal([]byte(raw), &hit.EntityRefs)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInteger(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return map[string]any{}
	}
	return decoded
}
