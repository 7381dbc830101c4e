package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/arthanethra/arthanethra/pkg/models"
)

// cypherRunner abstracts query execution so tests can substitute a fake for
// the driver-backed implementation.
type cypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

type driverRunner struct {
	driver neo4j.DriverWithContext
}

func (r *driverRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	return rows, result.Err()
}

func (r *driverRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// GraphStore indexes entities and edges as a Neo4j property graph.
type GraphStore struct {
	runner cypherRunner
	logger *slog.Logger
}

// NewGraphStore connects to Neo4j over bolt.
func NewGraphStore(uri, user, password string, logger *slog.Logger) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphStore{runner: &driverRunner{driver: driver}, logger: logger}, nil
}

// Close releases the underlying driver.
func (s *GraphStore) Close(ctx context.Context) error {
	return s.runner.Close(ctx)
}

// UpsertEntities merges one node per entity keyed by entityId. Properties
// are stored as a JSON string; Neo4j properties cannot nest.
func (s *GraphStore) UpsertEntities(ctx context.Context, entities []*models.Entity) (int, error) {
	const cypher = `
		MERGE (n:Entity {entityId: $entityId})
		SET n.type = $type,
		    n.name = $name,
		    n.properties = $properties,
		    n.documentId = $documentId,
		    n.graphId = $graphId`

	count := 0
	for _, entity := range entities {
		properties, _ := json.Marshal(entity.Properties)
		_, err := s.runner.Run(ctx, cypher, map[string]any{
			"entityId":   entity.ID,
			"type":       string(entity.Type),
			"name":       entity.Name,
			"properties": string(properties),
			"documentId": entity.DocumentID,
			"graphId":    entity.GraphID,
		})
		if err != nil {
			return count, fmt.Errorf("merge entity %s: %w", entity.ID, err)
		}
		count++
	}
	return count, nil
}

// UpsertEdges merges one relationship per edge, typed by the actual edge
// type. Relationship types cannot be parameterized in Cypher, so the type is
// inlined; anything outside the closed edge-type set degrades to RELATED_TO.
func (s *GraphStore) UpsertEdges(ctx context.Context, edges []*models.Edge) (int, error) {
	count := 0
	for _, edge := range edges {
		edgeType := edge.Type
		if !edgeType.IsValid() {
			edgeType = models.EdgeRelatedTo
		}
		cypher := fmt.Sprintf(`
			MATCH (a:Entity {entityId: $source})
			MATCH (b:Entity {entityId: $target})
			MERGE (a)-[r:%s {edgeId: $edgeId}]->(b)
			SET r.properties = $properties,
			    r.graphId = $graphId`, edgeType)

		properties, _ := json.Marshal(edge.Properties)
		_, err := s.runner.Run(ctx, cypher, map[string]any{
			"source":     edge.Source,
			"target":     edge.Target,
			"edgeId":     edge.ID,
			"properties": string(properties),
			"graphId":    edge.GraphID,
		})
		if err != nil {
			return count, fmt.Errorf("merge edge %s: %w", edge.ID, err)
		}
		count++
	}
	return count, nil
}

// EntityRecord is a normalized node row returned by graph queries.
type EntityRecord struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Type              string         `json:"type"`
	Properties        map[string]any `json:"properties"`
	GraphID           string         `json:"graph_id,omitempty"`
	RelationshipCount int            `json:"relationship_count,omitempty"`
}

// EntitiesByType fetches nodes of one type. When the graph-id filter matches
// nothing the query is retried unfiltered, since older graphs may predate
// graph tagging.
func (s *GraphStore) EntitiesByType(ctx context.Context, entityType, graphID string, limit int) ([]EntityRecord, error) {
	if limit < 1 {
		limit = 1
	}
	const filtered = `
		MATCH (e:Entity)
		WHERE e.type = $entityType AND e.graphId = $graphId
		RETURN e.entityId AS id, e.name AS name, e.type AS type,
		       e.properties AS properties, e.graphId AS graphId
		LIMIT $limit`
	const unfiltered = `
		MATCH (e:Entity)
		WHERE e.type = $entityType
		RETURN e.entityId AS id, e.name AS name, e.type AS type,
		       e.properties AS properties, e.graphId AS graphId
		LIMIT $limit`

	if graphID != "" {
		rows, err := s.runner.Run(ctx, filtered, map[string]any{
			"entityType": entityType,
			"graphId":    graphID,
			"limit":      limit,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch entities by type: %w", err)
		}
		if len(rows) > 0 {
			return entityRecords(rows), nil
		}
		s.logger.Warn("No entities for graph, retrying unfiltered", "type", entityType, "graph_id", graphID)
	}
	rows, err := s.runner.Run(ctx, unfiltered, map[string]any{
		"entityType": entityType,
		"limit":      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch entities by type: %w", err)
	}
	return entityRecords(rows), nil
}

// Neighbors expands relationships around the named entity up to depth hops.
func (s *GraphStore) Neighbors(ctx context.Context, name string, depth, limit int) ([]EntityRecord, error) {
	if depth < 1 {
		depth = 1
	}
	if limit < 1 {
		limit = 25
	}
	// Variable-length bounds cannot be parameters in Cypher.
	cypher := fmt.Sprintf(`
		MATCH (start:Entity)-[*1..%d]-(n:Entity)
		WHERE toLower(start.name) = toLower($name)
		RETURN DISTINCT n.entityId AS id, n.name AS name, n.type AS type,
		       n.properties AS properties, n.graphId AS graphId
		LIMIT $limit`, depth)

	rows, err := s.runner.Run(ctx, cypher, map[string]any{
		"name":  name,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("traverse from %s: %w", name, err)
	}
	return entityRecords(rows), nil
}

// PathResult describes a shortest path between two named entities.
type PathResult struct {
	Found         bool     `json:"found"`
	Nodes         []string `json:"nodes,omitempty"`
	Relationships []string `json:"relationships,omitempty"`
	Length        int      `json:"length"`
	Missing       []string `json:"missing,omitempty"`
}

// ShortestPath returns the shortest undirected path between two entities by
// name. Both endpoints are checked for existence first so a missing entity
// is reported instead of an empty path.
func (s *GraphStore) ShortestPath(ctx context.Context, from, to string) (*PathResult, error) {
	const existsQuery = `
		MATCH (e:Entity)
		WHERE toLower(e.name) = toLower($name)
		RETURN count(e) AS count`

	result := &PathResult{}
	for _, name := range []string{from, to} {
		rows, err := s.runner.Run(ctx, existsQuery, map[string]any{"name": name})
		if err != nil {
			return nil, fmt.Errorf("check entity %s: %w", name, err)
		}
		if len(rows) == 0 || asInt(rows[0]["count"]) == 0 {
			result.Missing = append(result.Missing, name)
		}
	}
	if len(result.Missing) > 0 {
		return result, nil
	}

	const pathQuery = `
		MATCH (a:Entity), (b:Entity)
		WHERE toLower(a.name) = toLower($from) AND toLower(b.name) = toLower($to)
		MATCH p = shortestPath((a)-[*..10]-(b))
		RETURN [n IN nodes(p) | n.name] AS names,
		       [rel IN relationships(p) | type(rel)] AS types,
		       length(p) AS hops
		LIMIT 1`

	rows, err := s.runner.Run(ctx, pathQuery, map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, fmt.Errorf("shortest path %s to %s: %w", from, to, err)
	}
	if len(rows) == 0 {
		return result, nil
	}
	result.Found = true
	result.Nodes = asStrings(rows[0]["names"])
	result.Relationships = asStrings(rows[0]["types"])
	result.Length = asInt(rows[0]["hops"])
	return result, nil
}

// PatternMatch returns entities participating in at least minRelationships
// relationships, most connected first.
func (s *GraphStore) PatternMatch(ctx context.Context, minRelationships, limit int) ([]EntityRecord, error) {
	if minRelationships < 1 {
		minRelationships = 1
	}
	if limit < 1 {
		limit = 25
	}
	const cypher = `
		MATCH (e:Entity)-[r]-()
		WITH e, count(r) AS rels
		WHERE rels >= $min
		RETURN e.entityId AS id, e.name AS name, e.type AS type,
		       e.properties AS properties, e.graphId AS graphId,
		       rels AS relationshipCount
		ORDER BY rels DESC
		LIMIT $limit`

	rows, err := s.runner.Run(ctx, cypher, map[string]any{
		"min":   minRelationships,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("pattern match: %w", err)
	}
	return entityRecords(rows), nil
}

func entityRecords(rows []map[string]any) []EntityRecord {
	records := make([]EntityRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, EntityRecord{
			ID:                asString(row["id"]),
			Name:              asString(row["name"]),
			Type:              asString(row["type"]),
			Properties:        decodeProperties(row["properties"]),
			GraphID:           asString(row["graphId"]),
			RelationshipCount: asInt(row["relationshipCount"]),
		})
	}
	return records
}

// decodeProperties tolerates both JSON-string properties written by this
// service and plain maps written by external tooling.
func decodeProperties(value any) map[string]any {
	switch v := value.(type) {
	case string:
		return decodeJSONMap(v)
	case map[string]any:
		return v
	default:
		return map[string]any{}
	}
}

func asString(value any) string {
	s, _ := value.(string)
	return s
}

func asInt(value any) int {
	switch v := value.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func asStrings(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, asString(item))
	}
	return out
}
