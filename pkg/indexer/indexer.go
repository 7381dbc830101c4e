// Package indexer persists knowledge graphs into the vector store (Qdrant)
// and the graph store (Neo4j), and serves the query surface built on them.
// Either backend may be absent; indexing then reports zero counts and
// searches return empty results, never an upstream failure.
package indexer

import (
	"context"
	"log/slog"

	"github.com/arthanethra/arthanethra/pkg/models"
)

// EntityStats reports how many entities each backend accepted.
type EntityStats struct {
	VectorCount int `json:"vector_count"`
	GraphCount  int `json:"graph_count"`
}

// EdgeStats reports how many edges the graph store accepted.
type EdgeStats struct {
	GraphCount int `json:"graph_count"`
}

// ChunkStats reports how many text chunks were indexed.
type ChunkStats struct {
	ChunksIndexed int `json:"chunks_indexed"`
}

// Indexer coordinates both stores. vector and graph may each be nil when the
// corresponding backend is disabled.
type Indexer struct {
	vector *VectorStore
	graph  *GraphStore
	logger *slog.Logger
}

// New builds an indexer over the configured backends.
func New(vector *VectorStore, graph *GraphStore, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{vector: vector, graph: graph, logger: logger}
}

// GraphAvailable reports whether the graph store backend is configured.
func (ix *Indexer) GraphAvailable() bool { return ix.graph != nil }

// IndexEntities pushes entities into both stores. A failing or absent
// backend contributes a zero count.
func (ix *Indexer) IndexEntities(ctx context.Context, entities []*models.Entity) EntityStats {
	stats := EntityStats{}
	if ix.vector != nil {
		count, err := ix.vector.UpsertEntities(ctx, entities)
		if err != nil {
			ix.logger.Warn("Vector store entity indexing failed", "error", err)
		}
		stats.VectorCount = count
	}
	if ix.graph != nil {
		count, err := ix.graph.UpsertEntities(ctx, entities)
		if err != nil {
			ix.logger.Warn("Graph store entity indexing failed", "error", err)
		}
		stats.GraphCount = count
	}
	ix.logger.Info("Indexed entities", "total", len(entities),
		"vector", stats.VectorCount, "graph", stats.GraphCount)
	return stats
}

// IndexEdges pushes edges into the graph store.
func (ix *Indexer) IndexEdges(ctx context.Context, edges []*models.Edge) EdgeStats {
	stats := EdgeStats{}
	if ix.graph == nil {
		ix.logger.Warn("Graph store not available, skipping edge indexing")
		return stats
	}
	count, err := ix.graph.UpsertEdges(ctx, edges)
	if err != nil {
		ix.logger.Warn("Graph store edge indexing failed", "error", err)
	}
	stats.GraphCount = count
	return stats
}

// IndexDocumentText chunks markdown and pushes the chunks into the vector
// store for semantic passage search.
func (ix *Indexer) IndexDocumentText(ctx context.Context, documentID, markdown, filename string, entities []*models.Entity, totalPages int) ChunkStats {
	stats := ChunkStats{}
	if ix.vector == nil {
		ix.logger.Warn("Vector store not available, skipping document text indexing")
		return stats
	}
	chunks := ChunkText(markdown, documentID, filename, entities, totalPages)
	count, err := ix.vector.UpsertChunks(ctx, chunks)
	if err != nil {
		ix.logger.Warn("Vector store chunk indexing failed", "error", err)
	}
	stats.ChunksIndexed = count
	return stats
}

// SearchEntities runs semantic entity search. An absent or failing vector
// store yields an empty result.
func (ix *Indexer) SearchEntities(ctx context.Context, query string, limit int, graphID string) []EntityHit {
	if ix.vector == nil {
		return nil
	}
	hits, err := ix.vector.SearchEntities(ctx, query, limit, graphID)
	if err != nil {
		ix.logger.Warn("Entity search failed", "error", err)
		return nil
	}
	return hits
}

// SearchChunks runs semantic passage search.
func (ix *Indexer) SearchChunks(ctx context.Context, query string, limit int) []ChunkHit {
	if ix.vector == nil {
		return nil
	}
	hits, err := ix.vector.SearchChunks(ctx, query, limit)
	if err != nil {
		ix.logger.Warn("Chunk search failed", "error", err)
		return nil
	}
	return hits
}

// EntitiesByType fetches typed entities from the graph store.
func (ix *Indexer) EntitiesByType(ctx context.Context, entityType, graphID string, limit int) []EntityRecord {
	if ix.graph == nil {
		ix.logger.Warn("Graph store not available for entity fetch")
		return nil
	}
	records, err := ix.graph.EntitiesByType(ctx, entityType, graphID, limit)
	if err != nil {
		ix.logger.Warn("Entity fetch failed", "type", entityType, "error", err)
		return nil
	}
	return records
}

// Traverse expands the neighborhood of the named entity.
func (ix *Indexer) Traverse(ctx context.Context, name string, depth, limit int) []EntityRecord {
	if ix.graph == nil {
		return nil
	}
	records, err := ix.graph.Neighbors(ctx, name, depth, limit)
	if err != nil {
		ix.logger.Warn("Graph traversal failed", "name", name, "error", err)
		return nil
	}
	return records
}

// FindPath returns the shortest path between two named entities.
func (ix *Indexer) FindPath(ctx context.Context, from, to string) *PathResult {
	if ix.graph == nil {
		return &PathResult{}
	}
	result, err := ix.graph.ShortestPath(ctx, from, to)
	if err != nil {
		ix.logger.Warn("Path query failed", "from", from, "to", to, "error", err)
		return &PathResult{}
	}
	return result
}

// FindPattern returns the most connected entities with at least
// minRelationships relationships.
func (ix *Indexer) FindPattern(ctx context.Context, minRelationships, limit int) []EntityRecord {
	if ix.graph == nil {
		return nil
	}
	records, err := ix.graph.PatternMatch(ctx, minRelationships, limit)
	if err != nil {
		ix.logger.Warn("Pattern query failed", "error", err)
		return nil
	}
	return records
}
