package indexer

import (
	"fmt"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/models"
)

const (
	chunkWords   = 500
	chunkOverlap = 100

	// fallbackChunksPerPage estimates a page count when the document does
	// not report one.
	fallbackChunksPerPage = 2
)

// Chunk is one passage of document text prepared for vector indexing.
type Chunk struct {
	ID         string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Content    string   `json:"content"`
	PageNumber int      `json:"page_number"`
	Filename   string   `json:"filename"`
	EntityRefs []string `json:"entity_refs"`
}

// ChunkText splits markdown into overlapping word-window chunks. Page numbers
// distribute chunk indexes evenly across the known page count. Entities whose
// names appear in a chunk (case-insensitive) are recorded as refs for
// cross-linking.
func ChunkText(markdown, documentID, filename string, entities []*models.Entity, totalPages int) []Chunk {
	words := strings.Fields(markdown)
	if len(words) == 0 {
		return nil
	}

	step := chunkWords - chunkOverlap
	var windows []string
	for start := 0; ; start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		windows = append(windows, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}

	if totalPages <= 0 {
		totalPages = (len(windows) + fallbackChunksPerPage - 1) / fallbackChunksPerPage
		if totalPages < 1 {
			totalPages = 1
		}
	}

	chunks := make([]Chunk, 0, len(windows))
	for i, content := range windows {
		page := i*totalPages/len(windows) + 1
		if page > totalPages {
			page = totalPages
		}
		chunks = append(chunks, Chunk{
			ID:         fmt.Sprintf("%s-chunk-%d", documentID, i),
			DocumentID: documentID,
			Content:    content,
			PageNumber: page,
			Filename:   filename,
			EntityRefs: entityRefs(content, entities),
		})
	}
	return chunks
}

func entityRefs(content string, entities []*models.Entity) []string {
	lower := strings.ToLower(content)
	var refs []string
	for _, entity := range entities {
		name := strings.ToLower(strings.TrimSpace(entity.Name))
		if len(name) < 3 {
			continue
		}
		if strings.Contains(lower, name) {
			refs = append(refs, entity.ID)
		}
	}
	return refs
}
