package parsers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

const (
	maxNarrativeEntities = 200
	maxRiskEntities      = 50
	narrativeChunkSize   = 1000
	narrativeMinChunk    = 50
	narrativePromptLimit = 1500
)

var (
	organizationPattern = regexp.MustCompile(`\b([A-Z][A-Za-z&\.\s]{1,40}(?:Inc|LLC|Ltd|Corp|Corporation|Company|Group|Holdings|Partners|Bank|Capital|Fund)\.?)`)
	moneyPattern        = regexp.MustCompile(`\$\s*[\d,]+(?:\.\d{1,2})?(?:\s*(?:million|billion|trillion|thousand|M|B|K))?`)
	narrativeDatePattern = regexp.MustCompile(`\b((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\b(?:19|20)\d{2}\b)`)
	personPattern       = regexp.MustCompile(`\b((?:Mr|Mrs|Ms|Dr)\.?\s+[A-Z][a-z]+\s+[A-Z][a-z]+)`)
	locationPattern     = regexp.MustCompile(`\b(New York|Los Angeles|Chicago|Houston|London|Tokyo|Singapore|Hong Kong|San Francisco|Boston|Seattle|Dallas|Atlanta|Miami|Denver|Toronto|Frankfurt|Paris|Zurich|Dubai)\b`)

	firstSentencePattern = regexp.MustCompile(`^([^.!?]{20,250})[.!?]`)
)

// narrativeRecognizers pair each recognition pattern with the source label
// recorded on its entities and the resulting entity type.
var narrativeRecognizers = []struct {
	pattern    *regexp.Regexp
	sourceType string
	entityType models.EntityType
}{
	{organizationPattern, "ORGANIZATION", models.EntityCompany},
	{moneyPattern, "MONEY", models.EntityMetric},
	{narrativeDatePattern, "DATE", models.EntityMetric},
	{personPattern, "PERSON", models.EntityPerson},
	{locationPattern, "LOCATION", models.EntityLocation},
}

// ParseNarrative is the pattern mode: fixed entity-recognition regexes over
// the text plus risk entities derived from paragraph lead sentences. It needs
// no LLM and is the fallback when one is unavailable.
func ParseNarrative(markdown, documentID, graphID string) []*models.Entity {
	text := StripHTML(markdown)
	var entities []*models.Entity
	seen := make(map[string]bool)

	for _, rec := range narrativeRecognizers {
		for _, m := range rec.pattern.FindAllString(text, -1) {
			if len(entities) >= maxNarrativeEntities {
				break
			}
			name := strings.TrimSpace(m)
			if len(name) < 3 || seen[name] {
				continue
			}
			seen[name] = true
			entities = append(entities, &models.Entity{
				ID:   models.NewEntityID(),
				Type: rec.entityType,
				Name: name,
				Properties: map[string]any{
					"extracted_from": "narrative_text",
					"source_type":    rec.sourceType,
				},
				Citations:  []models.Citation{{Page: 1, Section: "Narrative"}},
				DocumentID: documentID,
				GraphID:    graphID,
			})
		}
	}
	return append(entities, parseRiskParagraphs(text, documentID, graphID)...)
}

// parseRiskParagraphs turns each substantial paragraph into a risk or topic
// entity named by its first sentence.
func parseRiskParagraphs(text, documentID, graphID string) []*models.Entity {
	var entities []*models.Entity
	seen := make(map[string]bool)
	for _, para := range strings.Split(text, "\n\n") {
		if len(entities) >= maxRiskEntities {
			break
		}
		para = strings.TrimSpace(para)
		if len(para) <= 50 {
			continue
		}
		description := para
		if m := firstSentencePattern.FindStringSubmatch(para); m != nil {
			description = strings.TrimSpace(m[1])
		} else if len(description) > 200 {
			description = description[:200]
		}
		if len(description) < 20 || seen[description] {
			continue
		}
		seen[description] = true

		name := description
		if len(name) > 100 {
			name = name[:100]
		}
		fullText := para
		if len(fullText) > 500 {
			fullText = fullText[:500]
		}
		category := "narrative"
		if strings.Contains(strings.ToLower(para), "risk") {
			category = "risk"
		}
		entities = append(entities, &models.Entity{
			ID:           models.NewEntityID(),
			Type:         models.EntityClause,
			Name:         name,
			DisplayType:  "Risk",
			OriginalType: "RISK",
			Properties: map[string]any{
				"description":    description,
				"full_text":      fullText,
				"category":       category,
				"extracted_from": "narrative_paragraph",
			},
			Citations:  []models.Citation{{Page: 1, Section: "Narrative"}},
			DocumentID: documentID,
			GraphID:    graphID,
		})
	}
	return entities
}

const narrativeSystemPrompt = `You are a financial document analysis expert. Extract entities and relationships from the text.
Respond with JSON only, no prose:
{"entities": [{"name": "...", "type": "ORGANIZATION|PERSON|LOCATION|MONEY|DATE|RISK", "properties": {}}],
 "relationships": [{"source_name": "...", "target_name": "...", "relationship_type": "PARTNERS_WITH|DEPENDS_ON|ISSUES|PROVIDES|HAS_RISK|RELATED_TO", "reasoning": "..."}]}`

type narrativePayload struct {
	Entities []struct {
		Name       string         `json:"name"`
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	} `json:"entities"`
	Relationships []struct {
		SourceName       string `json:"source_name"`
		TargetName       string `json:"target_name"`
		RelationshipType string `json:"relationship_type"`
		Reasoning        string `json:"reasoning"`
	} `json:"relationships"`
}

// NarrativeParser runs the LLM mode: per-chunk extraction calls whose JSON
// results accumulate into a deduplicated entity map and cross-chunk edges.
type NarrativeParser struct {
	client  llm.Client
	modelID string
	logger  *slog.Logger
}

// NewNarrativeParser builds an LLM-backed narrative parser. modelID may be
// empty to use the client's default model.
func NewNarrativeParser(client llm.Client, modelID string, logger *slog.Logger) *NarrativeParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &NarrativeParser{client: client, modelID: modelID, logger: logger.With("component", "narrative_parser")}
}

// Extract chunks the text at paragraph boundaries and issues one LLM call per
// chunk. Entities deduplicate by name across chunks; edges are kept only when
// both endpoints resolved to accumulated entities. Chunk failures are logged
// and skipped so one bad response never loses the document.
func (p *NarrativeParser) Extract(ctx context.Context, markdown, documentID, graphID string) ([]*models.Entity, []*models.Edge, error) {
	text := StripHTML(markdown)
	byName := make(map[string]*models.Entity)
	var entities []*models.Entity
	var edges []*models.Edge

	for i, chunk := range chunkParagraphs(text, narrativeChunkSize) {
		if len(chunk) < narrativeMinChunk {
			continue
		}
		if ctx.Err() != nil {
			return entities, edges, ctx.Err()
		}
		payload, err := p.extractChunk(ctx, chunk)
		if err != nil {
			p.logger.Warn("narrative chunk extraction failed", "chunk", i, "error", err)
			continue
		}
		for _, raw := range payload.Entities {
			name := strings.TrimSpace(raw.Name)
			if name == "" {
				continue
			}
			if _, ok := byName[strings.ToLower(name)]; ok {
				continue
			}
			props := raw.Properties
			if props == nil {
				props = make(map[string]any)
			}
			props["extracted_from"] = "narrative_llm"
			e := &models.Entity{
				ID:           models.NewEntityID(),
				Type:         llmEntityType(raw.Type),
				Name:         name,
				DisplayType:  displayType(raw.Type),
				OriginalType: strings.ToUpper(raw.Type),
				Properties:   props,
				Citations:    []models.Citation{{Page: 1, Section: fmt.Sprintf("Narrative Chunk %d", i+1)}},
				DocumentID:   documentID,
				GraphID:      graphID,
			}
			byName[strings.ToLower(name)] = e
			entities = append(entities, e)
		}
		for _, rel := range payload.Relationships {
			source, okS := byName[strings.ToLower(strings.TrimSpace(rel.SourceName))]
			target, okT := byName[strings.ToLower(strings.TrimSpace(rel.TargetName))]
			if !okS || !okT || source == target {
				continue
			}
			edges = append(edges, &models.Edge{
				ID:     models.NewEdgeID(),
				Source: source.ID,
				Target: target.ID,
				Type:   llmEdgeType(rel.RelationshipType),
				Properties: map[string]any{
					"reasoning":   rel.Reasoning,
					"detected_by": "narrative_llm",
					"confidence":  0.85,
				},
				GraphID: graphID,
			})
		}
	}
	return entities, edges, nil
}

func (p *NarrativeParser) extractChunk(ctx context.Context, chunk string) (*narrativePayload, error) {
	if len(chunk) > narrativePromptLimit {
		chunk = chunk[:narrativePromptLimit]
	}
	resp, err := p.client.Generate(ctx, &llm.Request{
		ModelID:     p.modelID,
		System:      narrativeSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Text: "Extract entities and relationships from this text:\n\n" + chunk}},
		MaxTokens:   2048,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}
	raw := llm.ExtractJSON(resp.Text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	var payload narrativePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode narrative payload: %w", err)
	}
	return &payload, nil
}

// chunkParagraphs splits text at paragraph boundaries into chunks of roughly
// targetSize characters. A single oversized paragraph becomes its own chunk.
func chunkParagraphs(text string, targetSize int) []string {
	var chunks []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > targetSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func llmEntityType(raw string) models.EntityType {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ORGANIZATION", "COMPANY":
		return models.EntityCompany
	case "PERSON":
		return models.EntityPerson
	case "LOCATION":
		return models.EntityLocation
	case "MONEY", "DATE":
		return models.EntityMetric
	default:
		return models.EntityClause
	}
}

func llmEdgeType(raw string) models.EdgeType {
	switch normalizeRelation(raw) {
	case "RELATED_TO", "HAS_RISK", "DEPENDS_ON", "PARTNERS_WITH":
		return models.EdgeRelatedTo
	case "MENTIONED_IN":
		return models.EdgeMentionedIn
	case "ISSUES":
		return models.EdgeIssuedBy
	case "PROVIDES":
		return models.EdgeSuppliesTo
	default:
		return models.EdgeRelatedTo
	}
}

func normalizeRelation(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// displayType renders a raw LLM type label for the UI: all-caps labels become
// Title Case words.
func displayType(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.ToLower(s), "entitytype.")
	if s == "" {
		return ""
	}
	return titleWords(strings.ReplaceAll(s, " ", "_"))
}
