// Package chat implements the conversational investigation agent. The agent
// answers analyst questions by iterating between the model and a closed set of
// local tools over the knowledge graph, the document index and the analytics
// engine, streaming output chunks to the caller.
package chat

import (
	"context"
	"log/slog"

	"github.com/arthanethra/arthanethra/pkg/analytics"
	"github.com/arthanethra/arthanethra/pkg/indexer"
	"github.com/arthanethra/arthanethra/pkg/llm"
	"github.com/arthanethra/arthanethra/pkg/models"
)

// maxToolIterations bounds the tool-calling loop. Once exhausted the model is
// asked to conclude without tools.
const maxToolIterations = 8

const (
	chatMaxTokens   = 4096
	chatTemperature = 0.7
)

const systemPrompt = `You are ArthaNethra, an AI financial investigation assistant.

Your role is to help analysts understand complex financial documents by:
- Querying the knowledge graph of entities and relationships
- Providing evidence-backed insights with citations
- Detecting risks and anomalies
- Explaining findings in clear, professional language

ALWAYS:
- Use the available tools to retrieve accurate information
- Cite your sources (page numbers, sections)
- Provide numeric evidence when discussing metrics
- Explain your reasoning step-by-step

When asked about financial risks, entities, or relationships:
1. Use graph_query to find relevant entities
2. Analyze the results
3. Provide clear explanations with citations

Entity types in the knowledge graph: Company, Subsidiary, Loan, Invoice, Metric, Clause, Instrument, Vendor, Person, Location.`

// Context carries the scope a conversation runs against.
type Context struct {
	GraphID     string
	DocumentID  string
	DocumentIDs []string
	// Entities is an optional precomputed snapshot. When empty the agent
	// reads entities from the store for the context's graph.
	Entities []*models.Entity
}

// Chunk is one streamed unit of agent output. Tool chunks announce a tool
// invocation; the terminal chunk sets Done and may carry graph data collected
// while answering.
type Chunk struct {
	Text      string        `json:"text,omitempty"`
	Tool      string        `json:"tool,omitempty"`
	GraphData *models.Graph `json:"graph_data,omitempty"`
	Error     bool          `json:"error,omitempty"`
	Done      bool          `json:"done"`
}

// EntityStore reads entity snapshots for a conversation's scope.
type EntityStore interface {
	EntitiesForGraph(graphID string) []*models.Entity
	AllEntities() []*models.Entity
}

// GraphSearcher is the index surface the tools run against.
type GraphSearcher interface {
	SearchEntities(ctx context.Context, query string, limit int, graphID string) []indexer.EntityHit
	SearchChunks(ctx context.Context, query string, limit int) []indexer.ChunkHit
	Traverse(ctx context.Context, name string, depth, limit int) []indexer.EntityRecord
	FindPath(ctx context.Context, from, to string) *indexer.PathResult
	FindPattern(ctx context.Context, minRelationships, limit int) []indexer.EntityRecord
}

// MetricComputer dispatches analytics metric requests.
type MetricComputer interface {
	Compute(ctx context.Context, metricName string, params, callContext map[string]any) analytics.Result
}

// Agent runs the chat loop.
type Agent struct {
	client    llm.Client
	entities  EntityStore
	search    GraphSearcher
	metrics   MetricComputer
	modelID   string
	apiPrefix string
	logger    *slog.Logger
}

// New creates an agent. The searcher and metric engine may be nil backed
// implementations; tools report empty results rather than failing.
func New(client llm.Client, entities EntityStore, search GraphSearcher, metrics MetricComputer, modelID, apiPrefix string, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:    client,
		entities:  entities,
		search:    search,
		metrics:   metrics,
		modelID:   modelID,
		apiPrefix: apiPrefix,
		logger:    logger.With("component", "chat"),
	}
}

// Chat answers one user message inside the given context, streaming chunks on
// the returned channel. The channel is closed after the terminal chunk.
func (a *Agent) Chat(ctx context.Context, message string, cc Context) <-chan Chunk {
	out := make(chan Chunk, 8)
	go func() {
		defer close(out)
		a.run(ctx, message, cc, out)
	}()
	return out
}

func (a *Agent) run(ctx context.Context, message string, cc Context, out chan<- Chunk) {
	st := &runState{cc: cc, surfaced: make(map[string]*models.Entity)}
	messages := []llm.Message{{Role: llm.RoleUser, Text: message}}

	for i := 0; i <= maxToolIterations; i++ {
		req := &llm.Request{
			ModelID:     a.modelID,
			System:      systemPrompt,
			Messages:    messages,
			Tools:       toolDefinitions(),
			MaxTokens:   chatMaxTokens,
			Temperature: chatTemperature,
		}
		if i == maxToolIterations {
			// Forced conclusion: without tools the model must answer.
			req.Tools = nil
		}
		resp, err := a.client.Generate(ctx, req)
		if err != nil {
			a.logger.Error("chat completion failed", "error", err)
			out <- Chunk{
				Text:  "I encountered an error while processing your request. Please try again.",
				Error: true,
				Done:  true,
			}
			return
		}
		if len(resp.ToolCalls) == 0 || i == maxToolIterations {
			if resp.Text != "" {
				out <- Chunk{Text: resp.Text}
			}
			out <- Chunk{Done: true, GraphData: st.graphData()}
			return
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			out <- Chunk{Tool: call.Name}
			a.logger.Info("executing tool", "tool", call.Name)
			results = append(results, llm.ToolResult{
				ToolUseID: call.ID,
				Content:   a.dispatch(ctx, st, call),
			})
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, ToolResults: results})
	}
}

// runState accumulates entities surfaced by tools during one conversation
// turn so the answer can carry its supporting subgraph.
type runState struct {
	cc       Context
	surfaced map[string]*models.Entity
	order    []string
}

func (st *runState) record(e *models.Entity) {
	if e == nil || e.ID == "" {
		return
	}
	if _, ok := st.surfaced[e.ID]; ok {
		return
	}
	st.surfaced[e.ID] = e.Clone()
	st.order = append(st.order, e.ID)
}

func (st *runState) graphData() *models.Graph {
	if len(st.order) == 0 {
		return nil
	}
	g := &models.Graph{GraphID: st.cc.GraphID}
	for _, id := range st.order {
		g.Entities = append(g.Entities, st.surfaced[id])
	}
	return g
}
