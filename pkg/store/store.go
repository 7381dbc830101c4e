// Package store holds the process-wide state bundle: mutex-protected
// in-memory maps for documents, graphs, entities, chat sessions, chat
// messages, risks, and extraction jobs, with durable JSON snapshots.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/services"
)

// Store is the single owner of in-memory application state. Mutexes are
// held only for map operations, never across I/O.
type Store struct {
	stateDir string

	docMu     sync.RWMutex
	documents map[string]*models.Document

	graphMu  sync.RWMutex
	graphs   map[string]*models.Graph
	entities map[string][]*models.Entity // graph_id -> entities

	riskMu sync.RWMutex
	risks  map[string][]*models.Risk // graph_id -> risks

	chatMu   sync.RWMutex
	sessions map[string]*models.ChatSession
	messages map[string][]*models.ChatMessage // session_id -> messages

	jobMu sync.RWMutex
	jobs  map[string]*models.Job
}

// New creates an empty store persisting snapshots under stateDir.
func New(stateDir string) *Store {
	return &Store{
		stateDir:  stateDir,
		documents: make(map[string]*models.Document),
		graphs:    make(map[string]*models.Graph),
		entities:  make(map[string][]*models.Entity),
		risks:     make(map[string][]*models.Risk),
		sessions:  make(map[string]*models.ChatSession),
		messages:  make(map[string][]*models.ChatMessage),
		jobs:      make(map[string]*models.Job),
	}
}

// ---- documents ----

// PutDocument inserts or replaces a document.
func (s *Store) PutDocument(d *models.Document) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	s.documents[d.ID] = d.Clone()
}

// GetDocument returns a snapshot of the document.
func (s *Store) GetDocument(id string) (*models.Document, error) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, services.ErrNotFound)
	}
	return d.Clone(), nil
}

// ListDocuments returns snapshots of all documents, newest first.
// Callers that serve listings prune entries whose blob disappeared.
func (s *Store) ListDocuments() []*models.Document {
	s.docMu.RLock()
	out := make([]*models.Document, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d.Clone())
	}
	s.docMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out
}

// DeleteDocument removes a document from the map.
func (s *Store) DeleteDocument(id string) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, services.ErrNotFound)
	}
	delete(s.documents, id)
	return nil
}

// UpdateDocument applies fn to the live document under the lock. fn must
// not block.
func (s *Store) UpdateDocument(id string, fn func(*models.Document) error) (*models.Document, error) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, services.ErrNotFound)
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// SetDocumentStatus transitions the document status, enforcing the
// monotone lattice.
func (s *Store) SetDocumentStatus(id string, status models.DocumentStatus) (*models.Document, error) {
	return s.UpdateDocument(id, func(d *models.Document) error {
		if !d.Status.CanTransition(status) {
			return fmt.Errorf("document %s: transition %s -> %s: %w", id, d.Status, status, services.ErrInvalidInput)
		}
		d.Status = status
		if status == models.StatusIndexed {
			now := time.Now().UTC()
			d.ProcessedAt = &now
		}
		return nil
	})
}

// MarkDocumentFailed records a stage failure and restores the prior
// terminal status on the next retry via SetDocumentStatus.
func (s *Store) MarkDocumentFailed(id, message string) {
	_, _ = s.UpdateDocument(id, func(d *models.Document) error {
		d.Status = models.StatusFailed
		d.ErrorMessage = message
		return nil
	})
}

// ---- graphs & entities ----

// PutGraph installs a graph and its entity list.
func (s *Store) PutGraph(g *models.Graph) {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	clone := g.Clone()
	s.graphs[g.GraphID] = clone
	s.entities[g.GraphID] = clone.Entities
}

// GetGraph returns a snapshot of a graph.
func (s *Store) GetGraph(graphID string) (*models.Graph, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	g, ok := s.graphs[graphID]
	if !ok {
		return nil, fmt.Errorf("graph %s: %w", graphID, services.ErrNotFound)
	}
	return g.Clone(), nil
}

// ListGraphs returns snapshots of all graphs.
func (s *Store) ListGraphs() []*models.Graph {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	out := make([]*models.Graph, 0, len(s.graphs))
	for _, g := range s.graphs {
		out = append(out, g.Clone())
	}
	return out
}

// GraphsForDocument returns the graph ids currently held for a document.
func (s *Store) GraphsForDocument(documentID string) []string {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	var ids []string
	for id, g := range s.graphs {
		if g.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	return ids
}

// EntitiesForGraph returns entity snapshots for a graph.
func (s *Store) EntitiesForGraph(graphID string) []*models.Entity {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	list := s.entities[graphID]
	out := make([]*models.Entity, len(list))
	for i, e := range list {
		out[i] = e.Clone()
	}
	return out
}

// AllEntities returns entity snapshots across every graph.
func (s *Store) AllEntities() []*models.Entity {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	var out []*models.Entity
	for _, list := range s.entities {
		for _, e := range list {
			out = append(out, e.Clone())
		}
	}
	return out
}

// FindEntity looks an entity up by id across all graphs.
func (s *Store) FindEntity(entityID string) (*models.Entity, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	for _, list := range s.entities {
		for _, e := range list {
			if e.ID == entityID {
				return e.Clone(), nil
			}
		}
	}
	return nil, fmt.Errorf("entity %s: %w", entityID, services.ErrNotFound)
}

// SupersedeGraphs atomically purges all prior graphs for a document
// (with their entities and risks) and installs the new graph. Lock
// order: graphMu before riskMu.
func (s *Store) SupersedeGraphs(documentID string, g *models.Graph) []string {
	s.graphMu.Lock()
	var purged []string
	for id, old := range s.graphs {
		if old.DocumentID == documentID && id != g.GraphID {
			delete(s.graphs, id)
			delete(s.entities, id)
			purged = append(purged, id)
		}
	}
	clone := g.Clone()
	s.graphs[g.GraphID] = clone
	s.entities[g.GraphID] = clone.Entities
	s.graphMu.Unlock()

	s.riskMu.Lock()
	for _, id := range purged {
		delete(s.risks, id)
	}
	s.riskMu.Unlock()
	return purged
}

// DeleteGraphsForDocument removes every graph, entity list, and risk
// list belonging to a document.
func (s *Store) DeleteGraphsForDocument(documentID string) {
	s.graphMu.Lock()
	var purged []string
	for id, g := range s.graphs {
		if g.DocumentID == documentID {
			delete(s.graphs, id)
			delete(s.entities, id)
			purged = append(purged, id)
		}
	}
	s.graphMu.Unlock()

	s.riskMu.Lock()
	for _, id := range purged {
		delete(s.risks, id)
	}
	s.riskMu.Unlock()
}

// ---- risks ----

// PutRisks replaces the risk list for a graph.
func (s *Store) PutRisks(graphID string, risks []*models.Risk) {
	s.riskMu.Lock()
	defer s.riskMu.Unlock()
	out := make([]*models.Risk, len(risks))
	for i, r := range risks {
		out[i] = r.Clone()
	}
	s.risks[graphID] = out
}

// RisksForGraph returns risk snapshots for a graph.
func (s *Store) RisksForGraph(graphID string) []*models.Risk {
	s.riskMu.RLock()
	defer s.riskMu.RUnlock()
	list := s.risks[graphID]
	out := make([]*models.Risk, len(list))
	for i, r := range list {
		out[i] = r.Clone()
	}
	return out
}

// AllRisks returns risk snapshots across all graphs.
func (s *Store) AllRisks() []*models.Risk {
	s.riskMu.RLock()
	defer s.riskMu.RUnlock()
	var out []*models.Risk
	for _, list := range s.risks {
		for _, r := range list {
			out = append(out, r.Clone())
		}
	}
	return out
}

// FindRisk looks a risk up by id.
func (s *Store) FindRisk(riskID string) (*models.Risk, error) {
	s.riskMu.RLock()
	defer s.riskMu.RUnlock()
	for _, list := range s.risks {
		for _, r := range list {
			if r.ID == riskID {
				return r.Clone(), nil
			}
		}
	}
	return nil, fmt.Errorf("risk %s: %w", riskID, services.ErrNotFound)
}

// UpdateRisk applies fn to a live risk under the lock.
func (s *Store) UpdateRisk(riskID string, fn func(*models.Risk)) error {
	s.riskMu.Lock()
	defer s.riskMu.Unlock()
	for _, list := range s.risks {
		for _, r := range list {
			if r.ID == riskID {
				fn(r)
				return nil
			}
		}
	}
	return fmt.Errorf("risk %s: %w", riskID, services.ErrNotFound)
}

// ---- chat ----

// PutSession inserts or replaces a chat session.
func (s *Store) PutSession(sess *models.ChatSession) {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
}

// GetSession returns a session snapshot.
func (s *Store) GetSession(id string) (*models.ChatSession, error) {
	s.chatMu.RLock()
	defer s.chatMu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("chat session %s: %w", id, services.ErrNotFound)
	}
	return sess.Clone(), nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions() []*models.ChatSession {
	s.chatMu.RLock()
	defer s.chatMu.RUnlock()
	out := make([]*models.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// UpdateSession applies fn to a live session under the lock.
func (s *Store) UpdateSession(id string, fn func(*models.ChatSession)) (*models.ChatSession, error) {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("chat session %s: %w", id, services.ErrNotFound)
	}
	fn(sess)
	sess.UpdatedAt = time.Now().UTC()
	return sess.Clone(), nil
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(id string) error {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("chat session %s: %w", id, services.ErrNotFound)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

// AppendMessage appends a message to its session and bumps the counter.
func (s *Store) AppendMessage(m *models.ChatMessage) error {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	sess, ok := s.sessions[m.SessionID]
	if !ok {
		return fmt.Errorf("chat session %s: %w", m.SessionID, services.ErrNotFound)
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m.Clone())
	sess.MessageCount = len(s.messages[m.SessionID])
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// MessagesForSession returns message snapshots ordered by creation time.
func (s *Store) MessagesForSession(sessionID string) []*models.ChatMessage {
	s.chatMu.RLock()
	defer s.chatMu.RUnlock()
	list := s.messages[sessionID]
	out := make([]*models.ChatMessage, len(list))
	for i, m := range list {
		out[i] = m.Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ---- jobs ----

// PutJob inserts or replaces a job.
func (s *Store) PutJob(j *models.Job) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	s.jobs[j.ID] = j.Clone()
}

// GetJob returns a job snapshot.
func (s *Store) GetJob(id string) (*models.Job, error) {
	s.jobMu.RLock()
	defer s.jobMu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, services.ErrNotFound)
	}
	return j.Clone(), nil
}

// ListJobs returns snapshots of all jobs, newest first.
func (s *Store) ListJobs() []*models.Job {
	s.jobMu.RLock()
	defer s.jobMu.RUnlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// UpdateJob applies fn to a live job under the lock.
func (s *Store) UpdateJob(id string, fn func(*models.Job)) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, services.ErrNotFound)
	}
	fn(j)
	return nil
}
