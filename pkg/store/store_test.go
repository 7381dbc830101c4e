package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthanethra/arthanethra/pkg/models"
	"github.com/arthanethra/arthanethra/pkg/services"
)

func newDocument(t *testing.T, dir string) *models.Document {
	t.Helper()
	id := models.NewDocumentID()
	path := filepath.Join(dir, id+".pdf")
	require.NoError(t, os.WriteFile(path, []byte("blob"), 0o644))
	return &models.Document{
		ID:         id,
		Filename:   "report.pdf",
		FilePath:   path,
		Status:     models.StatusUploaded,
		UploadedAt: time.Now().UTC(),
	}
}

func newGraph(documentID string, names ...string) *models.Graph {
	g := &models.Graph{
		GraphID:    models.NewGraphID(),
		DocumentID: documentID,
		Entities:   []*models.Entity{},
		Edges:      []*models.Edge{},
	}
	for _, name := range names {
		g.Entities = append(g.Entities, &models.Entity{
			ID:         models.NewEntityID(),
			Type:       models.EntityCompany,
			Name:       name,
			Properties: map[string]any{"total_assets": 1000000.0},
			DocumentID: documentID,
			GraphID:    g.GraphID,
		})
	}
	return g
}

func TestDocumentCRUD(t *testing.T) {
	s := New(t.TempDir())
	doc := newDocument(t, t.TempDir())
	s.PutDocument(doc)

	got, err := s.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, got.Filename)

	// Snapshot reads must not alias store state.
	got.Filename = "mutated.pdf"
	again, err := s.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", again.Filename)

	require.NoError(t, s.DeleteDocument(doc.ID))
	_, err = s.GetDocument(doc.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.ErrorIs(t, s.DeleteDocument(doc.ID), services.ErrNotFound)
}

func TestSetDocumentStatusEnforcesLattice(t *testing.T) {
	s := New(t.TempDir())
	doc := newDocument(t, t.TempDir())
	s.PutDocument(doc)

	got, err := s.SetDocumentStatus(doc.ID, models.StatusExtracting)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracting, got.Status)

	_, err = s.SetDocumentStatus(doc.ID, models.StatusUploaded)
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	// Failure is reachable from any state, and retry restores forward motion.
	s.MarkDocumentFailed(doc.ID, "extraction timed out")
	got, err = s.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "extraction timed out", got.ErrorMessage)

	_, err = s.SetDocumentStatus(doc.ID, models.StatusUploaded)
	require.NoError(t, err)
}

func TestSetDocumentStatusIndexedSetsProcessedAt(t *testing.T) {
	s := New(t.TempDir())
	doc := newDocument(t, t.TempDir())
	doc.Status = models.StatusIndexing
	s.PutDocument(doc)

	got, err := s.SetDocumentStatus(doc.ID, models.StatusIndexed)
	require.NoError(t, err)
	require.NotNil(t, got.ProcessedAt)
}

func TestListDocumentsNewestFirst(t *testing.T) {
	s := New(t.TempDir())
	blobDir := t.TempDir()
	older := newDocument(t, blobDir)
	older.UploadedAt = time.Now().UTC().Add(-time.Hour)
	newer := newDocument(t, blobDir)
	s.PutDocument(older)
	s.PutDocument(newer)

	docs := s.ListDocuments()
	require.Len(t, docs, 2)
	assert.Equal(t, newer.ID, docs[0].ID)
}

func TestGraphAndEntityLookups(t *testing.T) {
	s := New(t.TempDir())
	g := newGraph("doc-1", "Summit Holdings", "Ridgeline LLC")
	s.PutGraph(g)

	got, err := s.GetGraph(g.GraphID)
	require.NoError(t, err)
	assert.Len(t, got.Entities, 2)

	ents := s.EntitiesForGraph(g.GraphID)
	require.Len(t, ents, 2)
	ents[0].Name = "mutated"
	assert.Equal(t, "Summit Holdings", s.EntitiesForGraph(g.GraphID)[0].Name)

	found, err := s.FindEntity(g.Entities[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Ridgeline LLC", found.Name)

	_, err = s.FindEntity("ent-missing")
	assert.ErrorIs(t, err, services.ErrNotFound)

	assert.Equal(t, []string{g.GraphID}, s.GraphsForDocument("doc-1"))
	assert.Len(t, s.AllEntities(), 2)
}

func TestSupersedeGraphsPurgesPriorStateAndRisks(t *testing.T) {
	s := New(t.TempDir())
	old := newGraph("doc-1", "Summit Holdings")
	s.PutGraph(old)
	s.PutRisks(old.GraphID, []*models.Risk{{
		ID:      models.NewRiskID(),
		Type:    "High Debt",
		GraphID: old.GraphID,
	}})
	other := newGraph("doc-2", "Unrelated Corp")
	s.PutGraph(other)

	next := newGraph("doc-1", "Summit Holdings", "New Sub")
	purged := s.SupersedeGraphs("doc-1", next)
	assert.Equal(t, []string{old.GraphID}, purged)

	_, err := s.GetGraph(old.GraphID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Empty(t, s.RisksForGraph(old.GraphID))
	assert.Empty(t, s.EntitiesForGraph(old.GraphID))

	got, err := s.GetGraph(next.GraphID)
	require.NoError(t, err)
	assert.Len(t, got.Entities, 2)

	// Graphs of other documents are untouched.
	_, err = s.GetGraph(other.GraphID)
	require.NoError(t, err)
}

func TestDeleteGraphsForDocument(t *testing.T) {
	s := New(t.TempDir())
	g := newGraph("doc-1", "Summit Holdings")
	s.PutGraph(g)
	s.PutRisks(g.GraphID, []*models.Risk{{ID: models.NewRiskID(), GraphID: g.GraphID}})

	s.DeleteGraphsForDocument("doc-1")
	_, err := s.GetGraph(g.GraphID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Empty(t, s.RisksForGraph(g.GraphID))
	assert.Empty(t, s.AllRisks())
}

func TestRiskFindAndUpdate(t *testing.T) {
	s := New(t.TempDir())
	r := &models.Risk{ID: models.NewRiskID(), Type: "High Debt", GraphID: "graph-1"}
	s.PutRisks("graph-1", []*models.Risk{r})

	found, err := s.FindRisk(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "High Debt", found.Type)

	now := time.Now().UTC()
	require.NoError(t, s.UpdateRisk(r.ID, func(risk *models.Risk) {
		risk.DetectedAt = now
	}))
	found, err = s.FindRisk(r.ID)
	require.NoError(t, err)
	assert.Equal(t, now, found.DetectedAt)

	assert.ErrorIs(t, s.UpdateRisk("risk-missing", func(*models.Risk) {}), services.ErrNotFound)
}

func TestSessionAndMessageFlow(t *testing.T) {
	s := New(t.TempDir())
	sess := &models.ChatSession{
		ID:        models.NewSessionID(),
		Name:      "Audit review",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	s.PutSession(sess)

	_, err := s.UpdateSession(sess.ID, func(live *models.ChatSession) {
		live.DocumentIDs = append(live.DocumentIDs, "doc-1")
	})
	require.NoError(t, err)

	for i, content := range []string{"what stands out?", "Debt ratios are elevated."} {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		require.NoError(t, s.AppendMessage(&models.ChatMessage{
			ID:        models.NewMessageID(),
			SessionID: sess.ID,
			Role:      role,
			Content:   content,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}))
	}

	got, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.Equal(t, []string{"doc-1"}, got.DocumentIDs)

	messages := s.MessagesForSession(sess.ID)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)

	assert.ErrorIs(t, s.AppendMessage(&models.ChatMessage{SessionID: "sess-missing"}), services.ErrNotFound)

	require.NoError(t, s.DeleteSession(sess.ID))
	assert.Empty(t, s.MessagesForSession(sess.ID))
	_, err = s.GetSession(sess.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestJobLifecycle(t *testing.T) {
	s := New(t.TempDir())
	job := &models.Job{
		ID:         models.NewJobID(),
		DocumentID: "doc-1",
		Status:     models.JobProcessing,
		Total:      3,
		StartedAt:  time.Now().UTC(),
	}
	s.PutJob(job)

	require.NoError(t, s.UpdateJob(job.ID, func(j *models.Job) {
		j.Status = models.JobCompleted
		j.Completed = 3
	}))
	got, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 3, got.Completed)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.ErrorIs(t, s.UpdateJob("job-missing", func(*models.Job) {}), services.ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	stateDir := t.TempDir()
	blobDir := t.TempDir()

	s := New(stateDir)
	doc := newDocument(t, blobDir)
	s.PutDocument(doc)
	g := newGraph(doc.ID, "Summit Holdings")
	s.PutGraph(g)
	s.PutRisks(g.GraphID, []*models.Risk{{ID: models.NewRiskID(), Type: "High Debt", GraphID: g.GraphID}})
	sess := &models.ChatSession{ID: models.NewSessionID(), Name: "Audit review", UpdatedAt: time.Now().UTC()}
	s.PutSession(sess)
	require.NoError(t, s.AppendMessage(&models.ChatMessage{
		ID:        models.NewMessageID(),
		SessionID: sess.ID,
		Role:      models.RoleUser,
		Content:   "hello",
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.Save())

	restored := New(stateDir)
	require.NoError(t, restored.Load())

	gotDoc, err := restored.GetDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Filename, gotDoc.Filename)

	gotGraph, err := restored.GetGraph(g.GraphID)
	require.NoError(t, err)
	assert.Len(t, gotGraph.Entities, 1)
	assert.Len(t, restored.EntitiesForGraph(g.GraphID), 1)
	assert.Len(t, restored.RisksForGraph(g.GraphID), 1)

	gotSess, err := restored.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotSess.MessageCount)
	assert.Len(t, restored.MessagesForSession(sess.ID), 1)
}

func TestLoadRebuildsGraphFromEntitiesSnapshot(t *testing.T) {
	stateDir := t.TempDir()
	s := New(stateDir)
	require.NoError(t, s.writeJSON(entitiesFile, map[string][]*models.Entity{
		"graph-1": {{
			ID:         models.NewEntityID(),
			Type:       models.EntityCompany,
			Name:       "Summit Holdings",
			DocumentID: "doc-1",
			GraphID:    "graph-1",
		}},
	}))

	require.NoError(t, s.Load())
	g, err := s.GetGraph("graph-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", g.DocumentID)
	assert.Len(t, g.Entities, 1)
}

func TestLoadMissingAndCorruptFiles(t *testing.T) {
	stateDir := t.TempDir()
	s := New(stateDir)
	require.NoError(t, s.Load())
	assert.Empty(t, s.ListDocuments())

	require.NoError(t, os.WriteFile(filepath.Join(stateDir, documentsFile), []byte("{not json"), 0o644))
	require.NoError(t, s.Load())
	assert.Empty(t, s.ListDocuments())
}
