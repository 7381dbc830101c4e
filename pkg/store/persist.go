package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/arthanethra/arthanethra/pkg/models"
)

// Snapshot file names under the state directory.
const (
	documentsFile    = "documents.json"
	graphsFile       = "graphs.json"
	entitiesFile     = "entities.json"
	chatSessionsFile = "chat_sessions.json"
	chatMessagesFile = "chat_messages.json"
	risksFile        = "risks.json"
)

// Save writes the six snapshot files. Failures are logged per file; the
// remaining files are still written.
func (s *Store) Save() error {
	slog.Info("Saving state snapshots", "state_dir", s.stateDir)

	s.docMu.RLock()
	docs := make(map[string]*models.Document, len(s.documents))
	for id, d := range s.documents {
		docs[id] = d.Clone()
	}
	s.docMu.RUnlock()

	s.graphMu.RLock()
	graphs := make(map[string]*models.Graph, len(s.graphs))
	for id, g := range s.graphs {
		graphs[id] = g.Clone()
	}
	ents := make(map[string][]*models.Entity, len(s.entities))
	for id, list := range s.entities {
		cloned := make([]*models.Entity, len(list))
		for i, e := range list {
			cloned[i] = e.Clone()
		}
		ents[id] = cloned
	}
	s.graphMu.RUnlock()

	s.chatMu.RLock()
	sessions := make(map[string]*models.ChatSession, len(s.sessions))
	for id, sess := range s.sessions {
		sessions[id] = sess.Clone()
	}
	messages := make(map[string][]*models.ChatMessage, len(s.messages))
	for id, list := range s.messages {
		cloned := make([]*models.ChatMessage, len(list))
		for i, m := range list {
			cloned[i] = m.Clone()
		}
		messages[id] = cloned
	}
	s.chatMu.RUnlock()

	s.riskMu.RLock()
	risks := make(map[string][]*models.Risk, len(s.risks))
	for id, list := range s.risks {
		cloned := make([]*models.Risk, len(list))
		for i, r := range list {
			cloned[i] = r.Clone()
		}
		risks[id] = cloned
	}
	s.riskMu.RUnlock()

	var firstErr error
	for _, w := range []struct {
		name string
		data any
	}{
		{documentsFile, docs},
		{graphsFile, graphs},
		{entitiesFile, ents},
		{chatSessionsFile, sessions},
		{chatMessagesFile, messages},
		{risksFile, risks},
	} {
		if err := s.writeJSON(w.name, w.data); err != nil {
			slog.Error("Failed to save state file", "file", w.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Load reads whichever snapshot files exist. Missing files start fresh.
// Graphs whose entity lists were lost are reconstructed from the
// entities snapshot.
func (s *Store) Load() error {
	slog.Info("Loading state snapshots", "state_dir", s.stateDir)

	var docs map[string]*models.Document
	if err := s.readJSON(documentsFile, &docs); err != nil {
		return err
	}
	var graphs map[string]*models.Graph
	if err := s.readJSON(graphsFile, &graphs); err != nil {
		return err
	}
	var ents map[string][]*models.Entity
	if err := s.readJSON(entitiesFile, &ents); err != nil {
		return err
	}
	var sessions map[string]*models.ChatSession
	if err := s.readJSON(chatSessionsFile, &sessions); err != nil {
		return err
	}
	var messages map[string][]*models.ChatMessage
	if err := s.readJSON(chatMessagesFile, &messages); err != nil {
		return err
	}
	var risks map[string][]*models.Risk
	if err := s.readJSON(risksFile, &risks); err != nil {
		return err
	}

	s.docMu.Lock()
	if docs != nil {
		s.documents = docs
	}
	s.docMu.Unlock()

	s.graphMu.Lock()
	if graphs != nil {
		s.graphs = graphs
	}
	if ents != nil {
		s.entities = ents
	}
	// Rebuild graphs that exist only as entity lists, and entity lists
	// for graphs that carry their entities inline.
	for graphID, list := range s.entities {
		if _, ok := s.graphs[graphID]; !ok && len(list) > 0 {
			s.graphs[graphID] = &models.Graph{
				GraphID:    graphID,
				DocumentID: list[0].DocumentID,
				Entities:   list,
			}
		}
	}
	for graphID, g := range s.graphs {
		if _, ok := s.entities[graphID]; !ok {
			s.entities[graphID] = g.Entities
		}
	}
	s.graphMu.Unlock()

	s.chatMu.Lock()
	if sessions != nil {
		s.sessions = sessions
	}
	if messages != nil {
		s.messages = messages
	}
	s.chatMu.Unlock()

	s.riskMu.Lock()
	if risks != nil {
		s.risks = risks
	}
	s.riskMu.Unlock()

	slog.Info("State loaded",
		"documents", len(s.documents),
		"graphs", len(s.graphs),
		"sessions", len(s.sessions),
		"risk_graphs", len(s.risks))
	return nil
}

// writeJSON writes atomically: temp file then rename.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.stateDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func (s *Store) readJSON(name string, target any) error {
	path := filepath.Join(s.stateDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		slog.Warn("Corrupt state file ignored", "file", name, "error", err)
		return nil
	}
	return nil
}
