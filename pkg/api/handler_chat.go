package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arthanethra/arthanethra/pkg/chat"
	"github.com/arthanethra/arthanethra/pkg/models"
)

func (s *Server) listSessions(c *gin.Context) {
	sessions := s.store.ListSessions()
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

type createSessionRequest struct {
	Name        string   `json:"name"`
	DocumentIDs []string `json:"document_ids"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, err.Error())
		return
	}
	if req.Name == "" {
		req.Name = "New investigation"
	}
	now := time.Now().UTC()
	sess := &models.ChatSession{
		ID:          models.NewSessionID(),
		Name:        req.Name,
		DocumentIDs: req.DocumentIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.store.PutSession(sess)
	c.JSON(http.StatusOK, sess)
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.store.GetSession(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type renameSessionRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) renameSession(c *gin.Context) {
	var req renameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := s.store.UpdateSession(c.Param("id"), func(sess *models.ChatSession) {
		sess.Name = req.Name
		sess.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.store.DeleteSession(c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) listMessages(c *gin.Context) {
	if _, err := s.store.GetSession(c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	messages := s.store.MessagesForSession(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

type postMessageRequest struct {
	Message string `json:"message" binding:"required"`
	GraphID string `json:"graph_id"`
}

// postMessage handles POST /chat/sessions/{id}/messages: runs the agent to
// completion and returns the assistant message.
func (s *Server) postMessage(c *gin.Context) {
	if s.agent == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat agent not available"})
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sessionID := c.Param("id")
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	userMsg := &models.ChatMessage{
		ID:        models.NewMessageID(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   req.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(userMsg); err != nil {
		s.respondError(c, err)
		return
	}

	cc := chat.Context{GraphID: req.GraphID, DocumentIDs: sess.DocumentIDs}
	if len(sess.DocumentIDs) == 1 {
		cc.DocumentID = sess.DocumentIDs[0]
	}

	var text string
	var graphData *models.Graph
	for chunk := range s.agent.Chat(c.Request.Context(), req.Message, cc) {
		if chunk.Text != "" {
			text += chunk.Text
		}
		if chunk.GraphData != nil {
			graphData = chunk.GraphData
		}
	}

	assistantMsg := &models.ChatMessage{
		ID:        models.NewMessageID(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   text,
		GraphData: graphData,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(assistantMsg); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assistantMsg)
}

func (s *Server) attachDocument(c *gin.Context) {
	docID := c.Param("doc_id")
	if _, err := s.store.GetDocument(docID); err != nil {
		s.respondError(c, err)
		return
	}
	sess, err := s.store.UpdateSession(c.Param("id"), func(sess *models.ChatSession) {
		for _, id := range sess.DocumentIDs {
			if id == docID {
				return
			}
		}
		sess.DocumentIDs = append(sess.DocumentIDs, docID)
		sess.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) detachDocument(c *gin.Context) {
	docID := c.Param("doc_id")
	sess, err := s.store.UpdateSession(c.Param("id"), func(sess *models.ChatSession) {
		kept := sess.DocumentIDs[:0]
		for _, id := range sess.DocumentIDs {
			if id != docID {
				kept = append(kept, id)
			}
		}
		sess.DocumentIDs = kept
		sess.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type askRequest struct {
	Message    string `json:"message" binding:"required"`
	GraphID    string `json:"graph_id"`
	DocumentID string `json:"document_id"`
	SessionID  string `json:"session_id"`
}

// askFrame is one SSE frame of the ad-hoc chat stream.
type askFrame struct {
	Content   string        `json:"content,omitempty"`
	Tool      string        `json:"tool,omitempty"`
	GraphData *models.Graph `json:"graph_data,omitempty"`
	Error     bool          `json:"error,omitempty"`
	Done      bool          `json:"done"`
}

// ask handles POST /ask: streams the agent's answer as SSE frames.
func (s *Server) ask(c *gin.Context) {
	if s.agent == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat agent not available"})
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if req.SessionID != "" {
		userMsg := &models.ChatMessage{
			ID:        models.NewMessageID(),
			SessionID: req.SessionID,
			Role:      models.RoleUser,
			Content:   req.Message,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.AppendMessage(userMsg); err != nil {
			s.respondError(c, err)
			return
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	cc := chat.Context{GraphID: req.GraphID, DocumentID: req.DocumentID}
	var text string
	var graphData *models.Graph
	for chunk := range s.agent.Chat(c.Request.Context(), req.Message, cc) {
		frame := askFrame{
			Content:   chunk.Text,
			Tool:      chunk.Tool,
			GraphData: chunk.GraphData,
			Error:     chunk.Error,
			Done:      chunk.Done,
		}
		if chunk.Text != "" && !chunk.Error {
			text += chunk.Text
		}
		if chunk.GraphData != nil {
			graphData = chunk.GraphData
		}
		writeSSE(c, frame)
	}

	if req.SessionID != "" && text != "" {
		assistantMsg := &models.ChatMessage{
			ID:        models.NewMessageID(),
			SessionID: req.SessionID,
			Role:      models.RoleAssistant,
			Content:   text,
			GraphData: graphData,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.AppendMessage(assistantMsg); err != nil {
			s.logger.Warn("storing assistant message failed", "session_id", req.SessionID, "error", err)
		}
	}
}
