// Package events fans pipeline progress out to streaming clients. The
// broadcaster is purely in-process: publishers are the pipeline stages,
// subscribers are the SSE handlers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arthanethra/arthanethra/pkg/models"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts dropping intermediate frames; the latest frame
// always arrives because publishes keep coming.
const subscriberBuffer = 16

// Progress is one pipeline progress frame for a document.
type Progress struct {
	DocumentID    string                `json:"document_id"`
	Status        models.DocumentStatus `json:"status"`
	Stage         string                `json:"stage,omitempty"`
	Message       string                `json:"message,omitempty"`
	EntitiesCount int                   `json:"entities_count,omitempty"`
	EdgesCount    int                   `json:"edges_count,omitempty"`
	Error         string                `json:"error,omitempty"`
	Done          bool                  `json:"done"`
	Timestamp     time.Time             `json:"timestamp"`
}

// Terminal reports whether this frame ends the stream.
func (p Progress) Terminal() bool {
	return p.Done || p.Status == models.StatusFailed
}

type subscriber struct {
	id int
	ch chan Progress
}

// Broadcaster tracks per-document subscribers and the last published frame
// per document so late subscribers catch up immediately.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriber // document_id -> subscribers
	latest      map[string]Progress
	nextID      int
	logger      *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string][]subscriber),
		latest:      make(map[string]Progress),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers for progress frames of one document. The latest known
// frame, if any, is delivered first. The returned cancel function must be
// called when the client disconnects; it closes the channel.
func (b *Broadcaster) Subscribe(documentID string) (<-chan Progress, func()) {
	ch := make(chan Progress, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[documentID] = append(b.subscribers[documentID], subscriber{id: id, ch: ch})
	snapshot, hasSnapshot := b.latest[documentID]
	b.mu.Unlock()

	if hasSnapshot {
		ch <- snapshot
	}

	cancel := func() { b.unsubscribe(documentID, id) }
	return ch, cancel
}

func (b *Broadcaster) unsubscribe(documentID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[documentID]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[documentID] = append(subs[:i], subs[i+1:]...)
			close(s.ch)
			break
		}
	}
	if len(b.subscribers[documentID]) == 0 {
		delete(b.subscribers, documentID)
	}
}

// Publish records the frame as the document's latest and fans it out. Sends
// never block: a full subscriber buffer drops the frame for that subscriber.
// The fan-out holds the read lock so unsubscribe, which closes channels
// under the write lock, cannot interleave with a send.
func (b *Broadcaster) Publish(p Progress) {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.latest[p.DocumentID] = p
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subscribers[p.DocumentID] {
		select {
		case s.ch <- p:
		default:
			b.logger.Warn("dropping progress frame for slow subscriber",
				"document_id", p.DocumentID, "status", p.Status)
		}
	}
}

// Latest returns the last published frame for a document.
func (b *Broadcaster) Latest(documentID string) (Progress, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.latest[documentID]
	return p, ok
}

// Forget drops the stored frame for a document, typically after deletion.
// Active subscribers keep their channels; they simply stop receiving.
func (b *Broadcaster) Forget(documentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.latest, documentID)
}

// SubscriberCount returns the number of active subscribers for a document.
func (b *Broadcaster) SubscriberCount(documentID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[documentID])
}
