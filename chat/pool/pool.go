// Package pool owns the live provider sessions, one per conversation.
//
// Sessions are created lazily on first send or on conversation load, reused
// across turns, and dropped when the conversation is deleted. Selecting a
// different provider for an existing conversation replaces the pooled
// session, so at most one session exists per conversation id at any time.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/52hzxgfy/chatbot/chat/history"
	"github.com/52hzxgfy/chatbot/chat/model"
	"github.com/52hzxgfy/chatbot/chat/provider"
)

// Session pairs a conversation with its provider handle. The pool owns the
// handle exclusively; callers interact with it but never replace it.
type Session struct {
	ConversationID string
	ProviderName   string
	Handle         provider.Service
	CreatedAt      time.Time
}

// Factory constructs a provider adapter. The default is provider.New; tests
// substitute fakes.
type Factory func(name, apiKey string) (provider.Service, error)

// Pool maps conversation ids to their active sessions.
type Pool struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group

	newService Factory
}

// New creates an empty pool backed by the real provider registry.
func New() *Pool {
	return NewWithFactory(provider.New)
}

// NewWithFactory creates an empty pool with a custom adapter factory.
func NewWithFactory(factory Factory) *Pool {
	return &Pool{
		sessions:   make(map[string]*Session),
		newService: factory,
	}
}

// GetOrCreate returns the session pooled for the conversation, constructing
// one when absent. Prior history seeds the session only at creation; a
// repeated call for the same (conversation, provider) returns the existing
// handle without reseeding, so priming turns are never duplicated. A call
// naming a different provider replaces the pooled session.
func (p *Pool) GetOrCreate(ctx context.Context, conversationID, providerName, apiKey string, prior []model.Message) (*Session, error) {
	p.mu.RLock()
	s := p.sessions[conversationID]
	p.mu.RUnlock()
	if s != nil && s.ProviderName == providerName {
		return s, nil
	}

	key := conversationID + "\x00" + providerName
	v, err, _ := p.group.Do(key, func() (any, error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if s := p.sessions[conversationID]; s != nil && s.ProviderName == providerName {
			return s, nil
		}

		handle, err := p.newService(providerName, apiKey)
		if err != nil {
			return nil, err
		}
		if len(prior) > 0 {
			handle.ReplaceHistory(history.ToProviderHistory(prior))
		}

		if old := p.sessions[conversationID]; old != nil {
			slog.Debug("replacing pooled session on provider switch",
				"conversation_id", conversationID,
				"old_provider", old.ProviderName,
				"new_provider", providerName,
			)
		}

		s := &Session{
			ConversationID: conversationID,
			ProviderName:   providerName,
			Handle:         handle,
			CreatedAt:      time.Now(),
		}
		p.sessions[conversationID] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns the pooled session for the conversation, if any.
func (p *Pool) Get(conversationID string) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[conversationID]
	return s, ok
}

// Remove drops the pooled session and releases its provider handle.
// Removing an unknown conversation is a no-op.
func (p *Pool) Remove(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, conversationID)
}

// UpdateHistory overwrites the session's history snapshot after a turn
// completes, keeping the pool's view consistent with the UI's message list.
// A missing session is tolerated silently: the conversation may have been
// deleted while the turn was in flight.
func (p *Pool) UpdateHistory(conversationID string, entries []history.Entry) bool {
	p.mu.RLock()
	s := p.sessions[conversationID]
	p.mu.RUnlock()
	if s == nil {
		return false
	}
	s.Handle.ReplaceHistory(entries)
	return true
}

// Size returns the number of pooled sessions.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
