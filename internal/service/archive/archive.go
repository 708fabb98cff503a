// Package archive keeps best-effort conversation snapshots for durability and
// usage analytics. It is a collaborator of the conversation controller, not a
// source of truth: losing a snapshot never affects a live conversation.
package archive

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mjchen/parley/internal/model/chat"
)

var (
	ErrConversationIDRequired = errors.New("conversation id is required")
	ErrPersonaIDRequired      = errors.New("persona id is required")
	ErrSnapshotNotFound       = errors.New("snapshot not found")
)

// Snapshot is one archived conversation state.
type Snapshot struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	PersonaID      string      `json:"personaId"`
	Turns          []chat.Turn `json:"turns"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Store implements an in-memory snapshot archive. One snapshot is kept per
// conversation and overwritten on every save.
type Store struct {
	mu             sync.RWMutex
	snapshots      map[string]Snapshot
	byConversation map[string]string
}

// NewStore bootstraps an empty archive.
func NewStore() *Store {
	return &Store{
		snapshots:      make(map[string]Snapshot),
		byConversation: make(map[string]string),
	}
}

// Save upserts the snapshot for a conversation.
func (s *Store) Save(_ context.Context, conversationID, personaID string, turns []chat.Turn) error {
	if conversationID == "" {
		return ErrConversationIDRequired
	}
	if personaID == "" {
		return ErrPersonaIDRequired
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byConversation[conversationID]; ok {
		snapshot := s.snapshots[id]
		snapshot.PersonaID = personaID
		snapshot.Turns = copied
		snapshot.UpdatedAt = now
		s.snapshots[id] = snapshot
		return nil
	}

	snapshot := Snapshot{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		PersonaID:      personaID,
		Turns:          copied,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.snapshots[snapshot.ID] = snapshot
	s.byConversation[conversationID] = snapshot.ID
	return nil
}

// List returns all snapshots, most recently updated first.
func (s *Store) List(_ context.Context) []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Delete removes a snapshot by id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[id]
	if !ok {
		return ErrSnapshotNotFound
	}

	delete(s.snapshots, id)
	delete(s.byConversation, snapshot.ConversationID)
	return nil
}

// UsageStats reports archived message counts per persona.
func (s *Store) UsageStats(_ context.Context) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, snapshot := range s.snapshots {
		stats[snapshot.PersonaID] += len(snapshot.Turns)
	}
	return stats
}
