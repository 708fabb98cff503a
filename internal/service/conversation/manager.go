package conversation

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/mjchen/parley/internal/model/persona"
	"github.com/mjchen/parley/internal/service/engine"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Manager hosts independent conversation controllers keyed by id. Each
// controller exclusively owns its own log and engine session handle.
type Manager struct {
	engine   engine.Engine
	personas persona.Store
	archive  Archiver

	mu            sync.RWMutex
	conversations map[string]*Controller
}

// NewManager bootstraps an empty registry. archive may be nil.
func NewManager(eng engine.Engine, personas persona.Store, archive Archiver) *Manager {
	return &Manager{
		engine:        eng,
		personas:      personas,
		archive:       archive,
		conversations: make(map[string]*Controller),
	}
}

// Create provisions a conversation initialized with the requested persona.
// An engine-session creation failure does not abort creation: the controller
// stays usable with the failure reported, and the handle is rebuilt lazily.
func (m *Manager) Create(ctx context.Context, personaID string) (*Controller, error) {
	ctrl := NewController(uuid.NewString(), m.engine, m.personas, m.archive)

	if err := ctrl.Init(ctx, personaID); err != nil {
		if errors.Is(err, ErrNoPersonas) {
			return nil, err
		}
		log.Printf("[conversation] init for %s reported: %v", ctrl.ID(), err)
	}

	m.mu.Lock()
	m.conversations[ctrl.ID()] = ctrl
	m.mu.Unlock()

	return ctrl, nil
}

// Get retrieves a conversation by identifier.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ctrl, ok := m.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return ctrl, nil
}
