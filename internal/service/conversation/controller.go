// Package conversation owns the canonical message log of a chat session and
// keeps it reconciled with the engine-side session state across streaming
// exchanges, persona switches, and resets.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mjchen/parley/internal/model/chat"
	"github.com/mjchen/parley/internal/model/persona"
	"github.com/mjchen/parley/internal/service/engine"
)

var (
	ErrNotInitialized    = errors.New("conversation not initialized")
	ErrNoPersonas        = errors.New("persona catalog is empty")
	ErrPersonaNotFound   = errors.New("persona not found")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrExchangeInFlight  = errors.New("another exchange is in flight")
	ErrSessionSuperseded = errors.New("engine session superseded by a persona switch")
)

// Archiver receives best-effort conversation snapshots. Failures are logged
// and swallowed by the controller, never surfaced to the caller.
type Archiver interface {
	Save(ctx context.Context, conversationID, personaID string, turns []chat.Turn) error
}

// Snapshot is a point-in-time view of a conversation for presentation layers.
type Snapshot struct {
	ID        string          `json:"id"`
	Persona   persona.Persona `json:"persona"`
	Turns     []chat.Turn     `json:"turns"`
	InFlight  bool            `json:"inFlight"`
	LastError string          `json:"lastError,omitempty"`
}

// Controller is the conversation state machine. It is the sole owner of its
// message log and engine session handle; every mutation goes through Init,
// Submit, SwitchPersona, Reset, or ClearError. All methods are safe for
// concurrent use, but exchanges are single-flight: a Submit issued while one
// is in progress is rejected, not queued.
type Controller struct {
	id       string
	engine   engine.Engine
	personas persona.Store
	archive  Archiver

	mu        sync.Mutex
	log       chat.Log
	active    persona.Persona
	activeSet bool
	handle    engine.Session
	handleGen uint64
	inFlight  bool
	lastErr   string
}

// NewController builds an uninitialized controller. archive may be nil.
func NewController(id string, eng engine.Engine, personas persona.Store, archive Archiver) *Controller {
	return &Controller{
		id:       id,
		engine:   eng,
		personas: personas,
		archive:  archive,
	}
}

// ID returns the conversation identifier.
func (c *Controller) ID() string {
	return c.id
}

// Init activates the given persona (or the catalog's first when the id is
// empty or unknown) and seeds the greeting turn on a fresh log. An engine
// session creation failure is recoverable: the conversation stays usable and
// the handle is rebuilt lazily on the next Submit.
func (c *Controller) Init(ctx context.Context, personaID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.personas.FindByID(personaID)
	if !ok {
		list := c.personas.List()
		if len(list) == 0 {
			return ErrNoPersonas
		}
		if personaID != "" {
			log.Printf("[conversation] persona %q not found, falling back to %q", personaID, list[0].ID)
		}
		p = list[0]
	}

	return c.activateLocked(ctx, p)
}

// SwitchPersona replaces the engine session handle for a new persona while
// leaving the message log untouched. Switching to the already-active persona
// is a no-op. This is the only path that changes which persona is active.
func (c *Controller) SwitchPersona(ctx context.Context, personaID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeSet {
		return ErrNotInitialized
	}

	p, ok := c.personas.FindByID(personaID)
	if !ok {
		c.lastErr = fmt.Sprintf("Persona with id %q not found. Using current persona.", personaID)
		return fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	if p.ID == c.active.ID {
		return nil
	}

	if err := c.rebuildLocked(ctx, p); err != nil {
		return err
	}

	log.Printf("[conversation] %s switched persona to %s", c.id, p.ID)
	return nil
}

// Reset clears the message log, invalidates the engine session handle, and
// re-initializes the active persona, returning the conversation to its
// fresh-start greeting state.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeSet {
		return ErrNotInitialized
	}
	if c.inFlight {
		return ErrExchangeInFlight
	}

	c.log.Clear()
	log.Printf("[conversation] %s reset with persona %s", c.id, c.active.ID)
	return c.activateLocked(ctx, c.active)
}

// Submit runs one streaming exchange: it appends the user turn and a pending
// assistant placeholder, streams fragments into the placeholder, and
// finalizes it. onDelta, if non-nil, observes every placeholder update with a
// copy of the pending turn. The returned turn is the finalized assistant
// reply. On failure the user turn is retained and the placeholder is
// finalized with an error reply that later reconciliation filters out.
func (c *Controller) Submit(ctx context.Context, text string, onDelta func(chat.Turn)) (chat.Turn, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chat.Turn{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if !c.activeSet {
		c.mu.Unlock()
		return chat.Turn{}, ErrNotInitialized
	}
	if c.inFlight {
		c.mu.Unlock()
		return chat.Turn{}, ErrExchangeInFlight
	}
	c.inFlight = true
	c.lastErr = ""

	userTurn := chat.Turn{
		ID:        uuid.NewString(),
		Speaker:   chat.SpeakerUser,
		Text:      trimmed,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.log.Append(userTurn); err != nil {
		c.inFlight = false
		c.mu.Unlock()
		return chat.Turn{}, err
	}

	// Snapshot before the placeholder exists so a lazy handle rebuild never
	// replays the placeholder as history.
	snapshot := c.log.Turns()

	pending := chat.Turn{
		ID:        uuid.NewString(),
		Speaker:   chat.SpeakerAssistant,
		Text:      "",
		Pending:   true,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.log.Append(pending); err != nil {
		c.inFlight = false
		c.mu.Unlock()
		return chat.Turn{}, err
	}

	active := c.active
	handle := c.handle
	gen := c.handleGen
	c.mu.Unlock()

	if handle == nil {
		built, err := c.engine.CreateSession(ctx, active.SystemPrompt, Reconcile(snapshot, active))

		c.mu.Lock()
		if c.handleGen != gen {
			c.mu.Unlock()
			return c.failExchange(pending.ID, ErrSessionSuperseded)
		}
		if err != nil {
			c.mu.Unlock()
			return c.failExchange(pending.ID, fmt.Errorf("failed to create engine session: %w", err))
		}
		c.handle = built
		handle = built
		c.mu.Unlock()
	}

	stream, err := handle.SendStreaming(ctx, trimmed)
	if err != nil {
		return c.failExchange(pending.ID, err)
	}
	defer stream.Close()

	var accumulated strings.Builder
	for {
		fragment, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return c.failExchange(pending.ID, recvErr)
		}
		if fragment.Text == "" {
			continue
		}

		accumulated.WriteString(fragment.Text)

		c.mu.Lock()
		if c.handleGen != gen {
			c.mu.Unlock()
			return c.failExchange(pending.ID, ErrSessionSuperseded)
		}
		c.log.SetPendingText(pending.ID, accumulated.String())
		updated, _ := c.log.ByID(pending.ID)
		c.mu.Unlock()

		if onDelta != nil {
			onDelta(updated)
		}
	}

	finalText, finalErr := stream.Final()
	if finalErr != nil {
		return c.failExchange(pending.ID, finalErr)
	}

	replyText := strings.TrimSpace(finalText)
	if replyText == "" {
		replyText = strings.TrimSpace(accumulated.String())
	}
	if replyText == "" {
		replyText = noContentMarker
	}

	c.mu.Lock()
	if c.handleGen != gen {
		c.mu.Unlock()
		return c.failExchange(pending.ID, ErrSessionSuperseded)
	}
	c.log.Finalize(pending.ID, replyText)
	final, _ := c.log.ByID(pending.ID)
	c.inFlight = false
	personaID := c.active.ID
	turns := c.log.Turns()
	c.mu.Unlock()

	c.archiveSnapshot(ctx, personaID, turns)
	return final, nil
}

// Snapshot returns a point-in-time copy of the conversation state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:        c.id,
		Persona:   c.active,
		Turns:     c.log.Turns(),
		InFlight:  c.inFlight,
		LastError: c.lastErr,
	}
}

// ActivePersona returns the currently active persona.
func (c *Controller) ActivePersona() (persona.Persona, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.activeSet
}

// LastError returns the most recent reported failure, empty when none.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError dismisses the reported failure without touching history.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = ""
}

// activateLocked runs the lifecycle initialization for p: rebuild the engine
// session and, on a log with no genuine dialogue, seed the greeting as the
// sole content. Callers hold c.mu.
func (c *Controller) activateLocked(ctx context.Context, p persona.Persona) error {
	err := c.rebuildLocked(ctx, p)
	if err != nil {
		return err
	}

	if !c.log.HasUserTurn() {
		c.log.Clear()
		greeting := chat.Turn{
			ID:        uuid.NewString(),
			Speaker:   chat.SpeakerAssistant,
			Text:      p.Greeting,
			CreatedAt: time.Now().UTC(),
		}
		if appendErr := c.log.Append(greeting); appendErr != nil {
			return appendErr
		}
	}
	return nil
}

// rebuildLocked invalidates any existing engine session handle and constructs
// a replacement bound to p's system prompt and the reconciled log history.
// The persona change sticks even when construction fails; the handle is then
// rebuilt lazily on the next Submit. Callers hold c.mu.
func (c *Controller) rebuildLocked(ctx context.Context, p persona.Persona) error {
	c.invalidateHandleLocked()
	c.active = p
	c.activeSet = true

	history := Reconcile(c.log.Turns(), p)
	handle, err := c.engine.CreateSession(ctx, p.SystemPrompt, history)
	if err != nil {
		c.lastErr = fmt.Sprintf("Failed to initialize chat: %v", err)
		return fmt.Errorf("failed to create engine session: %w", err)
	}

	c.handle = handle
	return nil
}

// invalidateHandleLocked drops the live handle and bumps the generation
// counter so in-flight exchanges notice the staleness. Callers hold c.mu.
func (c *Controller) invalidateHandleLocked() {
	c.handle = nil
	c.handleGen++
}

// failExchange finalizes the placeholder with an in-band error reply, records
// the dismissible condition, and clears the in-flight flag. The user turn
// appended at the start of the exchange is never rolled back.
func (c *Controller) failExchange(pendingID string, cause error) (chat.Turn, error) {
	c.mu.Lock()
	reply := fmt.Sprintf("%s: %v. Please try again.", errorReplyPrefix, cause)
	c.log.Finalize(pendingID, reply)
	c.lastErr = fmt.Sprintf("Failed to get response: %v", cause)
	c.inFlight = false
	errorTurn, _ := c.log.ByID(pendingID)
	c.mu.Unlock()

	log.Printf("[conversation] %s exchange failed: %v", c.id, cause)
	return errorTurn, fmt.Errorf("exchange failed: %w", cause)
}

func (c *Controller) archiveSnapshot(ctx context.Context, personaID string, turns []chat.Turn) {
	if c.archive == nil {
		return
	}
	if err := c.archive.Save(ctx, c.id, personaID, turns); err != nil {
		log.Printf("[conversation] %s archive save failed: %v", c.id, err)
	}
}
