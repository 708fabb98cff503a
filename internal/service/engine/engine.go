// Package engine abstracts the generative engine behind the conversation
// controller: a turn-based, streaming, system-instruction-capable oracle.
package engine

import (
	"context"

	"github.com/mjchen/parley/internal/model/chat"
)

// Fragment is one incremental piece of a streaming response.
type Fragment struct {
	Text string
}

// Stream is a lazy, finite, non-restartable sequence of response fragments.
// Recv returns io.EOF once the sequence is exhausted; Final is only valid
// after that and yields the engine's aggregate text for the whole response.
type Stream interface {
	Recv() (Fragment, error)
	Final() (string, error)
	Close()
}

// Session is an opaque engine-side conversation bound to one system
// instruction and one replayed history. Sessions are never shared across
// persona switches; a superseded session is simply dropped.
type Session interface {
	SendStreaming(ctx context.Context, text string) (Stream, error)
}

// Engine creates sessions. Implementations are safe for use from a single
// conversation controller at a time.
type Engine interface {
	CreateSession(ctx context.Context, systemPrompt string, history []chat.Turn) (Session, error)
}
