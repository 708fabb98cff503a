package chat

import "errors"

var (
	ErrPendingExists  = errors.New("log already has a pending turn")
	ErrInvalidSpeaker = errors.New("turn speaker must be user or assistant")
	ErrPendingNotLast = errors.New("only an assistant turn may be pending")
)

// Log is the ordered, append-only record of a conversation. It is the single
// source of truth for what the user has seen. Turns are chronological; at most
// one turn is pending at a time, and a pending turn is always the most recent
// assistant turn. Log is not safe for concurrent use; its owner serializes
// access.
type Log struct {
	turns []Turn
}

// Append adds a finalized or pending turn to the end of the log.
func (l *Log) Append(t Turn) error {
	if !t.Speaker.Valid() {
		return ErrInvalidSpeaker
	}
	if t.Pending && t.Speaker != SpeakerAssistant {
		return ErrPendingNotLast
	}
	if t.Pending {
		if _, ok := l.Pending(); ok {
			return ErrPendingExists
		}
	}
	l.turns = append(l.turns, t)
	return nil
}

// SetPendingText replaces the text of the pending turn with the given id.
// Each call replaces the whole text field; observers never see partial writes.
func (l *Log) SetPendingText(id, text string) bool {
	for i := range l.turns {
		if l.turns[i].ID == id && l.turns[i].Pending {
			l.turns[i].Text = text
			return true
		}
	}
	return false
}

// Finalize sets the turn's text and clears its pending state. After Finalize
// the turn is immutable.
func (l *Log) Finalize(id, text string) bool {
	for i := range l.turns {
		if l.turns[i].ID == id && l.turns[i].Pending {
			l.turns[i].Text = text
			l.turns[i].Pending = false
			return true
		}
	}
	return false
}

// Pending returns a copy of the pending turn, if any.
func (l *Log) Pending() (Turn, bool) {
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Pending {
			return l.turns[i], true
		}
	}
	return Turn{}, false
}

// ByID returns a copy of the turn with the given id.
func (l *Log) ByID(id string) (Turn, bool) {
	for i := range l.turns {
		if l.turns[i].ID == id {
			return l.turns[i], true
		}
	}
	return Turn{}, false
}

// Turns returns a defensive copy of the log contents in chronological order.
func (l *Log) Turns() []Turn {
	copied := make([]Turn, len(l.turns))
	copy(copied, l.turns)
	return copied
}

// Len reports the number of turns in the log.
func (l *Log) Len() int {
	return len(l.turns)
}

// HasUserTurn reports whether any user turn has been recorded.
func (l *Log) HasUserTurn() bool {
	for i := range l.turns {
		if l.turns[i].Speaker == SpeakerUser {
			return true
		}
	}
	return false
}

// Clear removes every turn. Only the reset path uses this.
func (l *Log) Clear() {
	l.turns = nil
}
