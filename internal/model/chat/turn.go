package chat

import "time"

// Speaker identifies which side of the conversation produced a turn.
// Only the two declared values are valid.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Valid reports whether s is one of the two known speakers.
func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

// Turn is a single message exchanged by either the user or the assistant.
// A finalized turn is immutable; only the pending assistant placeholder has
// its text rewritten while a response is streaming in.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Pending   bool      `json:"pending,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
