package conversation

import (
	"strings"

	"github.com/mjchen/parley/internal/model/chat"
	"github.com/mjchen/parley/internal/model/persona"
)

// errorReplyPrefix marks assistant turns written by the failure path of an
// exchange. Reconcile recognizes the prefix and keeps such turns out of the
// history replayed to the engine.
const errorReplyPrefix = "Sorry, an error occurred"

// noContentMarker replaces an assistant reply that produced no text at all.
const noContentMarker = "[No text in response]"

// Reconcile converts the message log into a turn sequence the engine will
// accept: it anchors on the first user turn, drops presentation artifacts
// (empty placeholders, the persona's greeting, error replies), and enforces
// strict user-first alternation. On an alternation mismatch the history is
// truncated rather than reordered; a shorter valid replay beats a complete
// invalid one. Reconcile is pure and never mutates its input.
func Reconcile(turns []chat.Turn, p persona.Persona) []chat.Turn {
	first := -1
	for i, t := range turns {
		if t.Speaker == chat.SpeakerUser {
			first = i
			break
		}
	}
	if first < 0 {
		// No user turn recorded yet: fresh session, nothing to replay.
		return nil
	}

	accepted := make([]chat.Turn, 0, len(turns)-first)
	expected := chat.SpeakerUser
	for _, t := range turns[first:] {
		if t.Speaker == chat.SpeakerAssistant && isArtifact(t.Text, p) {
			continue
		}

		if t.Speaker != expected {
			break
		}

		accepted = append(accepted, t)
		if expected == chat.SpeakerUser {
			expected = chat.SpeakerAssistant
		} else {
			expected = chat.SpeakerUser
		}
	}

	return accepted
}

func isArtifact(text string, p persona.Persona) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == "" ||
		trimmed == strings.TrimSpace(p.Greeting) ||
		strings.HasPrefix(trimmed, errorReplyPrefix)
}
