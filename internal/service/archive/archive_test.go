package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/mjchen/parley/internal/model/chat"
)

func sampleTurns(texts ...string) []chat.Turn {
	turns := make([]chat.Turn, len(texts))
	for i, text := range texts {
		speaker := chat.SpeakerUser
		if i%2 == 1 {
			speaker = chat.SpeakerAssistant
		}
		turns[i] = chat.Turn{ID: text, Speaker: speaker, Text: text}
	}
	return turns
}

func TestSaveRequiresIdentifiers(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Save(ctx, "", "p1", nil); !errors.Is(err, ErrConversationIDRequired) {
		t.Fatalf("expected ErrConversationIDRequired, got %v", err)
	}
	if err := store.Save(ctx, "c1", "", nil); !errors.Is(err, ErrPersonaIDRequired) {
		t.Fatalf("expected ErrPersonaIDRequired, got %v", err)
	}
}

func TestSaveUpsertsPerConversation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Save(ctx, "c1", "p1", sampleTurns("a", "b")); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	if err := store.Save(ctx, "c1", "p2", sampleTurns("a", "b", "c", "d")); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	snapshots := store.List(ctx)
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	if snapshots[0].PersonaID != "p2" {
		t.Fatalf("expected persona p2, got %s", snapshots[0].PersonaID)
	}
	if len(snapshots[0].Turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(snapshots[0].Turns))
	}
}

func TestDeleteUnknownSnapshot(t *testing.T) {
	store := NewStore()
	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestDeleteAllowsResave(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Save(ctx, "c1", "p1", sampleTurns("a")); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	id := store.List(ctx)[0].ID
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if err := store.Save(ctx, "c1", "p1", sampleTurns("a", "b")); err != nil {
		t.Fatalf("Save after delete err: %v", err)
	}
	if got := len(store.List(ctx)); got != 1 {
		t.Fatalf("expected 1 snapshot after resave, got %d", got)
	}
}

func TestUsageStatsCountsTurnsPerPersona(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Save(ctx, "c1", "p1", sampleTurns("a", "b")); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	if err := store.Save(ctx, "c2", "p1", sampleTurns("a", "b", "c")); err != nil {
		t.Fatalf("Save err: %v", err)
	}
	if err := store.Save(ctx, "c3", "p2", sampleTurns("a")); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	stats := store.UsageStats(ctx)
	if stats["p1"] != 5 {
		t.Fatalf("expected p1=5, got %d", stats["p1"])
	}
	if stats["p2"] != 1 {
		t.Fatalf("expected p2=1, got %d", stats["p2"])
	}
}
