package memory

import (
	"fmt"
	"testing"

	"github.com/roomcall/roomcall/model"
)

func TestJoinIsIdempotent(t *testing.T) {
	ms := NewMemStore()

	ms.Join("r1", "p1")
	ms.AppendMessage("r1", model.Message{ChatID: "r1", Content: "hello", MessageID: "m1"})
	ms.Join("r1", "p1")

	members := ms.Members("r1")
	if len(members) != 1 || members[0] != "p1" {
		t.Fatalf("expected single member p1, got %v", members)
	}
	if got := len(ms.GetHistory("r1")); got != 1 {
		t.Fatalf("history changed by repeated join: %d entries", got)
	}
}

func TestUnknownRoomIsEmpty(t *testing.T) {
	ms := NewMemStore()

	history := ms.GetHistory("nope")
	if history == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}
}

func TestHistoryOrdering(t *testing.T) {
	ms := NewMemStore()

	const n = 50
	for i := 0; i < n; i++ {
		sender := fmt.Sprintf("p%d", i%3)
		ms.AppendMessage("r1", model.Message{
			ChatID:    "r1",
			Content:   fmt.Sprintf("msg-%d", i),
			MessageID: fmt.Sprintf("id-%d", i),
			SenderID:  sender,
		})
	}

	history := ms.GetHistory("r1")
	if len(history) != n {
		t.Fatalf("expected %d messages, got %d", n, len(history))
	}
	for i, msg := range history {
		if want := fmt.Sprintf("msg-%d", i); msg.Content != want {
			t.Errorf("position %d: got %q, want %q", i, msg.Content, want)
		}
	}
}

func TestHistoryCopyIsStable(t *testing.T) {
	ms := NewMemStore()
	ms.AppendMessage("r1", model.Message{MessageID: "m1", Content: "one"})

	history := ms.GetHistory("r1")
	history[0].Content = "mutated"

	if got := ms.GetHistory("r1")[0].Content; got != "one" {
		t.Fatalf("stored message mutated through returned slice: %q", got)
	}
}

func TestMultiRoomMembership(t *testing.T) {
	ms := NewMemStore()
	ms.Join("r1", "p1")
	ms.Join("r2", "p1")
	ms.Join("r2", "p2")

	if got := len(ms.Members("r1")); got != 1 {
		t.Errorf("r1 members: got %d, want 1", got)
	}
	if got := len(ms.Members("r2")); got != 2 {
		t.Errorf("r2 members: got %d, want 2", got)
	}
	if ms.Members("r3") != nil {
		t.Error("unknown room should have no members")
	}
}
