package client

import (
	"errors"
	"testing"

	"github.com/roomcall/roomcall/peer"
	"github.com/rs/zerolog"
)

func newTestClient() *Client {
	logger := zerolog.Nop()
	return New(Config{
		Logger:   &logger,
		RelayURL: "ws://localhost:0/ws",
		Factory: func() (peer.Negotiation, error) {
			return nil, errors.New("no negotiation in this test")
		},
	})
}

func TestSendRequiresRoom(t *testing.T) {
	c := newTestClient()
	if err := c.Send("hello"); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("got %v, want ErrNoRoom", err)
	}
	if got := len(c.Chat().Entries()); got != 0 {
		t.Fatalf("entry rendered despite refused send: %d", got)
	}
}

func TestJoinRejectsBlankRoom(t *testing.T) {
	c := newTestClient()
	if err := c.Join("   "); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("got %v, want ErrNoRoom", err)
	}
}

func TestSendRejectsEmptyContent(t *testing.T) {
	c := newTestClient()
	if err := c.Join("r1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.Send("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("got %v, want ErrEmptyMessage", err)
	}
	if got := len(c.Chat().Entries()); got != 0 {
		t.Fatalf("entry rendered despite refused send: %d", got)
	}
}

func TestSendRendersOptimistically(t *testing.T) {
	c := newTestClient()
	if err := c.Join("r1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.Send("hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	entries := c.Chat().Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 optimistic entry, got %d", len(entries))
	}
	if !entries[0].SentByMe || entries[0].Content != "hello" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if entries[0].MessageID == "" {
		t.Fatal("no message identity assigned")
	}
}

func TestStartVideoRequiresRoom(t *testing.T) {
	c := newTestClient()
	if err := c.StartVideo(true, true); !errors.Is(err, ErrNoRoom) {
		t.Fatalf("got %v, want ErrNoRoom", err)
	}
}

func TestStartVideoMediaFailure(t *testing.T) {
	c := newTestClient()
	if err := c.Join("r1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	// Requesting no media kinds stands in for a denied capture permission.
	if err := c.StartVideo(false, false); !errors.Is(err, ErrMediaAccess) {
		t.Fatalf("got %v, want ErrMediaAccess", err)
	}
}
