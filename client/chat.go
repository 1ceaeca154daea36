package client

import (
	"sync"

	"github.com/roomcall/roomcall/model"
)

// Entry is one rendered chat line.
type Entry struct {
	model.Message
	SentByMe bool
}

// ChatView is the client half of the message relay: the ordered local view
// of a room's chat plus the bookkeeping that keeps it correct under echo
// and replay of the client's own messages.
//
// Suppression is keyed strictly on messageId: an echo whose id was already
// rendered is dropped, and a genuinely new message with repeated text from
// another participant is kept. Ownership is decided by messageId membership
// in the sent set, never by sender identity.
type ChatView struct {
	mx       sync.Mutex
	entries  []Entry
	rendered map[string]struct{}
	sent     map[string]struct{} // ids this client originated, grows for the session
	onEntry  func(Entry)
}

func NewChatView(onEntry func(Entry)) *ChatView {
	return &ChatView{
		rendered: make(map[string]struct{}),
		sent:     make(map[string]struct{}),
		onEntry:  onEntry,
	}
}

// RecordSent appends the optimistic local copy of a just-sent message and
// registers its id in the sent set.
func (c *ChatView) RecordSent(msg model.Message) {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.sent[msg.MessageID] = struct{}{}
	c.appendLocked(Entry{Message: msg, SentByMe: true})
}

// Receive handles a relay-delivered message. The echo of an already
// rendered message is suppressed; everything else is appended with
// ownership derived from the sent set.
func (c *ChatView) Receive(msg model.Message) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if _, ok := c.rendered[msg.MessageID]; ok {
		return
	}
	_, mine := c.sent[msg.MessageID]
	c.appendLocked(Entry{Message: msg, SentByMe: mine})
}

// SetHistory replaces the whole view with the relay's ordered history.
// Ownership of each entry is recovered from the sent set, so a rejoining
// participant keeps authorship of its earlier messages.
func (c *ChatView) SetHistory(history []model.Message) {
	c.mx.Lock()
	defer c.mx.Unlock()

	c.entries = c.entries[:0]
	c.rendered = make(map[string]struct{}, len(history))
	for _, msg := range history {
		_, mine := c.sent[msg.MessageID]
		c.appendLocked(Entry{Message: msg, SentByMe: mine})
	}
}

// Entries returns a copy of the current ordered view.
func (c *ChatView) Entries() []Entry {
	c.mx.Lock()
	defer c.mx.Unlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *ChatView) appendLocked(entry Entry) {
	c.entries = append(c.entries, entry)
	c.rendered[entry.MessageID] = struct{}{}
	if c.onEntry != nil {
		c.onEntry(entry)
	}
}
