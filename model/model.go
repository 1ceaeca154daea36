package model

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Room holds a member set and the ordered message history. Rooms are created
// implicitly on first join and live for the process lifetime.
type Room struct {
	ID       string                 `json:"room_id"`
	Members  map[string]Participant `json:"members"`
	Messages []Message              `json:"messages"`
}

type Participant struct {
	ID string `json:"id"`
}

// Message is the chat record exchanged between clients and relay.
// MessageID is generated by the sender; once appended to a room's history
// the message is immutable.
type Message struct {
	ChatID    string `json:"chatId"`
	Content   string `json:"content"`
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId,omitempty"`
}

// NewMessage builds a message with a fresh sender-generated identity.
// Content is trimmed; an empty result or blank room yields ok=false.
func NewMessage(roomID, senderID, content string) (Message, bool) {
	content = strings.TrimSpace(content)
	if strings.TrimSpace(roomID) == "" || content == "" {
		return Message{}, false
	}
	return Message{
		ChatID:    roomID,
		Content:   content,
		MessageID: uuid.NewString(),
		SenderID:  senderID,
	}, true
}

// Event types understood by the relay.
const (
	EventConnected      = "connected"
	EventJoinChat       = "join_chat"
	EventGetChatHistory = "get_chat_history"
	EventChatHistory    = "chat_history"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventStartVideo     = "start_video_chat"
	EventVideoStarted   = "video_chat_started"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventICECandidate   = "ice-candidate"
	EventPeerLeft       = "peer_left"
)

// Event is the wire envelope for everything crossing the transport.
// For inbound events the relay re-assigns SRC based on the websocket session.
// An empty DST means room broadcast.
type Event struct {
	DST     string          `json:"dst,omitempty"`
	SRC     string          `json:"src,omitempty"`
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConnectedPayload carries the transport-issued participant identity.
type ConnectedPayload struct {
	ParticipantID string `json:"participant_id"`
}

// VideoStartedPayload announces a call initiator to the room.
type VideoStartedPayload struct {
	From string `json:"from"`
}

// SignalPayload carries an SDP description or a trickled ICE candidate for
// one counterpart.
type SignalPayload struct {
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// PeerLeftPayload names a participant whose connection went away.
type PeerLeftPayload struct {
	ParticipantID string `json:"participant_id"`
}

// Wire is a bidirectional event channel pair between a websocket session and
// the switch. RX carries events read from the socket, TX events to write.
type Wire struct {
	RX chan Event
	TX chan Event
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Event),
		TX: make(chan Event),
	}
}
