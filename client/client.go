// Package client implements the participant side: the transport connection
// to the relay, the chat view with its dedup discipline, and the wiring of
// negotiation events into the peer engine.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/roomcall/roomcall/media"
	"github.com/roomcall/roomcall/model"
	"github.com/roomcall/roomcall/peer"
	"github.com/rs/zerolog"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultPingPeriod     = (defaultPongWait * 9) / 10
	defaultMaxMessageSize = 64 * 1024
)

var (
	ErrNotConnected = errors.New("not connected to relay")
	ErrNoRoom       = errors.New("no room joined")
	ErrEmptyMessage = errors.New("message is empty")
	ErrMediaAccess  = errors.New("unable to acquire local media")
)

type (
	Config struct {
		Logger        *zerolog.Logger
		RelayURL      string
		Factory       peer.Factory
		OnEntry       func(Entry)
		OnRemoteTrack peer.RemoteTrackFunc
	}

	// Client is one participant's session. All inbound events are handled
	// by a single dispatch goroutine running each handler to completion, so
	// negotiation state needs no coordination beyond the manager's own.
	Client struct {
		logger   zerolog.Logger
		relayURL string
		conn     *websocket.Conn

		chat   *ChatView
		mgr    *peer.Manager
		engine *peer.Engine

		outgoing  chan model.Event
		ready     chan struct{}
		done      chan struct{}
		closeOnce sync.Once

		mx   sync.Mutex
		self string
		room string
	}
)

func New(cfg Config) *Client {
	c := &Client{
		logger:   cfg.Logger.With().Str("component", "client").Logger(),
		relayURL: cfg.RelayURL,
		chat:     NewChatView(cfg.OnEntry),
		outgoing: make(chan model.Event, 16),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	factory := cfg.Factory
	if factory == nil {
		factory = peer.PionFactory
	}
	c.mgr = peer.NewManager(peer.ManagerConfig{
		Logger:        cfg.Logger,
		Factory:       factory,
		Signaler:      c,
		OnRemoteTrack: cfg.OnRemoteTrack,
	})
	c.engine = peer.NewEngine(peer.EngineConfig{
		Logger:   cfg.Logger,
		Manager:  c.mgr,
		Signaler: c,
		Acquire: func() (*media.Stream, error) {
			return media.Acquire(true, true)
		},
	})
	return c
}

// Connect dials the relay and blocks until the transport has issued this
// participant's identity.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.relayURL, nil)
	if err != nil {
		return errors.Join(ErrNotConnected, err)
	}
	c.conn = conn
	conn.SetReadLimit(defaultMaxMessageSize)

	go c.writePump()
	go c.dispatchLoop()

	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// ParticipantID returns the transport-issued identity, empty until connected.
func (c *Client) ParticipantID() string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.self
}

// Chat exposes the local message view.
func (c *Client) Chat() *ChatView {
	return c.chat
}

// Join enters a room and requests its history. Joining again is idempotent
// on the relay side; a blank room id is refused locally.
func (c *Client) Join(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return ErrNoRoom
	}
	c.mx.Lock()
	c.room = roomID
	c.mx.Unlock()

	if err := c.emit(model.Event{Type: model.EventJoinChat, RoomID: roomID}); err != nil {
		return err
	}
	return c.emit(model.Event{Type: model.EventGetChatHistory, RoomID: roomID})
}

// Send relays a chat message. The local copy is rendered immediately; the
// relay echo is reconciled against it by messageId. Empty content or no
// joined room refuses the action without emitting anything.
func (c *Client) Send(content string) error {
	c.mx.Lock()
	room, self := c.room, c.self
	c.mx.Unlock()

	msg, ok := model.NewMessage(room, self, content)
	if !ok {
		if strings.TrimSpace(room) == "" {
			return ErrNoRoom
		}
		return ErrEmptyMessage
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.chat.RecordSent(msg)
	return c.emit(model.Event{
		Type:    model.EventSendMessage,
		RoomID:  room,
		Payload: payload,
	})
}

// StartVideo acquires the local media source and announces the call to the
// room. On media failure nothing is emitted and the error is returned.
func (c *Client) StartVideo(video, audio bool) error {
	c.mx.Lock()
	room := c.room
	c.mx.Unlock()
	if room == "" {
		return ErrNoRoom
	}

	stream, err := media.Acquire(video, audio)
	if err != nil {
		return errors.Join(ErrMediaAccess, err)
	}
	c.mgr.SetLocalStream(stream)
	return c.emit(model.Event{Type: model.EventStartVideo, RoomID: room})
}

// EndCall tears down every peer connection. No signaling is emitted and no
// reconnection is attempted.
func (c *Client) EndCall() {
	c.mgr.CloseAll()
}

// Close ends the session: transport closed, all peer connections released.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mgr.CloseAll()
	})
}

// Done is closed when the transport connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SendOffer implements peer.Signaler.
func (c *Client) SendOffer(to string, description webrtc.SessionDescription) error {
	return c.signal(model.EventOffer, to, model.SignalPayload{Description: &description})
}

// SendAnswer implements peer.Signaler.
func (c *Client) SendAnswer(to string, description webrtc.SessionDescription) error {
	return c.signal(model.EventAnswer, to, model.SignalPayload{Description: &description})
}

// SendCandidate implements peer.Signaler.
func (c *Client) SendCandidate(to string, candidate webrtc.ICECandidateInit) error {
	return c.signal(model.EventICECandidate, to, model.SignalPayload{Candidate: &candidate})
}

func (c *Client) signal(eventType, to string, payload model.SignalPayload) error {
	c.mx.Lock()
	room := c.room
	c.mx.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.emit(model.Event{
		DST:     to,
		Type:    eventType,
		RoomID:  room,
		Payload: b,
	})
}

func (c *Client) emit(ev model.Event) error {
	select {
	case c.outgoing <- ev:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

// dispatchLoop is the single goroutine consuming inbound events. Each
// handler runs to completion before the next event is read.
func (c *Client) dispatchLoop() {
	defer c.Close()

	_ = c.conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(defaultPongWait))
	})
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(defaultPongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(defaultWriteWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("transport read ended")
			return
		}
		var ev model.Event
		if err = json.Unmarshal(raw, &ev); err != nil {
			c.logger.Error().Err(err).Msg("failed to unmarshal event")
			continue
		}
		c.logger.Trace().Str("event", spew.Sdump(ev)).Msg("dispatching")
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev model.Event) {
	switch ev.Type {
	case model.EventConnected:
		var payload model.ConnectedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.logger.Error().Err(err).Msg("bad connected payload")
			return
		}
		c.mx.Lock()
		first := c.self == ""
		c.self = payload.ParticipantID
		c.mx.Unlock()
		c.engine.SetSelf(payload.ParticipantID)
		if first {
			close(c.ready)
		}

	case model.EventChatHistory:
		var history []model.Message
		if err := json.Unmarshal(ev.Payload, &history); err != nil {
			c.logger.Error().Err(err).Msg("bad history payload")
			return
		}
		c.chat.SetHistory(history)

	case model.EventReceiveMessage:
		var msg model.Message
		if err := json.Unmarshal(ev.Payload, &msg); err != nil {
			c.logger.Error().Err(err).Msg("bad message payload")
			return
		}
		c.chat.Receive(msg)

	case model.EventVideoStarted:
		var payload model.VideoStartedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.logger.Error().Err(err).Msg("bad video start payload")
			return
		}
		c.engine.HandleVideoStarted(payload.From)

	case model.EventOffer:
		if payload, ok := c.signalPayload(ev); ok && payload.Description != nil {
			c.engine.HandleOffer(ev.SRC, *payload.Description)
		}

	case model.EventAnswer:
		if payload, ok := c.signalPayload(ev); ok && payload.Description != nil {
			c.engine.HandleAnswer(ev.SRC, *payload.Description)
		}

	case model.EventICECandidate:
		if payload, ok := c.signalPayload(ev); ok && payload.Candidate != nil {
			c.engine.HandleCandidate(ev.SRC, *payload.Candidate)
		}

	case model.EventPeerLeft:
		var payload model.PeerLeftPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.logger.Error().Err(err).Msg("bad peer left payload")
			return
		}
		c.engine.HandlePeerLeft(payload.ParticipantID)

	default:
		c.logger.Debug().Str("type", ev.Type).Msg("unknown event type dropped")
	}
}

func (c *Client) signalPayload(ev model.Event) (model.SignalPayload, bool) {
	var payload model.SignalPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		c.logger.Error().Err(err).Str("type", ev.Type).Msg("bad signal payload")
		return payload, false
	}
	return payload, true
}

func (c *Client) writePump() {
	ticker := time.NewTicker(defaultPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := c.conn.WriteJSON(&ev); err != nil {
				c.logger.Error().Err(err).Msg("failed to write event")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
