package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/roomcall/roomcall/model"
	"github.com/rs/zerolog"
)

const defaultFwdTimeout = 2 * time.Second

var (
	ErrJoin = errors.New("unable to join room")
)

type (
	RoomStore interface {
		Join(roomID, participantID string) *model.Room
		GetHistory(roomID string) []model.Message
		AppendMessage(roomID string, msg model.Message)
		Members(roomID string) []string
	}

	Switch interface {
		Connect(roomID, participantID string, wire model.Wire)
		Disconnect(roomID, participantID string)
		Broadcast(ctx context.Context, ev model.Event, roomID string) error
		Send(ctx context.Context, ev model.Event, roomID string) error
	}

	// Service drives relay-side semantics for one process: room membership,
	// message fan-out and directed signaling forwarding.
	Service struct {
		store  RoomStore
		sw     Switch
		logger zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:  cfg.RoomStore,
		sw:     cfg.Switch,
		logger: cfg.Logger.With().Str("component", "relay").Logger(),
	}
}

// JoinRoom registers membership. Used by the REST API; websocket sessions
// go through the same path via the join_chat event.
func (svc *Service) JoinRoom(roomID, participantID string) (*model.Room, error) {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(participantID) == "" {
		return nil, ErrJoin
	}
	room := svc.store.Join(roomID, participantID)
	svc.logger.Debug().
		Str("participantID", participantID).
		Str("roomID", roomID).
		Msg("participant joined room")
	return room, nil
}

// History returns the ordered message history, empty for unknown rooms.
func (svc *Service) History(roomID string) []model.Message {
	return svc.store.GetHistory(roomID)
}

// ServeSession processes events arriving on the wire until the context is
// cancelled or the wire's RX channel is closed. It is the single goroutine
// touching this session's joined-room set, so no locking is needed there.
func (svc *Service) ServeSession(ctx context.Context, participantID string, wire model.Wire) {
	logger := svc.logger.With().Str("participantID", participantID).Logger()
	joined := make(map[string]struct{})

	defer svc.closeSession(participantID, joined, &logger)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-wire.RX:
			if !ok {
				return
			}
			ev.SRC = participantID
			svc.handleEvent(ctx, ev, wire, joined, &logger)
		}
	}
}

func (svc *Service) handleEvent(
	ctx context.Context,
	ev model.Event,
	wire model.Wire,
	joined map[string]struct{},
	logger *zerolog.Logger,
) {
	switch ev.Type {
	case model.EventJoinChat:
		if strings.TrimSpace(ev.RoomID) == "" {
			logger.Debug().Msg("join with blank room dropped")
			return
		}
		svc.store.Join(ev.RoomID, ev.SRC)
		svc.sw.Connect(ev.RoomID, ev.SRC, wire)
		joined[ev.RoomID] = struct{}{}

	case model.EventGetChatHistory:
		history := svc.store.GetHistory(ev.RoomID)
		payload, err := json.Marshal(history)
		if err != nil {
			logger.Error().Err(err).Msg("failed to marshal history")
			return
		}
		reply := model.Event{
			DST:     ev.SRC,
			Type:    model.EventChatHistory,
			RoomID:  ev.RoomID,
			Payload: payload,
		}
		select {
		case wire.TX <- reply:
		case <-ctx.Done():
		}

	case model.EventSendMessage:
		svc.relayMessage(ctx, ev, logger)

	case model.EventStartVideo:
		payload, err := json.Marshal(model.VideoStartedPayload{From: ev.SRC})
		if err != nil {
			logger.Error().Err(err).Msg("failed to marshal video start")
			return
		}
		_ = svc.sw.Broadcast(ctx, model.Event{
			SRC:     ev.SRC,
			Type:    model.EventVideoStarted,
			RoomID:  ev.RoomID,
			Payload: payload,
		}, ev.RoomID)

	case model.EventOffer, model.EventAnswer, model.EventICECandidate:
		// Directed signaling. An unknown destination is a normal race
		// outcome, dropped without effect.
		if err := svc.sw.Send(ctx, ev, ev.RoomID); err != nil {
			logger.Debug().
				Str("type", ev.Type).
				Str("dst", ev.DST).
				Msg("signal dropped")
		}

	default:
		logger.Debug().Str("type", ev.Type).Msg("unknown event type dropped")
	}
}

// relayMessage validates, persists and fans out a chat message to every
// member of the room, including the sender's own connection.
func (svc *Service) relayMessage(ctx context.Context, ev model.Event, logger *zerolog.Logger) {
	var msg model.Message
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to unmarshal message")
		return
	}
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" || strings.TrimSpace(ev.RoomID) == "" {
		logger.Debug().Msg("empty message dropped")
		return
	}
	msg.ChatID = ev.RoomID
	msg.SenderID = ev.SRC

	svc.store.AppendMessage(ev.RoomID, msg)

	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal message")
		return
	}
	_ = svc.sw.Broadcast(ctx, model.Event{
		SRC:     ev.SRC,
		Type:    model.EventReceiveMessage,
		RoomID:  ev.RoomID,
		Payload: payload,
	}, ev.RoomID)
}

// closeSession detaches the wire from every joined room and tells remaining
// members the peer is gone so they can tear down its connections.
func (svc *Service) closeSession(participantID string, joined map[string]struct{}, logger *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultFwdTimeout)
	defer cancel()

	payload, err := json.Marshal(model.PeerLeftPayload{ParticipantID: participantID})
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal peer left")
		payload = nil
	}
	for roomID := range joined {
		svc.sw.Disconnect(roomID, participantID)
		if payload != nil {
			_ = svc.sw.Broadcast(ctx, model.Event{
				SRC:     participantID,
				Type:    model.EventPeerLeft,
				RoomID:  roomID,
				Payload: payload,
			}, roomID)
		}
	}
	logger.Debug().Msg("session closed")
}
