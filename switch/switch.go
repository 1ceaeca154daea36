package _switch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/roomcall/roomcall/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

var (
	ErrDstNotFound = errors.New("destination endpoint not found")
)

// Switch forwards events between websocket sessions connected to the same
// room. It only knows wires; room membership semantics live in the registry.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]map[string]model.Wire),
	}
}

func (sw *Switch) Connect(roomID, participantID string, wire model.Wire) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("participantID", participantID).
			Msg("endpoint connected")
	}()

	room, ok := sw.fwd[roomID]
	if !ok {
		room = make(map[string]model.Wire)
	}
	room[participantID] = wire
	sw.fwd[roomID] = room
}

func (sw *Switch) Disconnect(roomID, participantID string) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("participantID", participantID).
			Msg("endpoint disconnected")
	}()

	room, ok := sw.fwd[roomID]
	if ok {
		delete(room, participantID)
		sw.fwd[roomID] = room
	}
}

// Broadcast delivers the event to every endpoint connected to the room,
// including the source. Clients that must ignore their own broadcasts do so
// by inspecting SRC; the switch does not special-case the origin.
func (sw *Switch) Broadcast(ctx context.Context, ev model.Event, roomID string) error {
	ev.DST = "" // clear dst just in case
	sw.logger.Trace().Str("event", spew.Sdump(ev)).Msg("broadcasting")

	sw.mx.RLock()
	room := sw.fwd[roomID]
	sw.mx.RUnlock()

	var sent bool
	for _, wire := range room {
		evSent, canceled := send(ctx, ev, wire.TX, &sw.logger)
		if canceled {
			break
		}
		if evSent {
			sent = true
		}
	}
	if !sent {
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("type", ev.Type).
			Str("src", ev.SRC).
			Msg("broadcast did not reach anyone")
	}
	return nil
}

// Send delivers the event to one endpoint in the room. An unknown
// destination is a normal race outcome (the peer never joined or already
// left) and is reported as ErrDstNotFound for the caller to drop on.
func (sw *Switch) Send(ctx context.Context, ev model.Event, roomID string) error {
	sw.logger.Trace().Str("event", spew.Sdump(ev)).Msg("forwarding")

	sw.mx.RLock()
	wire, ok := sw.fwd[roomID][ev.DST]
	sw.mx.RUnlock()

	if !ok {
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("type", ev.Type).
			Str("dst", ev.DST).
			Msg("cannot forward, dst not found")
		return ErrDstNotFound
	}
	if sent, _ := send(ctx, ev, wire.TX, &sw.logger); !sent {
		return ErrDstNotFound
	}
	return nil
}

func send(ctx context.Context, ev model.Event, tx chan<- model.Event, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultFwdTimout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Str("dst", ev.DST).Msg("dead endpoint")
	case tx <- ev:
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
