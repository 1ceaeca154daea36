package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/roomcall/roomcall/media"
	"github.com/rs/zerolog"
)

type (
	// AcquireFunc obtains the local media source when a remote participant
	// starts a call and this side has not acquired one yet.
	AcquireFunc func() (*media.Stream, error)

	// Engine reacts to room-scoped negotiation events and drives each peer
	// connection to the connected state. It references the manager's
	// connections, never owns them.
	Engine struct {
		logger  zerolog.Logger
		mgr     *Manager
		sig     Signaler
		acquire AcquireFunc

		mx   sync.Mutex
		self string
	}

	EngineConfig struct {
		Logger   *zerolog.Logger
		Manager  *Manager
		Signaler Signaler
		Acquire  AcquireFunc
	}
)

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		logger:  cfg.Logger.With().Str("component", "negotiation-engine").Logger(),
		mgr:     cfg.Manager,
		sig:     cfg.Signaler,
		acquire: cfg.Acquire,
	}
}

// SetSelf records the local transport identity once known.
func (e *Engine) SetSelf(participantID string) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.self = participantID
}

func (e *Engine) selfID() string {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.self
}

// HandleVideoStarted runs on a video_chat_started broadcast: every member
// except the initiator opens a connection towards the initiator and sends
// an offer.
func (e *Engine) HandleVideoStarted(from string) {
	if from == e.selfID() {
		return
	}
	logger := e.logger.With().Str("initiator", from).Logger()

	if !e.mgr.HasLocalStream() {
		stream, err := e.acquire()
		if err != nil {
			logger.Error().Err(err).Msg("media acquisition failed, not joining call")
			return
		}
		e.mgr.SetLocalStream(stream)
	}

	conn, err := e.mgr.Create(from)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create peer connection")
		return
	}
	offer, err := conn.Offer()
	if err != nil {
		logger.Error().Err(err).Msg("failed to produce offer")
		return
	}
	if err = e.sig.SendOffer(from, offer); err != nil {
		logger.Error().Err(err).Msg("failed to send offer")
	}
}

// HandleOffer runs on the initiator for each member's offer: create or
// reuse the connection, accept the offer and answer it.
func (e *Engine) HandleOffer(from string, offer webrtc.SessionDescription) {
	logger := e.logger.With().Str("counterpartID", from).Logger()

	// Reuse a connection still awaiting negotiation; anything further along
	// is stale for a fresh offer and gets replaced.
	conn, ok := e.mgr.Get(from)
	if !ok || conn.State() != StateNew {
		var err error
		if conn, err = e.mgr.Create(from); err != nil {
			logger.Error().Err(err).Msg("failed to create peer connection for offer")
			return
		}
	}
	answer, err := conn.AcceptOffer(offer)
	if err != nil {
		logger.Error().Err(err).Msg("failed to answer offer")
		return
	}
	if err = e.sig.SendAnswer(from, answer); err != nil {
		logger.Error().Err(err).Msg("failed to send answer")
	}
}

// HandleAnswer completes negotiation on the offering side. An answer for an
// unknown counterpart is a normal race outcome and is dropped.
func (e *Engine) HandleAnswer(from string, answer webrtc.SessionDescription) {
	conn, ok := e.mgr.Get(from)
	if !ok {
		e.logger.Debug().Str("counterpartID", from).Msg("answer for unknown counterpart dropped")
		return
	}
	if err := conn.AcceptAnswer(answer); err != nil {
		e.logger.Error().Err(err).Str("counterpartID", from).Msg("failed to accept answer")
	}
}

// HandleCandidate applies or buffers a trickled remote candidate. A
// candidate for an unknown counterpart is dropped.
func (e *Engine) HandleCandidate(from string, candidate webrtc.ICECandidateInit) {
	conn, ok := e.mgr.Get(from)
	if !ok {
		e.logger.Debug().Str("counterpartID", from).Msg("candidate for unknown counterpart dropped")
		return
	}
	if err := conn.AddCandidate(candidate); err != nil {
		e.logger.Error().Err(err).Str("counterpartID", from).Msg("failed to add candidate")
	}
}

// HandlePeerLeft tears down the connection for a departed counterpart.
func (e *Engine) HandlePeerLeft(participantID string) {
	e.mgr.Teardown(participantID)
}
