package peer

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/roomcall/roomcall/media"
	"github.com/rs/zerolog"
)

var (
	ErrNoLocalStream = errors.New("no local media stream acquired")
	ErrNegotiation   = errors.New("unable to create peer connection")
)

type (
	// Factory allocates a fresh negotiation primitive per connection.
	Factory func() (Negotiation, error)

	// Signaler forwards addressed negotiation messages to a counterpart
	// through the transport.
	Signaler interface {
		SendOffer(to string, description webrtc.SessionDescription) error
		SendAnswer(to string, description webrtc.SessionDescription) error
		SendCandidate(to string, candidate webrtc.ICECandidateInit) error
	}

	// RemoteTrackFunc surfaces an arrived remote media track to the
	// presentation layer.
	RemoteTrackFunc func(counterpartID string, track *webrtc.TrackRemote)

	// Manager owns every live peer connection of the local participant's
	// call, keyed by counterpart. The negotiation engine holds a reference
	// to the manager, never to the table itself.
	Manager struct {
		logger  zerolog.Logger
		factory Factory
		sig     Signaler
		onTrack RemoteTrackFunc

		mx    sync.Mutex
		local *media.Stream
		conns map[string]*Conn
	}

	ManagerConfig struct {
		Logger        *zerolog.Logger
		Factory       Factory
		Signaler      Signaler
		OnRemoteTrack RemoteTrackFunc
	}
)

func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		logger:  cfg.Logger.With().Str("component", "peer-manager").Logger(),
		factory: cfg.Factory,
		sig:     cfg.Signaler,
		onTrack: cfg.OnRemoteTrack,
		conns:   make(map[string]*Conn),
	}
}

// SetLocalStream installs the shared local media source. Must happen before
// any Create call.
func (m *Manager) SetLocalStream(stream *media.Stream) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.local = stream
}

// HasLocalStream reports whether a local media source has been acquired.
func (m *Manager) HasLocalStream() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.local != nil
}

// Create allocates the connection for a counterpart, attaches every local
// track and registers the candidate and remote-track callbacks. A second
// Create for the same counterpart replaces the existing connection. Calling
// Create with no local stream acquired is a precondition violation.
func (m *Manager) Create(counterpartID string) (*Conn, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.local == nil {
		return nil, ErrNoLocalStream
	}
	if old, ok := m.conns[counterpartID]; ok {
		m.logger.Debug().
			Str("counterpartID", counterpartID).
			Msg("replacing existing connection")
		_ = old.Close()
		delete(m.conns, counterpartID)
	}

	nego, err := m.factory()
	if err != nil {
		return nil, errors.Join(ErrNegotiation, err)
	}
	for _, track := range m.local.Tracks() {
		if err = nego.AddTrack(track); err != nil {
			_ = nego.Close()
			return nil, errors.Join(ErrNegotiation, err)
		}
	}

	nego.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		// Trickled as discovered, never batched.
		if sendErr := m.sig.SendCandidate(counterpartID, candidate.ToJSON()); sendErr != nil {
			m.logger.Debug().
				Err(sendErr).
				Str("counterpartID", counterpartID).
				Msg("failed to forward candidate")
		}
	})
	nego.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if m.onTrack != nil {
			m.onTrack(counterpartID, track)
		}
	})

	conn := newConn(counterpartID, nego)
	m.conns[counterpartID] = conn
	m.logger.Debug().
		Str("counterpartID", counterpartID).
		Msg("peer connection created")
	return conn, nil
}

// Get returns the live connection for a counterpart, if any.
func (m *Manager) Get(counterpartID string) (*Conn, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	conn, ok := m.conns[counterpartID]
	return conn, ok
}

// Teardown closes and forgets the counterpart's connection. Unknown
// counterparts are a no-op.
func (m *Manager) Teardown(counterpartID string) {
	m.mx.Lock()
	defer m.mx.Unlock()

	conn, ok := m.conns[counterpartID]
	if !ok {
		return
	}
	_ = conn.Close()
	delete(m.conns, counterpartID)
	m.logger.Debug().
		Str("counterpartID", counterpartID).
		Msg("peer connection torn down")
}

// CloseAll ends the call: every connection is closed and the local stream
// reference dropped. No reconnection is attempted.
func (m *Manager) CloseAll() {
	m.mx.Lock()
	defer m.mx.Unlock()

	for id, conn := range m.conns {
		_ = conn.Close()
		delete(m.conns, id)
	}
	m.local = nil
}
