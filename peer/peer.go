// Package peer owns peer connection lifecycles and drives the
// offer/answer/ICE exchange that upgrades a room to a video call.
package peer

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// State of a single peer connection at the signaling level.
type State int

const (
	StateNew State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s State) terminal() bool {
	return s == StateClosed || s == StateFailed
}

var (
	ErrTerminal      = errors.New("connection is in a terminal state")
	ErrBadTransition = errors.New("operation not valid in current state")
)

// Negotiation is the ICE-capable primitive behind one connection.
// Production code backs it with a pion PeerConnection; tests use a fake.
type Negotiation interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) error
	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// Conn is the connection to one counterpart. Candidates that arrive before
// the remote description are buffered and flushed exactly once, in arrival
// order, when the description lands.
type Conn struct {
	counterpartID string

	mx        sync.Mutex
	nego      Negotiation
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newConn(counterpartID string, nego Negotiation) *Conn {
	return &Conn{
		counterpartID: counterpartID,
		nego:          nego,
		state:         StateNew,
	}
}

func (c *Conn) CounterpartID() string { return c.counterpartID }

func (c *Conn) State() State {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state
}

// Offer generates a local offer and applies it as the local description.
func (c *Conn) Offer() (webrtc.SessionDescription, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state.terminal() {
		return webrtc.SessionDescription{}, ErrTerminal
	}
	if c.state != StateNew {
		return webrtc.SessionDescription{}, ErrBadTransition
	}
	offer, err := c.nego.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, c.failLocked(err)
	}
	if err = c.nego.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, c.failLocked(err)
	}
	c.state = StateHaveLocalOffer
	return offer, nil
}

// AcceptOffer applies a received offer as the remote description and
// produces an answer applied as the local description. After this the
// connection is fully negotiated at the signaling level.
func (c *Conn) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state.terminal() {
		return webrtc.SessionDescription{}, ErrTerminal
	}
	if c.state != StateNew {
		return webrtc.SessionDescription{}, ErrBadTransition
	}
	if err := c.nego.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, c.failLocked(err)
	}
	c.state = StateHaveRemoteOffer
	if err := c.flushPendingLocked(); err != nil {
		return webrtc.SessionDescription{}, c.failLocked(err)
	}
	answer, err := c.nego.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, c.failLocked(err)
	}
	if err = c.nego.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, c.failLocked(err)
	}
	c.state = StateConnected
	return answer, nil
}

// AcceptAnswer applies a received answer as the remote description,
// completing negotiation on the offering side.
func (c *Conn) AcceptAnswer(answer webrtc.SessionDescription) error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state.terminal() {
		return ErrTerminal
	}
	if c.state != StateHaveLocalOffer {
		return ErrBadTransition
	}
	if err := c.nego.SetRemoteDescription(answer); err != nil {
		return c.failLocked(err)
	}
	if err := c.flushPendingLocked(); err != nil {
		return c.failLocked(err)
	}
	c.state = StateConnected
	return nil
}

// AddCandidate applies a remote candidate immediately when the remote
// description is set, otherwise buffers it. Candidates are never applied
// before a remote description exists.
func (c *Conn) AddCandidate(candidate webrtc.ICECandidateInit) error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state.terminal() {
		return ErrTerminal
	}
	if !c.remoteSet {
		c.pending = append(c.pending, candidate)
		return nil
	}
	if err := c.nego.AddICECandidate(candidate); err != nil {
		return c.failLocked(err)
	}
	return nil
}

// Close releases the underlying negotiation primitive. Closing twice is a
// no-op.
func (c *Conn) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state.terminal() {
		return nil
	}
	c.state = StateClosed
	return c.nego.Close()
}

// flushPendingLocked marks the remote description present and applies every
// buffered candidate in arrival order.
func (c *Conn) flushPendingLocked() error {
	c.remoteSet = true
	for _, candidate := range c.pending {
		if err := c.nego.AddICECandidate(candidate); err != nil {
			return err
		}
	}
	c.pending = nil
	return nil
}

func (c *Conn) failLocked(err error) error {
	c.state = StateFailed
	_ = c.nego.Close()
	return err
}
