package peer

import (
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
)

// fakeNegotiation records every call so tests can assert on ordering and
// application of descriptions and candidates.
type fakeNegotiation struct {
	mx          sync.Mutex
	localDescs  []webrtc.SessionDescription
	remoteDescs []webrtc.SessionDescription
	applied     []webrtc.ICECandidateInit
	tracks      []webrtc.TrackLocal
	onCandidate func(*webrtc.ICECandidate)
	onTrack     func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	closed      bool

	failSetRemote error
	failAddTrack  error
}

func (f *fakeNegotiation) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeNegotiation) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeNegotiation) SetLocalDescription(d webrtc.SessionDescription) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.localDescs = append(f.localDescs, d)
	return nil
}

func (f *fakeNegotiation) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.failSetRemote != nil {
		return f.failSetRemote
	}
	f.remoteDescs = append(f.remoteDescs, d)
	return nil
}

func (f *fakeNegotiation) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.applied = append(f.applied, c)
	return nil
}

func (f *fakeNegotiation) AddTrack(t webrtc.TrackLocal) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.failAddTrack != nil {
		return f.failAddTrack
	}
	f.tracks = append(f.tracks, t)
	return nil
}

func (f *fakeNegotiation) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	f.onCandidate = fn
}

func (f *fakeNegotiation) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	f.onTrack = fn
}

func (f *fakeNegotiation) Close() error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.closed = true
	return nil
}

func (f *fakeNegotiation) appliedCandidates() []webrtc.ICECandidateInit {
	f.mx.Lock()
	defer f.mx.Unlock()
	out := make([]webrtc.ICECandidateInit, len(f.applied))
	copy(out, f.applied)
	return out
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func sdp(t webrtc.SDPType, s string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: t, SDP: s}
}

func TestOfferTransition(t *testing.T) {
	fake := &fakeNegotiation{}
	conn := newConn("p2", fake)

	offer, err := conn.Offer()
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		t.Errorf("offer type: %v", offer.Type)
	}
	if conn.State() != StateHaveLocalOffer {
		t.Errorf("state: %v, want have-local-offer", conn.State())
	}
	if len(fake.localDescs) != 1 {
		t.Errorf("local description not applied")
	}

	if _, err = conn.Offer(); !errors.Is(err, ErrBadTransition) {
		t.Errorf("second offer: got %v, want ErrBadTransition", err)
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	fake := &fakeNegotiation{}
	conn := newConn("p2", fake)

	if _, err := conn.Offer(); err != nil {
		t.Fatalf("offer: %v", err)
	}

	early := []webrtc.ICECandidateInit{
		candidate("c1"), candidate("c2"), candidate("c3"),
	}
	for _, c := range early {
		if err := conn.AddCandidate(c); err != nil {
			t.Fatalf("buffering candidate: %v", err)
		}
	}
	if got := len(fake.appliedCandidates()); got != 0 {
		t.Fatalf("%d candidates applied before remote description", got)
	}

	if err := conn.AcceptAnswer(sdp(webrtc.SDPTypeAnswer, "a")); err != nil {
		t.Fatalf("accept answer: %v", err)
	}

	applied := fake.appliedCandidates()
	if len(applied) != len(early) {
		t.Fatalf("flushed %d candidates, want %d", len(applied), len(early))
	}
	for i := range early {
		if applied[i].Candidate != early[i].Candidate {
			t.Errorf("flush order broken at %d: got %q", i, applied[i].Candidate)
		}
	}

	// Late candidate goes straight through; the buffer is not re-flushed.
	if err := conn.AddCandidate(candidate("late")); err != nil {
		t.Fatalf("late candidate: %v", err)
	}
	applied = fake.appliedCandidates()
	if len(applied) != len(early)+1 || applied[len(applied)-1].Candidate != "late" {
		t.Fatalf("unexpected applied set: %v", applied)
	}
}

func TestAnswererReachesConnected(t *testing.T) {
	fake := &fakeNegotiation{}
	conn := newConn("p1", fake)

	if err := conn.AddCandidate(candidate("early")); err != nil {
		t.Fatalf("early candidate: %v", err)
	}

	answer, err := conn.AcceptOffer(sdp(webrtc.SDPTypeOffer, "o"))
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		t.Errorf("answer type: %v", answer.Type)
	}
	if conn.State() != StateConnected {
		t.Errorf("state: %v, want connected", conn.State())
	}
	applied := fake.appliedCandidates()
	if len(applied) != 1 || applied[0].Candidate != "early" {
		t.Errorf("buffered candidate not flushed: %v", applied)
	}
	if len(fake.remoteDescs) != 1 || len(fake.localDescs) != 1 {
		t.Errorf("descriptions not applied: remote=%d local=%d",
			len(fake.remoteDescs), len(fake.localDescs))
	}
}

func TestAcceptAnswerRequiresLocalOffer(t *testing.T) {
	conn := newConn("p2", &fakeNegotiation{})
	if err := conn.AcceptAnswer(sdp(webrtc.SDPTypeAnswer, "a")); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("got %v, want ErrBadTransition", err)
	}
}

func TestTerminalStateRejectsEverything(t *testing.T) {
	fake := &fakeNegotiation{}
	conn := newConn("p2", fake)

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !fake.closed {
		t.Fatal("negotiation not released")
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}

	if _, err := conn.Offer(); !errors.Is(err, ErrTerminal) {
		t.Errorf("offer after close: %v", err)
	}
	if err := conn.AddCandidate(candidate("c")); !errors.Is(err, ErrTerminal) {
		t.Errorf("candidate after close: %v", err)
	}
}

func TestNegotiationFailureIsTerminal(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeNegotiation{failSetRemote: boom}
	conn := newConn("p2", fake)

	if _, err := conn.Offer(); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := conn.AcceptAnswer(sdp(webrtc.SDPTypeAnswer, "a")); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if conn.State() != StateFailed {
		t.Errorf("state: %v, want failed", conn.State())
	}
	if !fake.closed {
		t.Error("failed connection not released")
	}
}
