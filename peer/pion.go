package peer

import (
	"github.com/pion/webrtc/v4"
)

// STUN servers for ICE candidate gathering. No TURN, direct connectivity only.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// PionFactory backs each Conn with a pion PeerConnection configured with
// Google STUN servers.
func PionFactory() (Negotiation, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	})
	if err != nil {
		return nil, err
	}
	return &pionNegotiation{pc: pc}, nil
}

type pionNegotiation struct {
	pc *webrtc.PeerConnection
}

func (p *pionNegotiation) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *pionNegotiation) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionNegotiation) SetLocalDescription(description webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(description)
}

func (p *pionNegotiation) SetRemoteDescription(description webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(description)
}

func (p *pionNegotiation) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *pionNegotiation) AddTrack(track webrtc.TrackLocal) error {
	_, err := p.pc.AddTrack(track)
	return err
}

func (p *pionNegotiation) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

func (p *pionNegotiation) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.pc.OnTrack(fn)
}

func (p *pionNegotiation) Close() error {
	return p.pc.Close()
}
