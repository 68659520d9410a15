package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"mimo_cam/client/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// ICEServer holds STUN/TURN server configuration.
type ICEServer struct {
	URL        string `yaml:"url"`
	Username   string `yaml:"username"`
	Credential string `yaml:"credential"`
}

// PionConfig configures the pion-backed media capability.
type PionConfig struct {
	ICEServers []ICEServer `yaml:"ice_servers"`
}

// sdpPayload is the negotiation blob for offers and answers.
type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// icePayload is the negotiation blob for trickled candidates.
type icePayload struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

// Pion implements domain.MediaCapability on pion/webrtc. One
// PeerConnection per session; all sessions share one API configured
// with the H264/PCMU media engine and a NACK responder.
type Pion struct {
	cfg PionConfig
	api *pion.API
	log zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*pionSession
	local    *pion.TrackLocalStaticSample
	onRemote domain.RemoteMediaFunc
	send     domain.SendSignalFunc
}

type pionSession struct {
	id        string
	pc        *pion.PeerConnection
	publish   bool
	remoteSet chan struct{}
	connected chan struct{}
	done      chan struct{}

	remoteOnce sync.Once
	connOnce   sync.Once
	trackOnce  sync.Once
	doneOnce   sync.Once
}

func (s *pionSession) end() {
	s.doneOnce.Do(func() { close(s.done) })
	s.pc.Close()
}

// NewPion builds the shared webrtc API: minimal codec registration
// (H264 video, PCMU audio) plus a NACK responder interceptor.
func NewPion(cfg PionConfig, log zerolog.Logger) (*Pion, error) {
	m := &pion.MediaEngine{}

	h264 := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 102,
	}
	if err := m.RegisterCodec(h264, pion.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register H264: %w", err)
	}

	pcmu := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:  pion.MimeTypePCMU,
			ClockRate: 8000,
			Channels:  1,
		},
		PayloadType: 0,
	}
	if err := m.RegisterCodec(pcmu, pion.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register PCMU: %w", err)
	}

	reg := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	reg.Add(responder)

	return &Pion{
		cfg:      cfg,
		api:      pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(reg)),
		log:      log.With().Str("mod", "media").Logger(),
		sessions: make(map[string]*pionSession),
	}, nil
}

func (p *Pion) SetOnRemoteMedia(fn domain.RemoteMediaFunc) {
	p.mu.Lock()
	p.onRemote = fn
	p.mu.Unlock()
}

func (p *Pion) SetSignalSender(fn domain.SendSignalFunc) {
	p.mu.Lock()
	p.send = fn
	p.mu.Unlock()
}

// InitializeLocalCapture acquires the local H264 sample track the
// publish sessions feed from. The capture pipeline that fills it lives
// outside this layer; the handle is what the coordinator owns.
func (p *Pion) InitializeLocalCapture(ctx context.Context) (domain.MediaHandle, error) {
	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeH264},
		"video", "mimocam",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCaptureUnavailable, err)
	}

	p.mu.Lock()
	p.local = track
	p.mu.Unlock()

	return &handle{
		id:   "local-capture",
		kind: "local",
		close: func() error {
			p.mu.Lock()
			p.local = nil
			p.mu.Unlock()
			return nil
		},
	}, nil
}

// BeginPublish attaches the local track and waits for the viewer's
// offer to arrive and the connection to establish.
func (p *Pion) BeginPublish(ctx context.Context, sessionID string, local domain.MediaHandle) error {
	if local == nil {
		return fmt.Errorf("%w: no local capture", domain.ErrCaptureUnavailable)
	}

	p.mu.Lock()
	track := p.local
	p.mu.Unlock()
	if track == nil {
		return fmt.Errorf("%w: capture released", domain.ErrCaptureUnavailable)
	}

	sess, err := p.newSession(sessionID, true)
	if err != nil {
		return err
	}
	if _, err := sess.pc.AddTrack(track); err != nil {
		p.EndSession(sessionID)
		return fmt.Errorf("add track: %w", err)
	}

	// The subscriber initiates; our answer goes out from RelaySignal.
	return p.awaitConnected(ctx, sess)
}

// BeginSubscribe creates the offer and waits for the publisher's
// answer and the connection to establish.
func (p *Pion) BeginSubscribe(ctx context.Context, sessionID string) error {
	sess, err := p.newSession(sessionID, false)
	if err != nil {
		return err
	}

	if _, err := sess.pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		p.EndSession(sessionID)
		return fmt.Errorf("add audio transceiver: %w", err)
	}
	if _, err := sess.pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		p.EndSession(sessionID)
		return fmt.Errorf("add video transceiver: %w", err)
	}

	offer, err := sess.pc.CreateOffer(nil)
	if err != nil {
		p.EndSession(sessionID)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := sess.pc.SetLocalDescription(offer); err != nil {
		p.EndSession(sessionID)
		return fmt.Errorf("set local description: %w", err)
	}
	p.sendSignal(sessionID, domain.SignalOffer, sdpPayload{Type: "offer", SDP: offer.SDP})

	return p.awaitConnected(ctx, sess)
}

// RelaySignal feeds an inbound negotiation payload to the session's
// peer connection. Unknown sessions are a logged no-op.
func (p *Pion) RelaySignal(sessionID string, payload domain.SignalPayload) {
	p.mu.Lock()
	sess := p.sessions[sessionID]
	p.mu.Unlock()
	if sess == nil {
		p.log.Warn().Str("session", sessionID).Str("kind", payload.Kind).Msg("signal for unknown session")
		return
	}

	// Off the caller's goroutine: answer creation and candidate
	// addition may block on the peer connection.
	go p.applySignal(sess, payload)
}

func (p *Pion) applySignal(sess *pionSession, payload domain.SignalPayload) {
	switch payload.Kind {
	case domain.SignalOffer:
		var sdp sdpPayload
		if err := json.Unmarshal(payload.Payload, &sdp); err != nil {
			p.log.Warn().Err(err).Str("session", sess.id).Msg("bad offer payload")
			return
		}
		if err := sess.pc.SetRemoteDescription(pion.SessionDescription{
			Type: pion.SDPTypeOffer, SDP: sdp.SDP,
		}); err != nil {
			p.log.Warn().Err(err).Str("session", sess.id).Msg("set remote offer")
			return
		}
		sess.remoteOnce.Do(func() { close(sess.remoteSet) })

		answer, err := sess.pc.CreateAnswer(nil)
		if err != nil {
			p.log.Warn().Err(err).Str("session", sess.id).Msg("create answer")
			return
		}
		if err := sess.pc.SetLocalDescription(answer); err != nil {
			p.log.Warn().Err(err).Str("session", sess.id).Msg("set local answer")
			return
		}
		p.sendSignal(sess.id, domain.SignalAnswer, sdpPayload{Type: "answer", SDP: answer.SDP})

	case domain.SignalAnswer:
		var sdp sdpPayload
		if err := json.Unmarshal(payload.Payload, &sdp); err != nil {
			p.log.Warn().Err(err).Str("session", sess.id).Msg("bad answer payload")
			return
		}
		if err := sess.pc.SetRemoteDescription(pion.SessionDescription{
			Type: pion.SDPTypeAnswer, SDP: sdp.SDP,
		}); err != nil {
			p.log.Warn().Err(err).Str("session", sess.id).Msg("set remote answer")
			return
		}
		sess.remoteOnce.Do(func() { close(sess.remoteSet) })

	case domain.SignalICECandidate:
		var cand icePayload
		if err := json.Unmarshal(payload.Payload, &cand); err != nil {
			p.log.Warn().Err(err).Str("session", sess.id).Msg("bad candidate payload")
			return
		}
		// Candidates may trickle in before the remote description.
		select {
		case <-sess.remoteSet:
		case <-sess.done:
			return
		}
		idx := uint16(cand.SDPMLineIndex)
		if err := sess.pc.AddICECandidate(pion.ICECandidateInit{
			Candidate:     cand.Candidate,
			SDPMid:        &cand.SDPMid,
			SDPMLineIndex: &idx,
		}); err != nil {
			p.log.Warn().Err(err).Str("session", sess.id).Msg("add ice candidate")
		}

	default:
		p.log.Debug().Str("session", sess.id).Str("kind", payload.Kind).Msg("ignoring signal")
	}
}

// EndSession tears down one session only. Unknown ids are a no-op.
func (p *Pion) EndSession(sessionID string) {
	p.mu.Lock()
	sess := p.sessions[sessionID]
	delete(p.sessions, sessionID)
	p.mu.Unlock()
	if sess != nil {
		sess.end()
	}
}

// CleanupAll tears down every session and releases local capture.
func (p *Pion) CleanupAll() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*pionSession)
	p.local = nil
	p.mu.Unlock()

	for _, sess := range sessions {
		sess.end()
	}
}

func (p *Pion) newSession(sessionID string, publish bool) (*pionSession, error) {
	p.mu.Lock()
	if existing, ok := p.sessions[sessionID]; ok {
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	var servers []pion.ICEServer
	for _, s := range p.cfg.ICEServers {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{s.URL},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := p.api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	sess := &pionSession{
		id:        sessionID,
		pc:        pc,
		publish:   publish,
		remoteSet: make(chan struct{}),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			p.log.Debug().Str("session", sessionID).Msg("ICE gathering complete")
			return
		}
		init := c.ToJSON()
		if isLoopback(init.Candidate) {
			return
		}
		mid := ""
		if init.SDPMid != nil {
			mid = *init.SDPMid
		}
		idx := 0
		if init.SDPMLineIndex != nil {
			idx = int(*init.SDPMLineIndex)
		}
		p.sendSignal(sessionID, domain.SignalICECandidate, icePayload{
			SDPMid:        mid,
			SDPMLineIndex: idx,
			Candidate:     init.Candidate,
		})
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Debug().Str("session", sessionID).Str("state", state.String()).Msg("peer connection state")
		if state == pion.PeerConnectionStateConnected {
			sess.connOnce.Do(func() { close(sess.connected) })
		}
	})

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		codec := track.Codec()
		p.log.Info().Str("session", sessionID).
			Str("kind", track.Kind().String()).
			Str("codec", codec.MimeType).
			Msg("remote track")

		done := make(chan struct{})
		go drainTrack(track, done)

		if track.Kind() != pion.RTPCodecTypeVideo {
			return
		}
		sess.trackOnce.Do(func() {
			p.mu.Lock()
			onRemote := p.onRemote
			p.mu.Unlock()
			if onRemote != nil {
				onRemote(sessionID, &handle{
					id:   sessionID + "/" + track.ID(),
					kind: "remote",
					close: func() error {
						close(done)
						return nil
					},
				})
			}
		})
	})

	p.mu.Lock()
	p.sessions[sessionID] = sess
	p.mu.Unlock()
	return sess, nil
}

func (p *Pion) awaitConnected(ctx context.Context, sess *pionSession) error {
	select {
	case <-sess.connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, ctx.Err())
	}
}

func (p *Pion) sendSignal(sessionID, kind string, blob any) {
	p.mu.Lock()
	send := p.send
	p.mu.Unlock()
	if send == nil {
		return
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		p.log.Error().Err(err).Str("session", sessionID).Msg("marshal signal")
		return
	}
	send(sessionID, domain.SignalPayload{Kind: kind, Payload: raw})
}

// drainTrack consumes RTP so pion's buffers do not fill. Rendering the
// stream is outside this layer.
func drainTrack(track *pion.TrackRemote, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}
