package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mimo_cam/client/internal/domain"

	"github.com/rs/zerolog"
)

// SimConfig tunes the simulated media capability.
type SimConfig struct {
	// HandshakeDelay is how long a begin call takes to settle.
	HandshakeDelay time.Duration

	// FailCapture makes InitializeLocalCapture fail.
	FailCapture bool

	// FailNegotiation makes begin calls fail after the delay.
	FailNegotiation bool
}

// Sim implements domain.MediaCapability with timer-driven negotiation
// instead of a real peer connection. Used by tests and by runs where
// no media hardware is present; it honors the full contract, including
// unknown-session signal tolerance and the remote-media callback.
type Sim struct {
	cfg SimConfig
	log zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*simSession
	onRemote domain.RemoteMediaFunc
	send     domain.SendSignalFunc
	captured bool
}

type simSession struct {
	publish bool
	signals []domain.SignalPayload
}

func NewSim(cfg SimConfig, log zerolog.Logger) *Sim {
	if cfg.HandshakeDelay == 0 {
		cfg.HandshakeDelay = 20 * time.Millisecond
	}
	return &Sim{
		cfg:      cfg,
		log:      log.With().Str("mod", "media").Logger(),
		sessions: make(map[string]*simSession),
	}
}

func (s *Sim) SetOnRemoteMedia(fn domain.RemoteMediaFunc) {
	s.mu.Lock()
	s.onRemote = fn
	s.mu.Unlock()
}

func (s *Sim) SetSignalSender(fn domain.SendSignalFunc) {
	s.mu.Lock()
	s.send = fn
	s.mu.Unlock()
}

func (s *Sim) InitializeLocalCapture(ctx context.Context) (domain.MediaHandle, error) {
	if s.cfg.FailCapture {
		return nil, fmt.Errorf("%w: simulated capture failure", domain.ErrCaptureUnavailable)
	}
	s.mu.Lock()
	s.captured = true
	s.mu.Unlock()
	return &handle{
		id:   "sim-capture",
		kind: "local",
		close: func() error {
			s.mu.Lock()
			s.captured = false
			s.mu.Unlock()
			return nil
		},
	}, nil
}

func (s *Sim) BeginPublish(ctx context.Context, sessionID string, local domain.MediaHandle) error {
	if local == nil {
		return fmt.Errorf("%w: no local capture", domain.ErrCaptureUnavailable)
	}
	s.addSession(sessionID, true)
	s.emitSignal(sessionID, domain.SignalStreamStart)
	return s.settle(ctx, sessionID)
}

func (s *Sim) BeginSubscribe(ctx context.Context, sessionID string) error {
	s.addSession(sessionID, false)
	s.emitSignal(sessionID, domain.SignalOffer)
	if err := s.settle(ctx, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	onRemote := s.onRemote
	s.mu.Unlock()
	if onRemote != nil {
		go onRemote(sessionID, &handle{id: "sim-remote/" + sessionID, kind: "remote"})
	}
	return nil
}

func (s *Sim) RelaySignal(sessionID string, payload domain.SignalPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.log.Warn().Str("session", sessionID).Str("kind", payload.Kind).Msg("signal for unknown session")
		return
	}
	sess.signals = append(sess.signals, payload)
}

func (s *Sim) EndSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Sim) CleanupAll() {
	s.mu.Lock()
	s.sessions = make(map[string]*simSession)
	s.captured = false
	s.mu.Unlock()
}

// SignalCount reports how many payloads were relayed to a session.
// Test hook.
func (s *Sim) SignalCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(sess.signals)
}

func (s *Sim) addSession(sessionID string, publish bool) {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = &simSession{publish: publish}
	}
	s.mu.Unlock()
}

func (s *Sim) emitSignal(sessionID, kind string) {
	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send != nil {
		send(sessionID, domain.SignalPayload{Kind: kind})
	}
}

// settle simulates the negotiation handshake with a timer.
func (s *Sim) settle(ctx context.Context, sessionID string) error {
	select {
	case <-time.After(s.cfg.HandshakeDelay):
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, ctx.Err())
	}
	if s.cfg.FailNegotiation {
		return fmt.Errorf("%w: simulated rejection", domain.ErrNegotiationFailed)
	}
	return nil
}
