package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mimo_cam/client/internal/domain"

	"github.com/rs/zerolog"
)

func newSim(cfg SimConfig) *Sim {
	if cfg.HandshakeDelay == 0 {
		cfg.HandshakeDelay = time.Millisecond
	}
	return NewSim(cfg, zerolog.Nop())
}

func TestInitializeLocalCapture_Failure(t *testing.T) {
	s := newSim(SimConfig{FailCapture: true})

	_, err := s.InitializeLocalCapture(context.Background())
	if !errors.Is(err, domain.ErrCaptureUnavailable) {
		t.Errorf("expected ErrCaptureUnavailable, got %v", err)
	}
}

func TestBeginPublish_RequiresLocalCapture(t *testing.T) {
	s := newSim(SimConfig{})

	err := s.BeginPublish(context.Background(), "sess1", nil)
	if !errors.Is(err, domain.ErrCaptureUnavailable) {
		t.Errorf("expected ErrCaptureUnavailable, got %v", err)
	}
}

func TestBeginPublish_EmitsStreamStartSignal(t *testing.T) {
	s := newSim(SimConfig{})

	var (
		mu      sync.Mutex
		signals []domain.SignalPayload
	)
	s.SetSignalSender(func(sid string, p domain.SignalPayload) {
		mu.Lock()
		signals = append(signals, p)
		mu.Unlock()
	})

	local, err := s.InitializeLocalCapture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.BeginPublish(context.Background(), "sess1", local); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(signals) != 1 || signals[0].Kind != domain.SignalStreamStart {
		t.Errorf("expected one stream-start signal, got %+v", signals)
	}
}

func TestBeginSubscribe_DeliversRemoteMedia(t *testing.T) {
	s := newSim(SimConfig{})

	remote := make(chan domain.MediaHandle, 1)
	s.SetOnRemoteMedia(func(sid string, h domain.MediaHandle) {
		remote <- h
	})

	if err := s.BeginSubscribe(context.Background(), "sess1"); err != nil {
		t.Fatal(err)
	}

	select {
	case h := <-remote:
		if h.Kind() != "remote" {
			t.Errorf("expected remote handle, got kind %q", h.Kind())
		}
	case <-time.After(time.Second):
		t.Fatal("remote media callback never fired")
	}
}

func TestBeginSubscribe_NegotiationFailure(t *testing.T) {
	s := newSim(SimConfig{FailNegotiation: true})

	err := s.BeginSubscribe(context.Background(), "sess1")
	if !errors.Is(err, domain.ErrNegotiationFailed) {
		t.Errorf("expected ErrNegotiationFailed, got %v", err)
	}
}

func TestBeginSubscribe_ContextCancellation(t *testing.T) {
	s := newSim(SimConfig{HandshakeDelay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.BeginSubscribe(ctx, "sess1")
	if !errors.Is(err, domain.ErrNegotiationFailed) {
		t.Errorf("expected ErrNegotiationFailed, got %v", err)
	}
}

func TestRelaySignal_UnknownSessionIsNoOp(t *testing.T) {
	s := newSim(SimConfig{})

	// Must not panic or create a session.
	s.RelaySignal("ghost", domain.SignalPayload{Kind: domain.SignalICECandidate})
	if n := s.SignalCount("ghost"); n != 0 {
		t.Errorf("expected no recorded signals, got %d", n)
	}
}

func TestRelaySignal_RecordedPerSession(t *testing.T) {
	s := newSim(SimConfig{})
	if err := s.BeginSubscribe(context.Background(), "sess1"); err != nil {
		t.Fatal(err)
	}

	s.RelaySignal("sess1", domain.SignalPayload{Kind: domain.SignalAnswer})
	s.RelaySignal("sess1", domain.SignalPayload{Kind: domain.SignalICECandidate})

	if n := s.SignalCount("sess1"); n != 2 {
		t.Errorf("expected 2 signals, got %d", n)
	}

	s.EndSession("sess1")
	if n := s.SignalCount("sess1"); n != 0 {
		t.Errorf("expected session gone after EndSession, got %d signals", n)
	}
}
