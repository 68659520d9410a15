package media

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
	"time"

	"mimo_cam/client/internal/domain"

	"github.com/rs/zerolog"
)

func candidateSignal(t *testing.T) domain.SignalPayload {
	t.Helper()
	raw, err := json.Marshal(icePayload{
		SDPMid:        "0",
		SDPMLineIndex: 0,
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.10 50000 typ host",
	})
	if err != nil {
		t.Fatal(err)
	}
	return domain.SignalPayload{Kind: domain.SignalICECandidate, Payload: raw}
}

func waitGoroutines(t *testing.T, cmp func(int) bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cmp(runtime.NumGoroutine()) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestBeginSubscribe_TimesOutWithoutPeer(t *testing.T) {
	p, err := NewPion(PionConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := p.BeginSubscribe(ctx, "sess1"); !errors.Is(err, domain.ErrNegotiationFailed) {
		t.Errorf("expected ErrNegotiationFailed, got %v", err)
	}
	p.CleanupAll()
}

func TestEndSession_ReleasesPendingCandidateWaits(t *testing.T) {
	p, err := NewPion(PionConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.BeginSubscribe(ctx, "sess1"); !errors.Is(err, domain.ErrNegotiationFailed) {
		t.Fatalf("expected ErrNegotiationFailed, got %v", err)
	}

	// No remote description ever arrives, so each relayed candidate
	// parks a goroutine waiting to apply it.
	before := runtime.NumGoroutine()
	for i := 0; i < 4; i++ {
		p.RelaySignal("sess1", candidateSignal(t))
	}
	if !waitGoroutines(t, func(n int) bool { return n >= before+4 }) {
		t.Fatal("candidate goroutines never parked")
	}

	// Tearing the session down must release them all.
	p.EndSession("sess1")
	if !waitGoroutines(t, func(n int) bool { return n <= before }) {
		t.Errorf("goroutines still parked after EndSession: %d (baseline %d)", runtime.NumGoroutine(), before)
	}
}

func TestCleanupAll_ReleasesPendingCandidateWaits(t *testing.T) {
	p, err := NewPion(PionConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.BeginSubscribe(ctx, "sess1")

	before := runtime.NumGoroutine()
	p.RelaySignal("sess1", candidateSignal(t))
	if !waitGoroutines(t, func(n int) bool { return n >= before+1 }) {
		t.Fatal("candidate goroutine never parked")
	}

	p.CleanupAll()
	if !waitGoroutines(t, func(n int) bool { return n <= before }) {
		t.Errorf("goroutine still parked after CleanupAll: %d (baseline %d)", runtime.NumGoroutine(), before)
	}
}
