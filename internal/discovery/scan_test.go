package discovery

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthServer(t *testing.T, status int) (host string, port int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(status)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	hostStr, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return hostStr, p
}

func TestScan_FindsHealthyServer(t *testing.T) {
	host, port := healthServer(t, http.StatusOK)

	s := New(Config{
		Ports:        []int{port},
		ExtraHosts:   []string{host},
		ProbeTimeout: 200 * time.Millisecond,
		ScanTimeout:  2 * time.Second,
		BatchSize:    1,
	}, zerolog.Nop())

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://"+net.JoinHostPort(host, strconv.Itoa(port))+"/ws", res.URL)
	assert.Len(t, res.Candidates, 1)
}

func TestScan_UnhealthyServerIsNotACandidate(t *testing.T) {
	host, port := healthServer(t, http.StatusServiceUnavailable)

	s := New(Config{
		Ports:        []int{port},
		ExtraHosts:   []string{host},
		ProbeTimeout: 50 * time.Millisecond,
		ScanTimeout:  300 * time.Millisecond,
		BatchSize:    1,
	}, zerolog.Nop())

	res, err := s.Scan(context.Background())
	require.Error(t, err)
	assert.Empty(t, res.URL)
}

func TestScan_HonorsContextCancellation(t *testing.T) {
	_, port := healthServer(t, http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Config{
		Ports:        []int{port},
		ExtraHosts:   []string{"192.0.2.1"}, // TEST-NET, never answers
		ProbeTimeout: 50 * time.Millisecond,
		ScanTimeout:  5 * time.Second,
		BatchSize:    1,
	}, zerolog.Nop())

	start := time.Now()
	_, err := s.Scan(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
