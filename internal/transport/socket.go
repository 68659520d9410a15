package transport

import (
	"encoding/json"
	"sync"
	"time"

	"mimo_cam/client/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Status of the socket's connection to the coordination server.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
)

// ConnectionState is a snapshot of the socket for UI consumption.
type ConnectionState struct {
	Status     Status
	RetryCount int
	LastError  string
}

// Config holds socket tuning knobs. Zero values get defaults.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration

	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter time.Duration
	MaxRetries    int
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.BackoffJitter == 0 {
		c.BackoffJitter = time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	return c
}

// Socket is the persistent duplex connection to the coordination
// server. It owns reconnect-with-backoff; unexpected closes and dial
// failures are never fatal, only the current attempt is.
type Socket struct {
	cfg     Config
	log     zerolog.Logger
	backoff *Backoff

	mu           sync.Mutex
	conn         *websocket.Conn
	status       Status
	retryCount   int
	lastErr      string
	connecting   bool
	closedByUser bool
	retryTimer   *time.Timer

	writeMu sync.Mutex

	sinkMu sync.Mutex
	sink   func(Event)
	events chan Event
}

// New creates a Socket. random may be nil for the production source.
func New(cfg Config, log zerolog.Logger, random RandomSource) *Socket {
	cfg = cfg.withDefaults()
	s := &Socket{
		cfg:     cfg,
		log:     log.With().Str("mod", "transport").Logger(),
		backoff: NewBackoff(cfg.BackoffBase, cfg.BackoffMax, cfg.BackoffJitter, random),
		status:  StatusIdle,
		events:  make(chan Event, 64),
	}
	go s.dispatchLoop()
	return s
}

// SetSink registers the single event consumer. Must be set before
// Connect; later events delivered to a nil sink are dropped.
func (s *Socket) SetSink(fn func(Event)) {
	s.sinkMu.Lock()
	s.sink = fn
	s.sinkMu.Unlock()
}

// State returns a snapshot of the connection state.
func (s *Socket) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ConnectionState{Status: s.status, RetryCount: s.retryCount, LastError: s.lastErr}
}

// Connect dials the coordination server. Returns false immediately if
// an attempt is already in flight or the socket is open, and false on
// dial failure (which schedules a retry). Returns true once opened.
// A Close issued while the dial is in flight discards the connection;
// Reconnect resumes after a Close.
func (s *Socket) Connect() bool {
	s.mu.Lock()
	if s.connecting || s.status == StatusOpen {
		s.mu.Unlock()
		return false
	}
	s.connecting = true
	s.status = StatusConnecting
	url := s.cfg.URL
	s.mu.Unlock()

	s.log.Info().Str("url", url).Msg("connecting")

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("dial failed")
		s.mu.Lock()
		s.connecting = false
		s.status = StatusClosed
		s.lastErr = err.Error()
		s.scheduleRetryLocked()
		s.mu.Unlock()
		s.emit(ErrorEvent{Err: err})
		return false
	}

	s.mu.Lock()
	if s.closedByUser {
		// Close() arrived mid-handshake; the user's intent wins.
		s.connecting = false
		s.status = StatusClosed
		s.mu.Unlock()
		conn.Close()
		s.log.Info().Msg("dial completed after Close, discarding connection")
		return false
	}
	s.conn = conn
	s.connecting = false
	s.status = StatusOpen
	s.retryCount = 0
	s.lastErr = ""
	s.mu.Unlock()

	s.log.Info().Msg("connected")
	s.emit(Opened{})

	go s.readLoop(conn)
	go s.pingLoop(conn)
	return true
}

// Reconnect resets error state and dials again. No-op while an attempt
// is in progress. Resets the retry counter, so a manual reconnect is
// possible even after the automatic ceiling was reached.
func (s *Socket) Reconnect() bool {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return false
	}
	s.closedByUser = false
	s.retryCount = 0
	s.lastErr = ""
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()
	return s.Connect()
}

// Close cancels any pending reconnect and closes the socket. Idempotent.
func (s *Socket) Close() {
	s.mu.Lock()
	s.closedByUser = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send serializes {type, data} as a text frame. Silently drops (with a
// log line) when the socket is not open; never queues, never errors.
func (s *Socket) Send(msgType string, data any) {
	s.mu.Lock()
	conn := s.conn
	open := s.status == StatusOpen
	s.mu.Unlock()

	if !open || conn == nil {
		s.log.Debug().Str("type", msgType).Msg("dropping send, socket not open")
		return
	}

	env := domain.Envelope{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			s.log.Error().Err(err).Str("type", msgType).Msg("marshal failed")
			return
		}
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		s.log.Error().Err(err).Str("type", msgType).Msg("marshal failed")
		return
	}

	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		// The read loop will observe the dead connection and run the
		// normal close path.
		s.log.Warn().Err(err).Str("type", msgType).Msg("write failed")
	}
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(conn, err)
			return
		}

		switch kind {
		case websocket.TextMessage:
			var env domain.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				s.log.Warn().Err(err).Msg("bad frame")
				continue
			}
			s.emit(Message{Envelope: env})
		case websocket.BinaryMessage:
			s.emit(Binary{Data: data})
		}
	}
}

func (s *Socket) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		current := s.conn == conn && s.status == StatusOpen
		s.mu.Unlock()
		if !current {
			return
		}

		s.writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
		s.writeMu.Unlock()
		if err != nil {
			s.log.Warn().Err(err).Msg("ping failed")
			conn.Close()
			return
		}
	}
}

// handleClose runs once per connection, from its read loop.
func (s *Socket) handleClose(conn *websocket.Conn, err error) {
	conn.Close()

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.status = StatusClosed
	expected := s.closedByUser

	code := websocket.CloseAbnormalClosure
	reason := ""
	if ce, ok := err.(*websocket.CloseError); ok {
		code = ce.Code
		reason = ce.Text
	}
	if !expected {
		s.lastErr = err.Error()
		s.scheduleRetryLocked()
	}
	s.mu.Unlock()

	if expected {
		s.log.Info().Msg("closed")
	} else {
		s.log.Warn().Err(err).Msg("connection lost")
		s.emit(ErrorEvent{Err: err})
	}
	s.emit(Closed{Code: code, Reason: reason})
}

// scheduleRetryLocked arms the reconnect timer. Caller holds mu.
func (s *Socket) scheduleRetryLocked() {
	if s.closedByUser {
		return
	}
	if s.retryCount >= s.cfg.MaxRetries {
		s.log.Warn().Int("retries", s.retryCount).Msg("retry ceiling reached, reconnect manually")
		return
	}
	delay := s.backoff.Delay(s.retryCount)
	s.retryCount++
	s.log.Info().Dur("delay", delay).Int("attempt", s.retryCount).Msg("scheduling reconnect")
	s.retryTimer = time.AfterFunc(delay, func() { s.Connect() })
}

func (s *Socket) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Msg("event queue full, dropping")
	}
}

func (s *Socket) dispatchLoop() {
	for ev := range s.events {
		s.sinkMu.Lock()
		sink := s.sink
		s.sinkMu.Unlock()
		if sink != nil {
			sink(ev)
		}
	}
}
