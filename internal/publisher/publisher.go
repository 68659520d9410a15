// Package publisher is the camera-side role session manager: a thin
// reactive wrapper over the coordinator. It never touches the wire
// protocol directly.
package publisher

import (
	"sort"
	"sync"

	"mimo_cam/client/internal/domain"

	"github.com/rs/zerolog"
)

// Coordinator is the slice of the session coordinator the publisher
// needs.
type Coordinator interface {
	RegisterCamera(id, name string) error
	StartPublish() error
	StopPublish() error
}

// State is the locally observable publisher state for UI rendering.
type State struct {
	IsConnected      bool
	IsPublishing     bool
	ConnectedViewers []string
	LastError        string
}

// Manager tracks the camera role. Implements domain.SessionObserver.
type Manager struct {
	coord  Coordinator
	prefix string
	log    zerolog.Logger

	mu           sync.Mutex
	cameraID     string
	isConnected  bool
	isPublishing bool
	viewers      map[string]struct{}
	lastErr      string
}

// New creates a publisher manager. prefix seeds generated identities.
func New(coord Coordinator, prefix string, log zerolog.Logger) *Manager {
	return &Manager{
		coord:   coord,
		prefix:  prefix,
		log:     log.With().Str("mod", "publisher").Logger(),
		viewers: make(map[string]struct{}),
	}
}

// RegisterIdentity generates and registers a camera identity, returning
// its id. Fails with ErrAlreadyRegistered when one is already live.
func (m *Manager) RegisterIdentity(name string) (string, error) {
	m.mu.Lock()
	if m.cameraID != "" {
		m.mu.Unlock()
		return "", domain.ErrAlreadyRegistered
	}
	m.mu.Unlock()

	id := domain.NewCameraID(m.prefix)
	if err := m.coord.RegisterCamera(id, name); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.cameraID = id
	m.mu.Unlock()
	m.log.Info().Str("camera", id).Str("name", name).Msg("identity registered")
	return id, nil
}

// StartPublishing announces the stream and acquires local capture.
// Incoming viewers are accepted implicitly via coordinator events.
func (m *Manager) StartPublishing() error {
	return m.coord.StartPublish()
}

// StopPublishing ends all viewer sessions and withdraws the identity.
// No-op when nothing is published.
func (m *Manager) StopPublishing() error {
	m.mu.Lock()
	m.cameraID = ""
	m.mu.Unlock()
	return m.coord.StopPublish()
}

// Snapshot returns the current observable state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	viewers := make([]string, 0, len(m.viewers))
	for v := range m.viewers {
		viewers = append(viewers, v)
	}
	sort.Strings(viewers)
	return State{
		IsConnected:      m.isConnected,
		IsPublishing:     m.isPublishing,
		ConnectedViewers: viewers,
		LastError:        m.lastErr,
	}
}

// ---- domain.SessionObserver ----

func (m *Manager) OnCameraUpdate(cam domain.CameraIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cam.ID != m.cameraID {
		return
	}
	m.isPublishing = cam.Status == domain.CameraStreaming
	m.viewers = make(map[string]struct{}, len(cam.Viewers))
	for v := range cam.Viewers {
		m.viewers[v] = struct{}{}
	}
}

func (m *Manager) OnCameraRemoved(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != m.cameraID {
		return
	}
	m.isPublishing = false
	m.viewers = make(map[string]struct{})
}

func (m *Manager) OnSessionState(sess domain.Session) {
	m.mu.Lock()
	own := sess.CameraID == m.cameraID
	m.mu.Unlock()
	if !own {
		return
	}
	m.log.Debug().Str("session", sess.ID).Str("state", string(sess.State)).Msg("viewer session")
	if sess.State == domain.SessionError {
		m.mu.Lock()
		m.lastErr = sess.LastError
		m.mu.Unlock()
	}
}

func (m *Manager) OnTransportState(connected bool, lastErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isConnected = connected
	m.lastErr = lastErr
	if !connected {
		m.isPublishing = false
		m.viewers = make(map[string]struct{})
	}
}
