// Package subscriber is the viewer-side role session manager: a thin
// reactive wrapper over the coordinator. It never touches the wire
// protocol directly.
package subscriber

import (
	"sync"

	"mimo_cam/client/internal/domain"

	"github.com/rs/zerolog"
)

// Coordinator is the slice of the session coordinator the subscriber
// needs.
type Coordinator interface {
	Connected() bool
	Camera(id string) (domain.CameraIdentity, bool)
	ListCameras() []domain.CameraIdentity
	JoinStream(cameraID, viewerID string) (domain.SessionState, error)
	LeaveStream(cameraID, viewerID string) error
}

// State is the locally observable subscriber state for UI rendering.
type State struct {
	IsConnected     bool
	ConnectedCamera string
	IsWatching      bool
	LastError       string
}

// Manager tracks the viewer role. Implements domain.SessionObserver.
type Manager struct {
	coord    Coordinator
	viewerID string
	log      zerolog.Logger

	mu          sync.Mutex
	isConnected bool
	camera      string
	isWatching  bool
	lastErr     string
}

func New(coord Coordinator, log zerolog.Logger) *Manager {
	return &Manager{
		coord:    coord,
		viewerID: domain.NewViewerID(),
		log:      log.With().Str("mod", "subscriber").Logger(),
	}
}

// ViewerID returns this viewer's generated identity.
func (m *Manager) ViewerID() string { return m.viewerID }

// ConnectToCamera selects a camera to watch. The transport must
// already be open and the camera known to the registry; there is no
// implicit auto-connect.
func (m *Manager) ConnectToCamera(cameraID string) error {
	if !m.coord.Connected() {
		return domain.ErrNotConnected
	}
	if _, ok := m.coord.Camera(cameraID); !ok {
		return domain.ErrCameraNotFound
	}

	m.mu.Lock()
	m.camera = cameraID
	m.mu.Unlock()
	m.log.Info().Str("camera", cameraID).Msg("connected to camera")
	return nil
}

// StartWatching joins the camera's stream. Joining an already-active
// session is idempotent.
func (m *Manager) StartWatching(cameraID string) error {
	if cameraID == "" {
		m.mu.Lock()
		cameraID = m.camera
		m.mu.Unlock()
	}
	if cameraID == "" {
		return domain.ErrCameraNotFound
	}

	state, err := m.coord.JoinStream(cameraID, m.viewerID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.camera = cameraID
	m.isWatching = state.Active()
	m.mu.Unlock()
	return nil
}

// StopWatching leaves the current stream. No-op when nothing is being
// watched.
func (m *Manager) StopWatching() error {
	m.mu.Lock()
	camera := m.camera
	m.isWatching = false
	m.mu.Unlock()
	if camera == "" {
		return nil
	}
	return m.coord.LeaveStream(camera, m.viewerID)
}

// Disconnect leaves any stream and forgets the selected camera.
func (m *Manager) Disconnect() error {
	err := m.StopWatching()
	m.mu.Lock()
	m.camera = ""
	m.mu.Unlock()
	return err
}

// Cameras lists the currently visible camera identities.
func (m *Manager) Cameras() []domain.CameraIdentity {
	return m.coord.ListCameras()
}

// Snapshot returns the current observable state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		IsConnected:     m.isConnected,
		ConnectedCamera: m.camera,
		IsWatching:      m.isWatching,
		LastError:       m.lastErr,
	}
}

// ---- domain.SessionObserver ----

func (m *Manager) OnCameraUpdate(cam domain.CameraIdentity) {}

func (m *Manager) OnCameraRemoved(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.camera {
		m.camera = ""
		m.isWatching = false
	}
}

func (m *Manager) OnSessionState(sess domain.Session) {
	if sess.ViewerID != m.viewerID {
		return
	}
	m.log.Debug().Str("session", sess.ID).Str("state", string(sess.State)).Msg("session")
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case sess.State.Active():
		m.isWatching = true
	default:
		m.isWatching = false
		if sess.State == domain.SessionError {
			m.lastErr = sess.LastError
		}
	}
}

func (m *Manager) OnTransportState(connected bool, lastErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isConnected = connected
	m.lastErr = lastErr
	if !connected {
		m.isWatching = false
	}
}
