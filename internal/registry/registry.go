package registry

import (
	"sync"

	"mimo_cam/client/internal/domain"
)

// Registry is the in-memory view of known cameras and active sessions,
// kept in sync with server push messages. Only the coordinator writes;
// everything else reads value snapshots. No persistence: the contents
// are only meaningful while the transport is live, so the coordinator
// clears it on disconnect.
type Registry struct {
	mu       sync.RWMutex
	cameras  map[string]*domain.CameraIdentity
	sessions map[string]*domain.Session
}

func New() *Registry {
	return &Registry{
		cameras:  make(map[string]*domain.CameraIdentity),
		sessions: make(map[string]*domain.Session),
	}
}

// UpsertCamera inserts or replaces a camera, preserving the existing
// viewer set when the update carries none.
func (r *Registry) UpsertCamera(cam domain.CameraIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cam.Viewers == nil {
		if prev, ok := r.cameras[cam.ID]; ok {
			cam.Viewers = prev.Viewers
		} else {
			cam.Viewers = make(map[string]struct{})
		}
	}
	c := cam.Clone()
	r.cameras[cam.ID] = &c
}

func (r *Registry) RemoveCamera(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cameras, id)
}

// GetCamera returns a snapshot of the camera, if known.
func (r *Registry) GetCamera(id string) (domain.CameraIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cam, ok := r.cameras[id]
	if !ok {
		return domain.CameraIdentity{}, false
	}
	return cam.Clone(), true
}

// ListCameras returns snapshots of every known camera.
func (r *Registry) ListCameras() []domain.CameraIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CameraIdentity, 0, len(r.cameras))
	for _, cam := range r.cameras {
		out = append(out, cam.Clone())
	}
	return out
}

// AddViewer adds viewerID to the camera's viewer set. Membership is
// last-write-wins: interleaved join/leave for the same viewer settle
// on whichever arrived last.
func (r *Registry) AddViewer(cameraID, viewerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cam, ok := r.cameras[cameraID]
	if !ok {
		return false
	}
	cam.Viewers[viewerID] = struct{}{}
	return true
}

// RemoveViewer removes viewerID from the camera's viewer set.
func (r *Registry) RemoveViewer(cameraID, viewerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cam, ok := r.cameras[cameraID]
	if !ok {
		return false
	}
	delete(cam.Viewers, viewerID)
	return true
}

func (r *Registry) UpsertSession(sess domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := sess
	r.sessions[sess.ID] = &s
}

func (r *Registry) RemoveSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) GetSession(id string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return *sess, true
}

// ListSessions returns snapshots of every tracked session.
func (r *Registry) ListSessions() []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, *sess)
	}
	return out
}

// SessionsForCamera returns snapshots of sessions referencing cameraID.
func (r *Registry) SessionsForCamera(cameraID string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Session
	for _, sess := range r.sessions {
		if sess.CameraID == cameraID {
			out = append(out, *sess)
		}
	}
	return out
}

// Clear drops every camera and session. Called on transport disconnect.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras = make(map[string]*domain.CameraIdentity)
	r.sessions = make(map[string]*domain.Session)
}
