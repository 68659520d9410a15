package domain

import "time"

// SessionState is the lifecycle state of a camera↔viewer session.
type SessionState string

const (
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
	SessionStreaming    SessionState = "streaming"
	SessionDisconnected SessionState = "disconnected"
	SessionError        SessionState = "error"
)

// Terminal reports whether the state ends the session's lifecycle.
func (s SessionState) Terminal() bool {
	return s == SessionDisconnected || s == SessionError
}

// Active reports whether the state counts toward the at-most-one
// active session per (camera, viewer) pairing invariant.
func (s SessionState) Active() bool {
	return s == SessionConnecting || s == SessionConnected || s == SessionStreaming
}

// Session is one camera↔viewer streaming relationship. At most one
// session per (CameraID, ViewerID) pair may be active at a time.
type Session struct {
	ID        string       `json:"sessionId"`
	CameraID  string       `json:"cameraId"`
	ViewerID  string       `json:"viewerId"`
	State     SessionState `json:"state"`
	StartedAt time.Time    `json:"startedAt"`
	LastError string       `json:"lastError,omitempty"`
}

// SessionID builds the deterministic session id for a pairing. Reused
// when the same viewer rejoins the same camera.
func SessionID(cameraID, viewerID string) string {
	return cameraID + "_" + viewerID
}
