package domain

import "context"

// MediaHandle is an opaque reference to flowing media owned by the
// media capability (a local capture or a remote stream).
type MediaHandle interface {
	ID() string
	Kind() string
	Close() error
}

// RemoteMediaFunc is invoked when remote media becomes available for a
// session.
type RemoteMediaFunc func(sessionID string, handle MediaHandle)

// SendSignalFunc relays a locally generated negotiation payload toward
// the peer, via the coordination server.
type SendSignalFunc func(sessionID string, payload SignalPayload)

// MediaCapability is the narrow interface to the external media
// transport. The coordination core never interprets negotiation
// payloads; it only relays them here.
type MediaCapability interface {
	// InitializeLocalCapture acquires camera/microphone resources.
	// Fails with ErrCaptureUnavailable when hardware or permission is
	// inaccessible.
	InitializeLocalCapture(ctx context.Context) (MediaHandle, error)

	// BeginPublish starts publishing local media on a session. Fails
	// with ErrNegotiationFailed on timeout or rejection.
	BeginPublish(ctx context.Context, sessionID string, local MediaHandle) error

	// BeginSubscribe starts receiving remote media on a session. On
	// success the registered RemoteMediaFunc eventually fires.
	BeginSubscribe(ctx context.Context, sessionID string) error

	// RelaySignal feeds an inbound negotiation payload to the session's
	// negotiation state machine. Unknown session ids are a logged
	// no-op, never an error.
	RelaySignal(sessionID string, payload SignalPayload)

	// EndSession tears down one session's local resources only.
	EndSession(sessionID string)

	// CleanupAll tears down every session and releases local capture.
	CleanupAll()

	SetOnRemoteMedia(fn RemoteMediaFunc)
	SetSignalSender(fn SendSignalFunc)
}

// SessionObserver receives coordinator notifications. Role session
// managers implement it; they read registry state only through these
// callbacks and derived snapshots, never by mutating the registry.
type SessionObserver interface {
	OnCameraUpdate(cam CameraIdentity)
	OnCameraRemoved(id string)
	OnSessionState(sess Session)
	OnTransportState(connected bool, lastErr string)
}
