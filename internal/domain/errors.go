package domain

import "errors"

// Typed failures returned across the coordination boundary. Nothing at
// this layer is fatal to the process; callers recover with a new action.
var (
	// ErrNotConnected is returned when an operation needs an open
	// transport and the socket is not open.
	ErrNotConnected = errors.New("transport not connected")

	// ErrCameraNotFound is returned when a camera id is absent from
	// the session registry.
	ErrCameraNotFound = errors.New("camera not found")

	// ErrAlreadyRegistered is returned when a second identity
	// registration is attempted while one is live.
	ErrAlreadyRegistered = errors.New("camera identity already registered")

	// ErrCaptureUnavailable is returned by the media capability when
	// local capture hardware or permission is inaccessible.
	ErrCaptureUnavailable = errors.New("local capture unavailable")

	// ErrNegotiationFailed is returned by the media capability on
	// negotiation timeout or peer rejection.
	ErrNegotiationFailed = errors.New("media negotiation failed")
)
