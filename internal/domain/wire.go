package domain

import "encoding/json"

// Envelope is the JSON frame exchanged with the coordination server.
// Data stays raw until the message type is known.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Wire message vocabulary.
const (
	// client → server
	MsgRegisterCamera   = "register_camera"
	MsgUnregisterCamera = "unregister_camera"
	MsgStartStream      = "start_stream"
	MsgJoinStream       = "join_stream"
	MsgStopStream       = "stop_stream"
	MsgLeaveStream      = "leave_stream"
	MsgListCameras      = "list_cameras"

	// server → client
	MsgCameraConnected    = "camera_connected"
	MsgCameraDisconnected = "camera_disconnected"
	MsgCameraList         = "camera_list"
	MsgStreamStarted      = "stream_started"
	MsgStreamStopped      = "stream_stopped"
	MsgViewerJoined       = "viewer_joined"
	MsgViewerLeft         = "viewer_left"

	// both directions
	MsgSignaling = "webrtc_signaling"
)

// RegisterCameraData announces a publishable identity.
type RegisterCameraData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

// UnregisterCameraData withdraws an identity.
type UnregisterCameraData struct {
	ID string `json:"id"`
}

// CameraConnectedData is the server's announcement of a visible camera.
type CameraConnectedData struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Status CameraStatus `json:"status,omitempty"`
}

// CameraListData is the server's resync snapshot of visible cameras.
type CameraListData struct {
	Cameras []CameraConnectedData `json:"cameras"`
}

// StreamRequestData begins a session (start_stream / join_stream).
type StreamRequestData struct {
	CameraID  string `json:"cameraId"`
	ViewerID  string `json:"viewerId"`
	Timestamp int64  `json:"timestamp"`
}

// StreamStopData ends a session (stop_stream / leave_stream).
type StreamStopData struct {
	CameraID string `json:"cameraId"`
	ViewerID string `json:"viewerId"`
}

// StreamEventData is the server's session lifecycle ack
// (stream_started / stream_stopped) and membership change
// (viewer_joined / viewer_left).
type StreamEventData struct {
	StreamID string `json:"streamId,omitempty"`
	CameraID string `json:"cameraId"`
	ViewerID string `json:"viewerId,omitempty"`
}

// Camera returns the camera the event refers to. Some server builds
// send only streamId, which carries the camera id for these events.
func (d StreamEventData) Camera() string {
	if d.CameraID != "" {
		return d.CameraID
	}
	return d.StreamID
}

// Signal payload kinds carried by webrtc_signaling envelopes.
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
	SignalStreamStart  = "stream-start"
	SignalStreamStop   = "stream-stop"
)

// SignalPayload is the negotiation relay envelope. Payload is opaque to
// the coordinator; only the media capability interprets it.
type SignalPayload struct {
	Kind      string          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Marshal encodes a data struct for an Envelope. Marshal failures are a
// programming error on our own types; callers treat nil as empty data.
func Marshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
