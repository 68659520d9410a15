package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CameraStatus describes the visibility of a registered camera.
type CameraStatus string

const (
	CameraOnline    CameraStatus = "online"
	CameraOffline   CameraStatus = "offline"
	CameraStreaming CameraStatus = "streaming"
)

// CameraIdentity is a publishable camera as tracked by the registry.
// Viewers holds the ids of viewers currently subscribed to it.
type CameraIdentity struct {
	ID          string              `json:"id"`
	DisplayName string              `json:"name"`
	Status      CameraStatus        `json:"status"`
	Viewers     map[string]struct{} `json:"-"`
}

// HasViewer reports whether viewerID is subscribed to this camera.
func (c *CameraIdentity) HasViewer(viewerID string) bool {
	_, ok := c.Viewers[viewerID]
	return ok
}

// Clone returns a deep copy safe to hand outside the registry.
func (c *CameraIdentity) Clone() CameraIdentity {
	out := *c
	out.Viewers = make(map[string]struct{}, len(c.Viewers))
	for v := range c.Viewers {
		out.Viewers[v] = struct{}{}
	}
	return out
}

// NewCameraID generates a client-side camera identifier of the form
// <prefix>_<unixMillis>_<suffix>. The result is opaque to every other
// layer; nothing may parse it beyond uniqueness.
func NewCameraID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), randSuffix(6))
}

// NewViewerID generates a viewer identifier in the same format.
func NewViewerID() string {
	return NewCameraID("VIEWER")
}

func randSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
