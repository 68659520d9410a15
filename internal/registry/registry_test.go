package registry

import (
	"testing"

	"mimo_cam/client/internal/domain"
)

func TestUpsertCamera_PreservesViewersOnUpdate(t *testing.T) {
	r := New()
	r.UpsertCamera(domain.CameraIdentity{ID: "cam1", DisplayName: "Front Door", Status: domain.CameraOnline})
	r.AddViewer("cam1", "viewer1")

	// Status-only update carries no viewer set.
	r.UpsertCamera(domain.CameraIdentity{ID: "cam1", DisplayName: "Front Door", Status: domain.CameraStreaming})

	cam, ok := r.GetCamera("cam1")
	if !ok {
		t.Fatal("expected camera to exist")
	}
	if cam.Status != domain.CameraStreaming {
		t.Errorf("expected status streaming, got %s", cam.Status)
	}
	if !cam.HasViewer("viewer1") {
		t.Error("expected viewer set to survive the update")
	}
}

func TestViewerMembership_LastWriteWins(t *testing.T) {
	r := New()
	r.UpsertCamera(domain.CameraIdentity{ID: "cam1", Status: domain.CameraOnline})

	r.AddViewer("cam1", "viewer1")
	r.RemoveViewer("cam1", "viewer1")
	r.AddViewer("cam1", "viewer1")

	cam, _ := r.GetCamera("cam1")
	if !cam.HasViewer("viewer1") {
		t.Error("expected final add to win")
	}

	r.RemoveViewer("cam1", "viewer1")
	cam, _ = r.GetCamera("cam1")
	if cam.HasViewer("viewer1") {
		t.Error("expected final remove to win")
	}
}

func TestAddViewer_UnknownCamera(t *testing.T) {
	r := New()
	if r.AddViewer("ghost", "viewer1") {
		t.Error("expected AddViewer to report unknown camera")
	}
	if r.RemoveViewer("ghost", "viewer1") {
		t.Error("expected RemoveViewer to report unknown camera")
	}
}

func TestGetCamera_ReturnsSnapshot(t *testing.T) {
	r := New()
	r.UpsertCamera(domain.CameraIdentity{ID: "cam1", Status: domain.CameraOnline})
	r.AddViewer("cam1", "viewer1")

	cam, _ := r.GetCamera("cam1")
	cam.Viewers["intruder"] = struct{}{}
	cam.Status = domain.CameraOffline

	fresh, _ := r.GetCamera("cam1")
	if fresh.HasViewer("intruder") {
		t.Error("mutating a snapshot leaked into the registry")
	}
	if fresh.Status != domain.CameraOnline {
		t.Error("mutating a snapshot changed the stored status")
	}
}

func TestSessionsForCamera_FiltersById(t *testing.T) {
	r := New()
	r.UpsertSession(domain.Session{ID: "cam1_v1", CameraID: "cam1", ViewerID: "v1", State: domain.SessionStreaming})
	r.UpsertSession(domain.Session{ID: "cam1_v2", CameraID: "cam1", ViewerID: "v2", State: domain.SessionConnecting})
	r.UpsertSession(domain.Session{ID: "cam2_v1", CameraID: "cam2", ViewerID: "v1", State: domain.SessionConnected})

	got := r.SessionsForCamera("cam1")
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	for _, sess := range got {
		if sess.CameraID != "cam1" {
			t.Errorf("unexpected session %s", sess.ID)
		}
	}
}

func TestClear_DropsEverything(t *testing.T) {
	r := New()
	r.UpsertCamera(domain.CameraIdentity{ID: "cam1", Status: domain.CameraOnline})
	r.UpsertSession(domain.Session{ID: "cam1_v1", CameraID: "cam1", ViewerID: "v1", State: domain.SessionStreaming})

	r.Clear()

	if len(r.ListCameras()) != 0 {
		t.Error("expected no cameras after Clear")
	}
	if len(r.ListSessions()) != 0 {
		t.Error("expected no sessions after Clear")
	}
}
