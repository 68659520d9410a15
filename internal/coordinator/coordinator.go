package coordinator

import (
	"context"
	"time"

	"mimo_cam/client/internal/domain"
	"mimo_cam/client/internal/registry"
	"mimo_cam/client/internal/transport"

	"github.com/rs/zerolog"
)

// Wire is the coordinator's view of the transport socket.
type Wire interface {
	Send(msgType string, data any)
}

// Config holds coordinator tuning knobs.
type Config struct {
	// NegotiationTimeout bounds BeginPublish/BeginSubscribe calls.
	NegotiationTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.NegotiationTimeout == 0 {
		c.NegotiationTimeout = 15 * time.Second
	}
	return c
}

// Coordinator interprets inbound signaling, drives session state
// transitions, and decides when to invoke the media capability and
// what to relay back over the wire.
//
// All registry mutation and media invocation happen on one internal
// goroutine; role session managers call the exported methods, which
// post into that loop and wait. Observer callbacks run on the loop and
// must not call back into the coordinator synchronously.
type Coordinator struct {
	cfg   Config
	wire  Wire
	reg   *registry.Registry
	media domain.MediaCapability
	log   zerolog.Logger

	cmds chan func()
	done chan struct{}

	observers []domain.SessionObserver

	// loop-owned state
	connected    bool
	lastErr      string
	cameraID     string
	cameraName   string
	viewerID     string
	publishing   bool
	localCapture domain.MediaHandle
	pendingBegin map[string]bool
	pendingEnd   map[string]bool
}

func New(cfg Config, wire Wire, reg *registry.Registry, media domain.MediaCapability, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		cfg:          cfg.withDefaults(),
		wire:         wire,
		reg:          reg,
		media:        media,
		log:          log.With().Str("mod", "coordinator").Logger(),
		cmds:         make(chan func(), 128),
		done:         make(chan struct{}),
		pendingBegin: make(map[string]bool),
		pendingEnd:   make(map[string]bool),
	}
	media.SetOnRemoteMedia(c.onRemoteMedia)
	media.SetSignalSender(c.sendSignal)
	go c.run()
	return c
}

// AddObserver registers a session observer. Call before the transport
// connects.
func (c *Coordinator) AddObserver(obs domain.SessionObserver) {
	c.post(func() { c.observers = append(c.observers, obs) })
}

// Stop ends the coordinator loop. The media capability is cleaned up
// first so no session resource outlives the loop.
func (c *Coordinator) Stop() {
	c.do(func() error {
		c.media.CleanupAll()
		return nil
	})
	close(c.done)
}

// HandleTransportEvent is the transport socket's sink. Events are
// processed in receipt order on the coordinator loop.
func (c *Coordinator) HandleTransportEvent(ev transport.Event) {
	c.post(func() { c.handleEvent(ev) })
}

func (c *Coordinator) run() {
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) do(fn func() error) error {
	errc := make(chan error, 1)
	c.post(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return nil
	}
}

// ---- local requests (called by role session managers) ----

// RegisterCamera publishes a camera identity. Fails when another
// identity is already live or the transport is closed.
func (c *Coordinator) RegisterCamera(id, name string) error {
	return c.do(func() error {
		if c.cameraID != "" {
			return domain.ErrAlreadyRegistered
		}
		if !c.connected {
			return domain.ErrNotConnected
		}
		c.cameraID = id
		c.cameraName = name
		c.wire.Send(domain.MsgRegisterCamera, domain.RegisterCameraData{
			ID:        id,
			Name:      name,
			Timestamp: time.Now().UnixMilli(),
		})
		c.reg.UpsertCamera(domain.CameraIdentity{ID: id, DisplayName: name, Status: domain.CameraOnline})
		c.notifyCamera(id)
		return nil
	})
}

// StartPublish acquires local capture and announces the stream. Viewer
// sessions are created as viewers join. No-op while already publishing.
func (c *Coordinator) StartPublish() error {
	var (
		id         string
		publishing bool
	)
	err := c.do(func() error {
		if c.cameraID == "" {
			return domain.ErrCameraNotFound
		}
		if !c.connected {
			return domain.ErrNotConnected
		}
		id = c.cameraID
		publishing = c.publishing
		return nil
	})
	if err != nil {
		return err
	}
	if publishing {
		return nil
	}

	// Capture acquisition can block on hardware; keep it off the loop.
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.NegotiationTimeout)
	defer cancel()
	handle, err := c.media.InitializeLocalCapture(ctx)
	if err != nil {
		return err
	}

	return c.do(func() error {
		if c.publishing {
			// Lost a race with a concurrent StartPublish.
			handle.Close()
			return nil
		}
		c.localCapture = handle
		c.publishing = true
		c.wire.Send(domain.MsgStartStream, domain.StreamRequestData{
			CameraID:  id,
			Timestamp: time.Now().UnixMilli(),
		})
		c.reg.UpsertCamera(domain.CameraIdentity{ID: id, DisplayName: c.cameraName, Status: domain.CameraStreaming})
		c.notifyCamera(id)
		return nil
	})
}

// StopPublish ends every viewer session, withdraws the identity, and
// releases local capture. No-op when nothing is published.
func (c *Coordinator) StopPublish() error {
	return c.do(func() error {
		if c.cameraID == "" {
			return nil
		}
		id := c.cameraID
		for _, sess := range c.reg.SessionsForCamera(id) {
			c.endSession(sess, domain.SessionDisconnected, "")
		}
		c.wire.Send(domain.MsgStopStream, domain.StreamStopData{CameraID: id})
		c.wire.Send(domain.MsgUnregisterCamera, domain.UnregisterCameraData{ID: id})
		c.reg.RemoveCamera(id)
		if c.localCapture != nil {
			c.localCapture.Close()
			c.localCapture = nil
		}
		c.publishing = false
		c.cameraID = ""
		c.cameraName = ""
		for _, obs := range c.observers {
			obs.OnCameraRemoved(id)
		}
		return nil
	})
}

// JoinStream begins (or resumes) a viewer session with a camera. A
// join for an already-active session is idempotent: the existing
// session's state is returned unchanged.
func (c *Coordinator) JoinStream(cameraID, viewerID string) (domain.SessionState, error) {
	var state domain.SessionState
	err := c.do(func() error {
		if !c.connected {
			return domain.ErrNotConnected
		}
		if _, ok := c.reg.GetCamera(cameraID); !ok {
			return domain.ErrCameraNotFound
		}

		c.viewerID = viewerID
		sid := domain.SessionID(cameraID, viewerID)
		if sess, ok := c.reg.GetSession(sid); ok && sess.State.Active() {
			state = sess.State
			return nil
		}

		sess := domain.Session{
			ID:        sid,
			CameraID:  cameraID,
			ViewerID:  viewerID,
			State:     domain.SessionConnecting,
			StartedAt: time.Now(),
		}
		c.reg.UpsertSession(sess)
		state = sess.State
		c.notifySession(sess)

		c.beginMedia(sid, false)
		c.wire.Send(domain.MsgJoinStream, domain.StreamRequestData{
			CameraID:  cameraID,
			ViewerID:  viewerID,
			Timestamp: time.Now().UnixMilli(),
		})
		return nil
	})
	return state, err
}

// LeaveStream stops a viewer session. Idempotent: unknown or already
// terminal sessions are a no-op.
func (c *Coordinator) LeaveStream(cameraID, viewerID string) error {
	return c.do(func() error {
		sid := domain.SessionID(cameraID, viewerID)
		sess, ok := c.reg.GetSession(sid)
		if !ok || sess.State.Terminal() {
			return nil
		}
		c.endSession(sess, domain.SessionDisconnected, "")
		c.wire.Send(domain.MsgLeaveStream, domain.StreamStopData{
			CameraID: cameraID,
			ViewerID: viewerID,
		})
		c.reg.RemoveViewer(cameraID, viewerID)
		return nil
	})
}

// Camera returns a snapshot of one known camera.
func (c *Coordinator) Camera(id string) (domain.CameraIdentity, bool) {
	return c.reg.GetCamera(id)
}

// ListCameras returns a snapshot of known cameras.
func (c *Coordinator) ListCameras() []domain.CameraIdentity {
	return c.reg.ListCameras()
}

// GetSession returns a snapshot of one session.
func (c *Coordinator) GetSession(id string) (domain.Session, bool) {
	return c.reg.GetSession(id)
}

// Connected reports the transport view the coordinator holds.
func (c *Coordinator) Connected() bool {
	var v bool
	c.do(func() error {
		v = c.connected
		return nil
	})
	return v
}

// ---- transport events ----

func (c *Coordinator) handleEvent(ev transport.Event) {
	switch ev := ev.(type) {
	case transport.Opened:
		c.connected = true
		c.lastErr = ""
		c.resync()
		c.notifyTransport()

	case transport.Closed:
		c.handleDisconnect()

	case transport.ErrorEvent:
		c.lastErr = ev.Err.Error()
		c.notifyTransport()

	case transport.Message:
		c.handleEnvelope(ev.Envelope)

	case transport.Binary:
		c.log.Debug().Int("bytes", len(ev.Data)).Msg("ignoring binary frame")
	}
}

// resync re-establishes server-side state after (re)connect: the
// camera identity is re-registered and the camera list re-requested.
func (c *Coordinator) resync() {
	if c.cameraID != "" {
		c.wire.Send(domain.MsgRegisterCamera, domain.RegisterCameraData{
			ID:        c.cameraID,
			Name:      c.cameraName,
			Timestamp: time.Now().UnixMilli(),
		})
		status := domain.CameraOnline
		if c.publishing {
			status = domain.CameraStreaming
		}
		c.reg.UpsertCamera(domain.CameraIdentity{ID: c.cameraID, DisplayName: c.cameraName, Status: status})
	}
	c.wire.Send(domain.MsgListCameras, nil)
}

// handleDisconnect clears all connection-scoped state. Cameras and
// sessions are only meaningful while the transport is live.
func (c *Coordinator) handleDisconnect() {
	if !c.connected && len(c.reg.ListSessions()) == 0 {
		// Dial-failure closes arrive without a prior open.
		c.notifyTransport()
		return
	}
	c.connected = false
	for _, sess := range c.reg.ListSessions() {
		if !sess.State.Terminal() {
			c.endSession(sess, domain.SessionError, "transport disconnected")
		}
	}
	c.media.CleanupAll()
	c.localCapture = nil
	for _, cam := range c.reg.ListCameras() {
		for _, obs := range c.observers {
			obs.OnCameraRemoved(cam.ID)
		}
	}
	c.reg.Clear()
	c.notifyTransport()
}

func (c *Coordinator) handleEnvelope(env domain.Envelope) {
	switch env.Type {
	case domain.MsgCameraConnected:
		var data domain.CameraConnectedData
		if !c.decode(env, &data) {
			return
		}
		c.upsertCamera(data)

	case domain.MsgCameraList:
		var data domain.CameraListData
		if !c.decode(env, &data) {
			return
		}
		for _, cam := range data.Cameras {
			c.upsertCamera(cam)
		}

	case domain.MsgCameraDisconnected:
		var data domain.UnregisterCameraData
		if !c.decode(env, &data) {
			return
		}
		c.removeCamera(data.ID)

	case domain.MsgViewerJoined:
		var data domain.StreamEventData
		if !c.decode(env, &data) {
			return
		}
		c.viewerJoined(data)

	case domain.MsgViewerLeft:
		var data domain.StreamEventData
		if !c.decode(env, &data) {
			return
		}
		c.viewerLeft(data)

	case domain.MsgStreamStarted:
		var data domain.StreamEventData
		if !c.decode(env, &data) {
			return
		}
		c.streamStarted(data)

	case domain.MsgStreamStopped:
		var data domain.StreamEventData
		if !c.decode(env, &data) {
			return
		}
		c.streamStopped(data)

	case domain.MsgSignaling:
		var payload domain.SignalPayload
		if !c.decode(env, &payload) {
			return
		}
		// Opaque relay; the payload is never interpreted here.
		c.media.RelaySignal(payload.SessionID, payload)

	default:
		c.log.Debug().Str("type", env.Type).Msg("unhandled message")
	}
}

func (c *Coordinator) upsertCamera(data domain.CameraConnectedData) {
	status := data.Status
	if status == "" {
		status = domain.CameraOnline
	}
	c.reg.UpsertCamera(domain.CameraIdentity{ID: data.ID, DisplayName: data.Name, Status: status})
	c.notifyCamera(data.ID)
}

func (c *Coordinator) removeCamera(id string) {
	for _, sess := range c.reg.SessionsForCamera(id) {
		if !sess.State.Terminal() {
			c.endSession(sess, domain.SessionError, "camera went offline")
		}
	}
	c.reg.RemoveCamera(id)
	for _, obs := range c.observers {
		obs.OnCameraRemoved(id)
	}
}

// viewerJoined updates membership and, on the publisher side, accepts
// the incoming viewer by creating its session and starting to publish.
func (c *Coordinator) viewerJoined(data domain.StreamEventData) {
	cameraID := data.Camera()
	c.reg.AddViewer(cameraID, data.ViewerID)
	c.notifyCamera(cameraID)

	sid := domain.SessionID(cameraID, data.ViewerID)
	sess, ok := c.reg.GetSession(sid)

	if !ok && c.publishing && cameraID == c.cameraID {
		sess = domain.Session{
			ID:        sid,
			CameraID:  cameraID,
			ViewerID:  data.ViewerID,
			State:     domain.SessionConnecting,
			StartedAt: time.Now(),
		}
		c.reg.UpsertSession(sess)
		c.beginMedia(sid, true)
		ok = true
	}

	if ok && sess.State == domain.SessionConnecting {
		c.transition(sid, domain.SessionConnected, "")
	}
}

// viewerLeft removes membership and errors the one session for that
// viewer, leaving sibling sessions on the same camera untouched.
func (c *Coordinator) viewerLeft(data domain.StreamEventData) {
	cameraID := data.Camera()
	c.reg.RemoveViewer(cameraID, data.ViewerID)
	c.notifyCamera(cameraID)

	sid := domain.SessionID(cameraID, data.ViewerID)
	if sess, ok := c.reg.GetSession(sid); ok && !sess.State.Terminal() {
		c.endSession(sess, domain.SessionError, "peer left")
	}
}

func (c *Coordinator) streamStarted(data domain.StreamEventData) {
	cameraID := data.Camera()
	if data.ViewerID != "" {
		sid := domain.SessionID(cameraID, data.ViewerID)
		if sess, ok := c.reg.GetSession(sid); ok && sess.State == domain.SessionConnecting {
			c.transition(sid, domain.SessionConnected, "")
		}
	}
	if cam, ok := c.reg.GetCamera(cameraID); ok && cam.Status != domain.CameraStreaming {
		cam.Status = domain.CameraStreaming
		c.reg.UpsertCamera(cam)
		c.notifyCamera(cameraID)
	}
}

func (c *Coordinator) streamStopped(data domain.StreamEventData) {
	cameraID := data.Camera()
	if data.ViewerID != "" {
		sid := domain.SessionID(cameraID, data.ViewerID)
		if sess, ok := c.reg.GetSession(sid); ok && !sess.State.Terminal() {
			c.endSession(sess, domain.SessionError, "stream stopped")
		}
	} else {
		for _, sess := range c.reg.SessionsForCamera(cameraID) {
			if !sess.State.Terminal() {
				c.endSession(sess, domain.SessionError, "stream stopped")
			}
		}
	}
	if cam, ok := c.reg.GetCamera(cameraID); ok && cam.Status == domain.CameraStreaming {
		cam.Status = domain.CameraOnline
		c.reg.UpsertCamera(cam)
		c.notifyCamera(cameraID)
	}
}

// ---- media capability plumbing ----

// beginMedia starts negotiation off the loop. Runs on the loop.
func (c *Coordinator) beginMedia(sid string, publish bool) {
	c.pendingBegin[sid] = true
	local := c.localCapture
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.NegotiationTimeout)
		defer cancel()

		var err error
		if publish {
			err = c.media.BeginPublish(ctx, sid, local)
		} else {
			err = c.media.BeginSubscribe(ctx, sid)
		}
		c.post(func() { c.finishBegin(sid, publish, err) })
	}()
}

// finishBegin settles an outstanding begin call. A stop requested in
// the meantime still tears the session down; the media resource is
// never abandoned.
func (c *Coordinator) finishBegin(sid string, publish bool, err error) {
	delete(c.pendingBegin, sid)
	if c.pendingEnd[sid] {
		delete(c.pendingEnd, sid)
		c.media.EndSession(sid)
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Str("session", sid).Msg("negotiation failed")
		if sess, ok := c.reg.GetSession(sid); ok && !sess.State.Terminal() {
			c.endSession(sess, domain.SessionError, err.Error())
		}
		return
	}
	if publish {
		// Local media is flowing once publish negotiation settles.
		if sess, ok := c.reg.GetSession(sid); ok && sess.State == domain.SessionConnected {
			c.transition(sid, domain.SessionStreaming, "")
		}
	}
}

// onRemoteMedia fires from the media capability when remote media
// starts flowing on a subscribe session.
func (c *Coordinator) onRemoteMedia(sid string, handle domain.MediaHandle) {
	c.post(func() {
		sess, ok := c.reg.GetSession(sid)
		if !ok || sess.State.Terminal() {
			handle.Close()
			return
		}
		c.log.Info().Str("session", sid).Str("media", handle.ID()).Msg("remote media available")
		if sess.State == domain.SessionConnecting {
			c.transition(sid, domain.SessionConnected, "")
		}
		c.transition(sid, domain.SessionStreaming, "")
	})
}

// sendSignal relays a locally generated negotiation payload to the
// peer over the wire.
func (c *Coordinator) sendSignal(sid string, payload domain.SignalPayload) {
	c.post(func() {
		payload.SessionID = sid
		if payload.From == "" {
			if c.cameraID != "" {
				payload.From = c.cameraID
			} else {
				payload.From = c.viewerID
			}
		}
		c.wire.Send(domain.MsgSignaling, payload)
	})
}

// ---- state machine helpers (loop-owned) ----

// transition moves a session to a non-terminal state and notifies.
func (c *Coordinator) transition(sid string, state domain.SessionState, reason string) {
	sess, ok := c.reg.GetSession(sid)
	if !ok {
		return
	}
	sess.State = state
	sess.LastError = reason
	c.reg.UpsertSession(sess)
	c.notifySession(sess)
}

// endSession drives a session to a terminal state, tears down its
// media resources, notifies observers, then removes the record. A new
// join creates a fresh session; terminal records are never resurrected.
func (c *Coordinator) endSession(sess domain.Session, state domain.SessionState, reason string) {
	if c.pendingEnd[sess.ID] {
		return
	}
	if c.pendingBegin[sess.ID] {
		// A begin call is still in flight; EndSession runs when it
		// settles.
		c.pendingEnd[sess.ID] = true
	} else {
		c.media.EndSession(sess.ID)
	}
	sess.State = state
	sess.LastError = reason
	c.reg.UpsertSession(sess)
	c.notifySession(sess)
	c.reg.RemoveSession(sess.ID)
}

// ---- observer notification (loop-owned) ----

func (c *Coordinator) notifySession(sess domain.Session) {
	for _, obs := range c.observers {
		obs.OnSessionState(sess)
	}
}

func (c *Coordinator) notifyCamera(id string) {
	cam, ok := c.reg.GetCamera(id)
	if !ok {
		return
	}
	for _, obs := range c.observers {
		obs.OnCameraUpdate(cam)
	}
}

func (c *Coordinator) notifyTransport() {
	for _, obs := range c.observers {
		obs.OnTransportState(c.connected, c.lastErr)
	}
}

func (c *Coordinator) decode(env domain.Envelope, v any) bool {
	if err := decodeJSON(env.Data, v); err != nil {
		c.log.Warn().Err(err).Str("type", env.Type).Msg("bad message data")
		return false
	}
	return true
}
