package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/camera"
	"github.com/MeKo-Tech/goscan/internal/geometry"
	"github.com/MeKo-Tech/goscan/internal/session"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Requests sent by the camera client.
const (
	requestHello          = "hello"
	requestFlash          = "flash"
	requestResume         = "resume"
	requestStartScan      = "start_scan"
	requestStopScan       = "stop_scan"
	requestSurfaceChanged = "surface_changed"
)

// Events sent to the camera client.
const (
	eventReady          = "ready"
	eventConfigure      = "configure"
	eventFlash          = "flash"
	eventPreviewStarted = "preview_started"
	eventPreviewStopped = "preview_stopped"
	eventRequestFrame   = "request_frame"
	eventScanSuccess    = "scan_success"
	eventDecodeFailure  = "decode_failure"
	eventError          = "error"
)

// SizeMessage is a width and height pair.
type SizeMessage struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RectMessage is a rectangle in view coordinates.
type RectMessage struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// CameraRequest is a JSON control message from the camera client. The first
// message on a connection must be a hello describing the camera.
type CameraRequest struct {
	Type string `json:"type"`

	// hello
	Facing          string        `json:"facing,omitempty"`
	Orientation     int           `json:"orientation,omitempty"`
	Width           int           `json:"width,omitempty"`
	Height          int           `json:"height,omitempty"`
	Sizes           []SizeMessage `json:"sizes,omitempty"`
	DisplayRotation *int          `json:"display_rotation,omitempty"`
	View            *SizeMessage  `json:"view,omitempty"`
	Finder          *RectMessage  `json:"finder,omitempty"`

	// flash
	On bool `json:"on,omitempty"`
}

// CameraEvent is a JSON message sent to the camera client.
type CameraEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	Rotation  int             `json:"rotation,omitempty"`
	Flash     bool            `json:"flash,omitempty"`
	Text      string          `json:"text,omitempty"`
	Format    string          `json:"format,omitempty"`
	Points    []barcode.Point `json:"points,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
}

// cameraInfo turns a hello into the device description.
func (req CameraRequest) cameraInfo() (camera.Info, error) {
	facing, err := camera.ParseFacing(req.Facing)
	if err != nil {
		return camera.Info{}, err
	}
	orientation, err := geometry.NormalizeRotation(req.Orientation)
	if err != nil {
		return camera.Info{}, fmt.Errorf("orientation: %w", err)
	}

	def := geometry.Size{Width: req.Width, Height: req.Height}
	sizes := make([]geometry.Size, 0, len(req.Sizes))
	for _, sz := range req.Sizes {
		if sz.Width > 0 && sz.Height > 0 {
			sizes = append(sizes, geometry.Size{Width: sz.Width, Height: sz.Height})
		}
	}
	if def.Width <= 0 || def.Height <= 0 {
		if len(sizes) == 0 {
			return camera.Info{}, errors.New("hello carries no preview size")
		}
		def = sizes[0]
	}
	if len(sizes) == 0 {
		sizes = []geometry.Size{def}
	}

	return camera.Info{
		Facing:         facing,
		Orientation:    orientation,
		SupportedSizes: sizes,
		DefaultSize:    def,
	}, nil
}

// cameraListener forwards outcomes of one camera session to its client.
type cameraListener struct {
	out  *eventWriter
	conn *cameraConn
}

func (l *cameraListener) ScanSuccess(text string) {
	l.ScanResult(&barcode.Result{Text: text})
}

func (l *cameraListener) ScanResult(res *barcode.Result) {
	l.conn.scans.Add(1)
	decodeRequestsTotal.WithLabelValues("camera", "found").Inc()
	_ = l.out.send(CameraEvent{
		Type:      eventScanSuccess,
		SessionID: l.conn.id,
		Text:      res.Text,
		Format:    res.Format.String(),
		Points:    res.Points,
	})
}

func (l *cameraListener) DecodeFailure() {
	decodeRequestsTotal.WithLabelValues("camera", "not_found").Inc()
	_ = l.out.send(CameraEvent{Type: eventDecodeFailure, SessionID: l.conn.id})
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin admits any origin when CORS is open, else only the
// configured one.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if s.corsOrigin == "" || s.corsOrigin == "*" || origin == "" {
		return true
	}
	return origin == s.corsOrigin
}

// cameraWebSocketHandler runs one live scan session whose camera is the
// websocket client.
func (s *Server) cameraWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log().Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.log().Info("WebSocket camera connected", "remote_addr", r.RemoteAddr)
	s.handleCameraConnection(conn, r.RemoteAddr)
}

func (s *Server) handleCameraConnection(conn *websocket.Conn, remoteAddr string) {
	conn.SetReadLimit(s.maxUploadMB * 1024 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	out := &eventWriter{conn: conn}

	hello, err := readHello(conn)
	if err != nil {
		s.sendWebSocketError(out, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cc, sess, err := s.startCameraSession(ctx, out, hello, remoteAddr)
	if err != nil {
		s.sendWebSocketError(out, "camera_error", err.Error())
		return
	}
	cc.closeFn = func() error {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return conn.Close()
	}
	s.cameras.add(cc)
	logger := s.log().With("session_id", cc.id)
	defer func() {
		s.cameras.remove(cc.id)
		if err := sess.Close(context.Background()); err != nil {
			logger.Warn("Failed to close camera session", "error", err)
		}
		logger.Info("WebSocket camera disconnected", "frames", cc.device.frames.Load(), "scans", cc.scans.Load())
	}()

	if err := out.send(CameraEvent{Type: eventReady, SessionID: cc.id}); err != nil {
		return
	}
	if err := sess.Attach(ctx); err != nil {
		s.sendWebSocketError(out, "camera_error", fmt.Sprintf("Failed to start camera: %v", err))
		return
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		switch messageType {
		case websocket.BinaryMessage:
			if !cc.device.deliver(data) {
				logger.Debug("dropping unrequested frame", "bytes", len(data))
			}
		case websocket.TextMessage:
			s.handleCameraRequest(ctx, out, sess, data)
		}
	}
}

func readHello(conn *websocket.Conn) (CameraRequest, error) {
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return CameraRequest{}, fmt.Errorf("read hello: %w", err)
	}
	websocketMessagesTotal.WithLabelValues("received").Inc()
	if messageType != websocket.TextMessage {
		return CameraRequest{}, errors.New("first message must be a hello")
	}
	var req CameraRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return CameraRequest{}, fmt.Errorf("failed to parse request: %w", err)
	}
	if req.Type != requestHello {
		return CameraRequest{}, fmt.Errorf("first message must be a hello, got %q", req.Type)
	}
	return req, nil
}

// startCameraSession builds the device and session described by hello.
func (s *Server) startCameraSession(
	ctx context.Context,
	out *eventWriter,
	hello CameraRequest,
	remoteAddr string,
) (*cameraConn, *session.Session, error) {
	info, err := hello.cameraInfo()
	if err != nil {
		return nil, nil, err
	}
	rotation := s.rotation
	if hello.DisplayRotation != nil {
		rotation = *hello.DisplayRotation
	}
	reader, err := barcode.NewReader(s.decoder, s.log())
	if err != nil {
		return nil, nil, err
	}

	cc := &cameraConn{
		id:         uuid.New().String(),
		remoteAddr: remoteAddr,
		since:      time.Now(),
		device:     newRemoteDevice(out, info),
	}
	sess, err := session.New(ctx, session.Config{
		Driver:          remoteDriver{dev: cc.device},
		Decoder:         reader,
		Loader:          s.loader,
		Pool:            s.pool,
		Listener:        &cameraListener{out: out, conn: cc},
		Viewport:        s.cameraViewport(hello),
		DisplayRotation: rotation,
		Logger:          s.log().With("session_id", cc.id),
	})
	if err != nil {
		return nil, nil, err
	}
	return cc, sess, nil
}

// cameraViewport uses the client's view and finder when given, the server
// defaults otherwise.
func (s *Server) cameraViewport(hello CameraRequest) session.StaticViewport {
	vp := session.StaticViewport{View: s.viewport, FinderRect: s.finder}
	if hello.View != nil && hello.View.Width > 0 && hello.View.Height > 0 {
		vp.View = geometry.Size{Width: hello.View.Width, Height: hello.View.Height}
	}
	if f := hello.Finder; f != nil {
		vp.FinderRect = image.Rect(f.Left, f.Top, f.Right, f.Bottom)
	}
	return vp
}

// handleCameraRequest applies one control message to the session.
func (s *Server) handleCameraRequest(ctx context.Context, out *eventWriter, sess *session.Session, data []byte) {
	var req CameraRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(out, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	var err error
	switch req.Type {
	case requestFlash:
		err = sess.SetFlash(ctx, req.On)
	case requestResume:
		sess.Resume()
	case requestStartScan:
		err = sess.StartScan(ctx)
	case requestStopScan:
		err = sess.StopScan(ctx)
	case requestSurfaceChanged:
		err = sess.SurfaceChanged(ctx)
	case requestHello:
		err = errors.New("session already started")
	default:
		s.sendWebSocketError(out, "invalid_request", "Unsupported request type: "+req.Type)
		return
	}
	if err != nil {
		s.sendWebSocketError(out, "request_failed", err.Error())
	}
}

// sendWebSocketError sends an error event.
func (s *Server) sendWebSocketError(out *eventWriter, errorType, message string) {
	if err := out.send(CameraEvent{Type: eventError, Error: message, ErrorType: errorType}); err != nil {
		s.log().Error("Failed to send WebSocket error message", "error", err)
	}
}

// keepAlive pings the client until done is closed.
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
