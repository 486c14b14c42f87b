package pose

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultWebSocketPath is where VR bridges connect.
const DefaultWebSocketPath = "/pose"

// CommandFunc handles a bare command message such as "recalibrate".
type CommandFunc func(command string)

// WebSocketServer accepts pose streams from a VR bridge and writes them into
// a Store. One connection per bridge; every text message is a Message.
type WebSocketServer struct {
	store     *Store
	logger    *zap.SugaredLogger
	onCommand CommandFunc
	upgrader  websocket.Upgrader
}

// NewWebSocketServer creates a server feeding store. onCommand may be nil.
func NewWebSocketServer(store *Store, logger *zap.SugaredLogger, onCommand CommandFunc) *WebSocketServer {
	return &WebSocketServer{
		store:     store,
		logger:    logger,
		onCommand: onCommand,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// VR bridges run as local pages or native apps with arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the read loop until the peer
// disconnects.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s.logger.Infow("pose bridge connected", "remote", r.RemoteAddr)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnw("pose bridge read error", "remote", r.RemoteAddr, "error", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.handle(data)
	}
	s.logger.Infow("pose bridge disconnected", "remote", r.RemoteAddr)
}

func (s *WebSocketServer) handle(data []byte) {
	m, err := DecodeMessage(data)
	if err != nil {
		s.logger.Debugw("dropping pose message", "error", err)
		return
	}
	dispatch(s.store, s.logger, s.onCommand, m.Device, m)
}

// ListenAndServe serves the websocket endpoint on addr until ctx is done.
func (s *WebSocketServer) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(DefaultWebSocketPath, s)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "serve pose websocket on %s", addr)
	}
}

// dispatch routes one decoded message: commands go to onCommand, samples to
// the store under device (falling back to the message's own device field).
func dispatch(store *Store, logger *zap.SugaredLogger, onCommand CommandFunc, device Device, m Message) {
	if m.Command != "" {
		if onCommand != nil {
			onCommand(m.Command)
		}
		return
	}
	if device == "" {
		device = m.Device
	}
	if device != RightHand && device != Head {
		logger.Debugw("dropping pose for unknown device", "device", device)
		return
	}
	sample, err := m.Sample(store.clock.Now())
	if err != nil {
		logger.Debugw("dropping pose message", "device", device, "error", err)
		return
	}
	store.Update(device, sample)
}
