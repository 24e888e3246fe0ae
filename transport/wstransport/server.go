package wstransport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/casualjim/courier/client"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/gorilla/websocket"
)

const (
	// QueryClient names the client a connection speaks for.
	QueryClient = "client"
	// QuerySubscribe lists, comma separated, the event types forwarded to the connection.
	QuerySubscribe = "subscribe"
)

// ServerOption configures a Server.
type ServerOption = opts.Option[Server]

var (
	// WithLogger sets the logger.
	WithLogger = opts.ForName[Server, *slog.Logger]("logger")

	// WithReplyTimeout makes unicast deliveries wait for the peer's result frame.
	WithReplyTimeout = opts.ForName[Server, time.Duration]("replyTimeout")
)

// WithCheckOrigin overrides the upgrader's origin check.
func WithCheckOrigin(check func(*http.Request) bool) ServerOption {
	return opts.Type[Server](func(s *Server) error {
		s.checkOrigin = check
		return nil
	})
}

// WithConnOptions configures every accepted connection.
func WithConnOptions(options ...ConnOption) ServerOption {
	return opts.Type[Server](func(s *Server) error {
		s.connOptions = append(s.connOptions, options...)
		return nil
	})
}

// Server accepts websocket peers and attaches each one to the router as a
// serializing client. The client lives as long as its connection.
type Server struct {
	router       client.Router
	logger       *slog.Logger
	replyTimeout time.Duration
	checkOrigin  func(*http.Request) bool
	connOptions  []ConnOption
	upgrader     websocket.Upgrader
}

// NewServer creates a Server routing through router.
func NewServer(router client.Router, options ...ServerOption) (*Server, error) {
	s := &Server{router: router}
	if err := opts.Apply(s, options); err != nil {
		return nil, err
	}
	s.logger = slogx.Named(s.logger, "wstransport")
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s, nil
}

// ServeHTTP upgrades the request and registers the peer named by the client query parameter.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get(QueryClient)
	if clientID == "" {
		http.Error(w, "missing client query parameter", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slogx.Error(err), slogx.ClientID(clientID))
		return
	}
	conn, err := NewConn(ws, append([]ConnOption{WithConnLogger(s.logger)}, s.connOptions...)...)
	if err != nil {
		s.logger.Error("failed to set up connection", slogx.Error(err), slogx.ClientID(clientID))
		_ = ws.Close()
		return
	}

	var clientOptions []client.Option
	clientOptions = append(clientOptions, client.WithLogger(s.logger))
	if s.replyTimeout > 0 {
		clientOptions = append(clientOptions, client.WithReplyTimeout(s.replyTimeout))
	}
	peer, err := client.NewSerializing(s.router, clientID, conn, clientOptions...)
	if err != nil {
		s.logger.Error("failed to register websocket client", slogx.Error(err), slogx.ClientID(clientID))
		_ = conn.Close()
		return
	}

	for _, eventType := range splitList(r.URL.Query().Get(QuerySubscribe)) {
		if _, err := peer.On(r.Context(), eventType, nil); err != nil {
			s.logger.Warn("subscription refused", slogx.Error(err), slogx.ClientID(clientID), slogx.EventType(eventType))
		}
	}
	s.logger.Debug("websocket client connected", slogx.ClientID(clientID))

	go func() {
		<-conn.Done()
		if err := peer.Destroy(); err != nil {
			s.logger.Debug("websocket client teardown", slogx.Error(err), slogx.ClientID(clientID))
		}
		s.logger.Debug("websocket client disconnected", slogx.ClientID(clientID))
	}()
}

func splitList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
