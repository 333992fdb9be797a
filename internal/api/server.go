// Package api provides the local HTTP API for status and remote control.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"remotepad/internal/config"
	"remotepad/internal/logger"
	"remotepad/internal/manager"
	"remotepad/internal/protocol"
)

var log = logger.For("api")

// Controller is the part of the connection manager the API drives.
type Controller interface {
	State() manager.State
	Subscribe(fn func(manager.State)) (cancel func())
	SetMode(ctx context.Context, mode config.Mode) error
	ConnectByName(ctx context.Context, name string) error
	Disconnect(ctx context.Context) error
	Send(cmd protocol.Command) error
}

// Server provides the HTTP API and the WebSocket state feed
type Server struct {
	ctrl   Controller
	addr   string
	token  string
	wsMgr  *WSManager
	mounts []mount
}

type mount struct {
	pattern string
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(cfg config.APIConfig, ctrl Controller) *Server {
	s := &Server{
		ctrl:  ctrl,
		addr:  cfg.Addr,
		token: cfg.Token,
	}
	s.wsMgr = newWSManager(s)
	return s
}

// Mount serves h on the given patterns behind the same middleware as the
// API. Call it before Run.
func (s *Server) Mount(h http.Handler, patterns ...string) {
	for _, p := range patterns {
		s.mounts = append(s.mounts, mount{pattern: p, handler: h})
	}
}

// Handler returns the routed handler with auth and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, m := range s.mounts {
		mux.Handle(m.pattern, m.handler)
	}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/send/", s.handleSend)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Run serves until ctx is done. The state feed runs for as long as Run does.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		log.Errorf("API server failed to listen on %s: %v", s.addr, err)
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go s.wsMgr.start(feedCtx)
	unsubscribe := s.ctrl.Subscribe(s.wsMgr.BroadcastState)
	defer unsubscribe()

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infof("API server listening on %s", ln.Addr())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("API server stopped: %v", err)
		return err
	}
	return nil
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorf("Recovered panic in %s: %v", r.URL.Path, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the bearer token if one is configured. Pages opened
// in a browser may carry it as the token query parameter instead.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)

		if r.URL.Path == "/health" || s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.token && r.URL.Query().Get("token") != s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Write response: %v", err)
	}
}

// writeError maps manager errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, manager.ErrUnknownDevice):
		code = http.StatusNotFound
	case errors.Is(err, manager.ErrNotConnected):
		code = http.StatusConflict
	case errors.Is(err, manager.ErrProRequired):
		code = http.StatusForbidden
	case errors.Is(err, manager.ErrMoveInFlight):
		code = http.StatusTooManyRequests
	case errors.Is(err, manager.ErrStopped):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// handleDevices handles GET /api/devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State().Devices)
}

// handleMode handles POST /api/mode?mode=<controller|receiver>
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	mode, err := config.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Infof("Switching to %s mode (request from %s)", mode, r.RemoteAddr)
	if err := s.ctrl.SetMode(r.Context(), mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": string(mode)})
}

// handleConnect handles POST /api/connect?name=<device>
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Missing name parameter", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.ConnectByName(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting", "name": name})
}

// handleDisconnect handles POST /api/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.ctrl.Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSend handles POST /api/send/<endpoint>. The body is the same JSON a
// controller puts on the wire, decoded with the receiver's rules.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, protocol.MaxFrameSize))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	endpoint := "/" + strings.TrimPrefix(r.URL.Path, "/api/send/")
	cmd, ok := protocol.Decode(protocol.Frame{
		StartLine: "POST " + endpoint + " HTTP/1.1",
		Body:      body,
	})
	if !ok {
		http.Error(w, "Body is not a command", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.Send(cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "endpoint": cmd.Endpoint()})
}
