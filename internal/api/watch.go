package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"remotepad/internal/manager"
	"remotepad/internal/protocol"
)

// Watcher follows a running instance's state feed, reconnecting when the
// connection drops.
type Watcher struct {
	addr  string
	token string

	// Retry is the pause between connection attempts
	Retry time.Duration

	// OnState is called for every state message, on the Watcher's goroutine
	OnState func(manager.State)

	mu          sync.Mutex
	isConnected bool
}

// NewWatcher creates a watcher for the API at addr (host:port).
func NewWatcher(addr, token string) *Watcher {
	return &Watcher{
		addr:  addr,
		token: token,
		Retry: 5 * time.Second,
	}
}

// Run connects and processes messages until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		w.connect(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.Retry):
			log.Debug("Watch: attempting reconnection")
		}
	}
}

func (w *Watcher) connect(ctx context.Context) {
	u := url.URL{Scheme: "ws", Host: w.addr, Path: "/ws"}
	header := http.Header{}
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		log.Warnf("Watch: connection to %s failed: %v", u.String(), err)
		return
	}
	defer conn.Close()

	w.setConnected(true)
	defer w.setConnected(false)
	log.Infof("Watch: connected to %s", u.String())

	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-connDone:
		}
	}()

	w.readPump(conn)
}

type feedMessage struct {
	Type    protocol.MessageType `json:"type"`
	Payload json.RawMessage      `json:"payload"`
}

func (w *Watcher) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(1 << 20)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("Watch: read error: %v", err)
			}
			return
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("Watch: invalid message: %v", err)
			continue
		}
		if msg.Type != protocol.TypeState {
			continue
		}
		var s manager.State
		if err := json.Unmarshal(msg.Payload, &s); err != nil {
			log.Warnf("Watch: invalid state payload: %v", err)
			continue
		}
		if w.OnState != nil {
			w.OnState(s)
		}
	}
}

func (w *Watcher) setConnected(v bool) {
	w.mu.Lock()
	w.isConnected = v
	w.mu.Unlock()
}

// IsConnected returns true while the feed connection is up
func (w *Watcher) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isConnected
}
