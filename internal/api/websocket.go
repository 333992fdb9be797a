package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"remotepad/internal/manager"
	"remotepad/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to loopback by default; a token guards wider binds
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSManager fans state snapshots out to WebSocket clients
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	latest     atomic.Pointer[[]byte]
	notify     chan struct{}
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
}

// WebSocketClient is one connected feed subscriber
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		notify:     make(chan struct{}, 1),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
	}
}

func (m *WSManager) start(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case client := <-m.register:
			m.clients[client] = true
			log.Infof("WS: client registered from %s, %d total", client.ip, len(m.clients))
			if msg := m.latest.Load(); msg != nil {
				m.deliver(client, *msg)
			}

		case client := <-m.unregister:
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
				log.Infof("WS: client unregistered from %s, %d total", client.ip, len(m.clients))
			}

		case <-m.notify:
			if msg := m.latest.Load(); msg != nil {
				for client := range m.clients {
					m.deliver(client, *msg)
				}
			}

		case <-ctx.Done():
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// deliver queues msg for client, dropping clients that cannot keep up.
func (m *WSManager) deliver(client *WebSocketClient, msg []byte) {
	select {
	case client.send <- msg:
	default:
		log.Warnf("WS: client %s is too slow, dropping it", client.ip)
		delete(m.clients, client)
		close(client.send)
	}
}

// BroadcastState publishes s to every client. It never blocks; clients
// always end up with the latest state even when intermediate ones coalesce.
func (m *WSManager) BroadcastState(s manager.State) {
	data, err := json.Marshal(protocol.Message{Type: protocol.TypeState, Payload: s})
	if err != nil {
		log.Errorf("WS: failed to marshal state: %v", err)
		return
	}
	m.latest.Store(&data)
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WS: failed to upgrade connection: %v", err)
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 64),
		ip:      r.RemoteAddr,
	}

	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump consumes client messages until the connection drops.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("WS: read error: %v", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debugf("WS: invalid message from %s: %v", c.ip, err)
			continue
		}
		if msg.Type == protocol.TypePing {
			// answer with a fresh snapshot through the hub
			c.manager.BroadcastState(c.manager.server.ctrl.State())
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
