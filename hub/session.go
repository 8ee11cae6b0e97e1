package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// newClientID returns an 8-hex-character client identifier (§4.5).
func newClientID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// Session is one connected client's WebSocket, with its own outbound queue
// and subscription set. The hub is the only writer into subscriptions; the
// session's own read/write pumps never touch it directly.
type Session struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub

	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	lastPong      time.Time
	closed        bool
}

func newSession(hub *Hub, conn *websocket.Conn) *Session {
	return &Session{
		ID:            newClientID(),
		conn:          conn,
		hub:           hub,
		send:          make(chan []byte, DefaultSendBuffer),
		subscriptions: make(map[string]struct{}),
		lastPong:      time.Now(),
	}
}

// Symbols returns a snapshot of this session's subscribed symbols.
func (s *Session) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.subscriptions))
	for sym := range s.subscriptions {
		out = append(out, sym)
	}
	return out
}

func (s *Session) isSubscribed(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subscriptions[symbol]
	return ok
}

func (s *Session) addSubscription(symbol string) {
	s.mu.Lock()
	s.subscriptions[symbol] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeSubscription(symbol string) {
	s.mu.Lock()
	delete(s.subscriptions, symbol)
	s.mu.Unlock()
}

// enqueue performs a non-blocking send; the caller (the hub's fan-out loop)
// evicts the session entirely on failure rather than blocking (§4.5). The
// closed check and the send both happen under s.mu so a concurrent close()
// can never run between them — without that, a send racing an unregister()
// could hit an already-closed s.send and panic.
func (s *Session) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// readPump parses inbound client frames until the connection closes.
func (s *Session) readPump() {
	defer s.hub.unregister(s)

	s.conn.SetReadDeadline(time.Now().Add(pongWaitSeconds * time.Second))
	s.conn.SetPongHandler(func(string) error {
		s.mu.Lock()
		s.lastPong = time.Now()
		s.mu.Unlock()
		s.conn.SetReadDeadline(time.Now().Add(pongWaitSeconds * time.Second))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(raw)
	}
}

func (s *Session) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := decodeClientMessage(raw, &msg); err != nil {
		s.enqueue(encode(ServerMessage{Type: "error", Message: "invalid message"}))
		return
	}

	switch msg.Type {
	case "subscribe":
		s.hub.subscribe(s, msg.Symbols)
		s.enqueue(encode(ServerMessage{Type: "subscribed", Data: msg.Symbols}))
	case "unsubscribe":
		s.hub.unsubscribe(s, msg.Symbols)
		s.enqueue(encode(ServerMessage{Type: "unsubscribed", Data: msg.Symbols}))
	case "ping":
		s.enqueue(encode(ServerMessage{Type: "pong"}))
	case "getStats":
		s.enqueue(encode(ServerMessage{Type: "stats", Data: s.hub.Stats()}))
	default:
		s.enqueue(encode(ServerMessage{Type: "error", Message: "unknown message type"}))
	}
}

// writePump drains the send queue onto the wire and drives the ping
// heartbeat; it exits (and triggers connection teardown) when send is
// closed by the hub on eviction/unregister.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriodSeconds * time.Second)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWaitSeconds * time.Second))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWaitSeconds * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	s.mu.Unlock()
	log.Debug().Str("client_id", s.ID).Msg("hub: session closed")
}
