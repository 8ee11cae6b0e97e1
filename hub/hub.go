package hub

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/aspen-market/backbone/metrics"
	"github.com/aspen-market/backbone/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns the registry of connected sessions and the symbol subscription
// index. It holds a read-only reference to the store (for HasSymbol checks
// and its Changes() stream); the store never references the hub directly, only through the
// ChangeEvent channel it exposes (§9 cyclic-reference resolution).
type Hub struct {
	st *store.Store

	mu       sync.RWMutex
	sessions map[string]*Session
	bySymbol map[string]map[string]struct{} // symbol -> set<clientID>
}

func New(st *store.Store) *Hub {
	return &Hub{
		st:       st,
		sessions: make(map[string]*Session),
		bySymbol: make(map[string]map[string]struct{}),
	}
}

// Run drains the store's change-event stream and fans each event out to
// sessions subscribed to its symbol, until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	changes := h.st.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev store.ChangeEvent) {
	payload := encode(ServerMessage{Type: string(ev.Kind), Symbol: ev.Symbol, Data: ev.Payload})

	h.mu.RLock()
	clientIDs := h.bySymbol[ev.Symbol]
	targets := make([]*Session, 0, len(clientIDs))
	for id := range clientIDs {
		if sess, ok := h.sessions[id]; ok {
			targets = append(targets, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range targets {
		if !sess.enqueue(payload) {
			log.Warn().Str("client_id", sess.ID).Str("symbol", ev.Symbol).Msg("hub: send buffer full, evicting session")
			metrics.RecordEviction("buffer_full")
			h.unregister(sess)
		}
	}
}

// ServeWS upgrades the request, registers the session and runs its pumps
// until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("hub: websocket upgrade failed")
		return
	}

	sess := newSession(h, conn)
	h.register(sess)
	defer h.unregister(sess)

	sess.enqueue(encode(ServerMessage{Type: "connected", Data: map[string]string{"clientId": sess.ID}}))

	go sess.writePump()
	sess.readPump() // blocks until the connection closes
}

func (h *Hub) register(sess *Session) {
	h.mu.Lock()
	h.sessions[sess.ID] = sess
	h.mu.Unlock()
	log.Debug().Str("client_id", sess.ID).Msg("hub: session registered")
}

// unregister removes sess from the registry and its subscription index, and
// closes its send channel so writePump exits. Safe to call more than once.
func (h *Hub) unregister(sess *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[sess.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sess.ID)
	for _, symbol := range sess.Symbols() {
		if set, ok := h.bySymbol[symbol]; ok {
			delete(set, sess.ID)
			if len(set) == 0 {
				delete(h.bySymbol, symbol)
			}
		}
	}
	h.mu.Unlock()
	sess.close()
}

// subscribe adds symbols to sess's subscription set and the reverse index,
// maintaining the symbol<->clientID bijection (§4.5).
func (h *Hub) subscribe(sess *Session, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, symbol := range symbols {
		if !h.st.HasSymbol(symbol) {
			continue
		}
		if _, ok := h.bySymbol[symbol]; !ok {
			h.bySymbol[symbol] = make(map[string]struct{})
		}
		h.bySymbol[symbol][sess.ID] = struct{}{}
		sess.addSubscription(symbol)
	}
}

func (h *Hub) unsubscribe(sess *Session, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, symbol := range symbols {
		if set, ok := h.bySymbol[symbol]; ok {
			delete(set, sess.ID)
			if len(set) == 0 {
				delete(h.bySymbol, symbol)
			}
		}
		sess.removeSubscription(symbol)
	}
}

// Stats reports hub-wide counters for the getStats client message and the
// HTTP /websocket/stats endpoint (§6).
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perSymbol := make(map[string]int, len(h.bySymbol))
	for symbol, set := range h.bySymbol {
		perSymbol[symbol] = len(set)
	}
	return map[string]interface{}{
		"connectedClients":  len(h.sessions),
		"subscriptionsBySymbol": perSymbol,
	}
}

// ClientCount reports the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
