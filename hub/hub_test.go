package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspen-market/backbone/store"
)

func newTestHub() (*Hub, *store.Store) {
	st := store.New(64)
	st.AddSymbol("BTCUSDT")
	return New(st), st
}

func newBareSession(h *Hub) *Session {
	return &Session{
		ID:            newClientID(),
		hub:           h,
		send:          make(chan []byte, 4),
		subscriptions: make(map[string]struct{}),
	}
}

func TestSubscribe_MaintainsBijection(t *testing.T) {
	h, _ := newTestHub()
	sess := newBareSession(h)
	h.register(sess)

	h.subscribe(sess, []string{"BTCUSDT"})

	assert.Contains(t, sess.Symbols(), "BTCUSDT")
	h.mu.RLock()
	_, ok := h.bySymbol["BTCUSDT"][sess.ID]
	h.mu.RUnlock()
	assert.True(t, ok)
}

func TestUnsubscribe_RemovesFromBothSides(t *testing.T) {
	h, _ := newTestHub()
	sess := newBareSession(h)
	h.register(sess)
	h.subscribe(sess, []string{"BTCUSDT"})

	h.unsubscribe(sess, []string{"BTCUSDT"})

	assert.Empty(t, sess.Symbols())
	h.mu.RLock()
	_, exists := h.bySymbol["BTCUSDT"]
	h.mu.RUnlock()
	assert.False(t, exists)
}

func TestSubscribe_UnknownSymbolIgnored(t *testing.T) {
	h, _ := newTestHub()
	sess := newBareSession(h)
	h.register(sess)

	h.subscribe(sess, []string{"NOSUCHSYMBOL"})

	assert.Empty(t, sess.Symbols())
}

func TestUnregister_ClearsSubscriptionIndex(t *testing.T) {
	h, _ := newTestHub()
	sess := newBareSession(h)
	h.register(sess)
	h.subscribe(sess, []string{"BTCUSDT"})

	h.unregister(sess)

	assert.Equal(t, 0, h.ClientCount())
	h.mu.RLock()
	_, exists := h.bySymbol["BTCUSDT"]
	h.mu.RUnlock()
	assert.False(t, exists)
}

func TestUnregister_IsIdempotent(t *testing.T) {
	h, _ := newTestHub()
	sess := newBareSession(h)
	h.register(sess)

	h.unregister(sess)
	assert.NotPanics(t, func() { h.unregister(sess) })
}

// TestBroadcast_EvictsSlowConsumer verifies §8's slow-consumer-safety
// invariant: a full send buffer destroys the session instead of blocking
// the broadcaster, and other subscribers still receive the event (§8 S3).
func TestBroadcast_EvictsSlowConsumer(t *testing.T) {
	h, st := newTestHub()

	slow := newBareSession(h)
	slow.send = make(chan []byte) // unbuffered + nobody reading: always full
	h.register(slow)
	h.subscribe(slow, []string{"BTCUSDT"})

	fast := newBareSession(h)
	h.register(fast)
	h.subscribe(fast, []string{"BTCUSDT"})

	h.broadcast(store.ChangeEvent{Kind: store.ChangePrice, Symbol: "BTCUSDT", Payload: store.PriceTick{Symbol: "BTCUSDT", LastPrice: 100}})

	assert.Equal(t, 1, h.ClientCount())
	h.mu.RLock()
	_, stillThere := h.sessions[slow.ID]
	_, fastThere := h.sessions[fast.ID]
	h.mu.RUnlock()
	assert.False(t, stillThere)
	assert.True(t, fastThere)
	require.Len(t, fast.send, 1)
}

func TestHandleMessage_SubscribeRoundTrip(t *testing.T) {
	h, _ := newTestHub()
	sess := newBareSession(h)
	h.register(sess)

	sess.handleMessage([]byte(`{"type":"subscribe","symbols":["BTCUSDT"]}`))

	assert.Contains(t, sess.Symbols(), "BTCUSDT")
	require.Len(t, sess.send, 1)
}

func TestHandleMessage_Ping(t *testing.T) {
	h, _ := newTestHub()
	sess := newBareSession(h)
	h.register(sess)

	sess.handleMessage([]byte(`{"type":"ping"}`))

	require.Len(t, sess.send, 1)
}

func TestHandleMessage_UnknownTypeRespondsError(t *testing.T) {
	h, _ := newTestHub()
	sess := newBareSession(h)
	h.register(sess)

	sess.handleMessage([]byte(`{"type":"bogus"}`))

	require.Len(t, sess.send, 1)
}

func TestNewClientID_IsEightHexChars(t *testing.T) {
	id := newClientID()
	assert.Len(t, id, 8)
}
