package candles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspen-market/backbone/ingest"
	"github.com/aspen-market/backbone/ratelimit"
	"github.com/aspen-market/backbone/store"
)

func TestBackfill_PersistsClosedCandlesFromREST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			[1000, "100", "102", "99", "101", "2.107", 59999, "210.7", 5, "1.234", "123.4", "0"]
		]`))
	}))
	defer srv.Close()

	db := newTestDB(t)
	st := store.New(8)
	st.AddSymbol("BTCUSDT")
	limiter := ratelimit.New(1200, 4)
	rest := ingest.NewRESTClient(srv.URL, limiter)
	svc := New(st, db, rest)

	err := svc.Backfill(context.Background(), "BTCUSDT", "1m")
	require.NoError(t, err)

	k, ok, err := svc.persist.Latest("BTCUSDT", "1m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.107, k.Volume, 1e-9)
}

func TestBackfill_StopsOnRateLimitAndReturnsPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	db := newTestDB(t)
	st := store.New(8)
	st.AddSymbol("BTCUSDT")
	limiter := ratelimit.New(1200, 4)
	rest := ingest.NewRESTClient(srv.URL, limiter)
	svc := New(st, db, rest)

	err := svc.Backfill(context.Background(), "BTCUSDT", "1m")
	assert.Error(t, err)
}
