// Command backbone runs the realtime market-data backbone: upstream ingest,
// the in-memory store, the client WebSocket hub, the candle service and the
// aggregation engine, fronted by the HTTP/WS surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/aspen-market/backbone/aggregation"
	"github.com/aspen-market/backbone/bootstrap"
	"github.com/aspen-market/backbone/candles"
	"github.com/aspen-market/backbone/config"
	"github.com/aspen-market/backbone/hub"
	"github.com/aspen-market/backbone/httpapi"
	"github.com/aspen-market/backbone/ingest"
	"github.com/aspen-market/backbone/logger"
	"github.com/aspen-market/backbone/ratelimit"
	"github.com/aspen-market/backbone/store"
)

const (
	keyDatabase   = "database"
	keyStore      = "store"
	keySpotClient = "spot_client"
	keyFutClient  = "futures_client"
	keyCandleSvc  = "candle_service"
	keyAggEngine  = "agg_engine"
	keyHub        = "hub"
	keyHTTPServer = "http_server"
)

func main() {
	// Load environment variables from .env file if present (for local/dev runs).
	// In Docker Compose, variables are injected by the runtime and this is harmless.
	_ = godotenv.Load()

	cfgPath := "config.json"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backbone: loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := bootstrap.NewContext(cfg)
	registerHooks()

	if err := bootstrap.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("backbone: startup failed")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := ctx.MustGet(keyStore).(*store.Store)
	h := ctx.MustGet(keyHub).(*hub.Hub)
	candleSvc := ctx.MustGet(keyCandleSvc).(*candles.Service)
	spotClient := ctx.MustGet(keySpotClient).(*ingest.Client)
	futClient := ctx.MustGet(keyFutClient).(*ingest.Client)
	srv := ctx.MustGet(keyHTTPServer).(*http.Server)

	go h.Run(runCtx)
	go candleSvc.RunPersister(runCtx)

	symbols := cfg.DefaultSymbols
	go func() {
		if err := spotClient.Run(runCtx, symbols); err != nil && runCtx.Err() == nil {
			log.Error().Err(err).Msg("backbone: spot ingest client exited")
		}
	}()
	go func() {
		if err := futClient.Run(runCtx, symbols); err != nil && runCtx.Err() == nil {
			log.Error().Err(err).Msg("backbone: futures ingest client exited")
		}
	}()

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("backbone: HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("backbone: HTTP server failed")
		}
	}()

	for _, symbol := range symbols {
		st.AddSymbol(symbol)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("backbone: shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("backbone: HTTP server shutdown error")
	}

	if db, ok := ctx.Get(keyDatabase); ok {
		if err := db.(*config.Database).Close(); err != nil {
			log.Error().Err(err).Msg("backbone: database close error")
		}
	}

	log.Info().Msg("backbone: shutdown complete")
}

func registerHooks() {
	bootstrap.Register("logger", bootstrap.PriorityInfrastructure, func(c *bootstrap.Context) error {
		level := "info"
		if c.Config.Log != nil {
			level = c.Config.Log.Level
		}
		logger.Init(level)
		return nil
	})

	bootstrap.Register("database", bootstrap.PriorityDatabase, func(c *bootstrap.Context) error {
		db, err := config.NewDatabase(c.Config.DBPath)
		if err != nil {
			return err
		}
		c.Set(keyDatabase, db)
		return nil
	})

	bootstrap.Register("store", bootstrap.PriorityCore, func(c *bootstrap.Context) error {
		st := store.New(256)
		c.Set(keyStore, st)
		return nil
	})

	bootstrap.Register("ingest_clients", bootstrap.PriorityCore, func(c *bootstrap.Context) error {
		st := c.MustGet(keyStore).(*store.Store)
		spot := ingest.New(c.Config.Ingest.SpotWSURL, st, "spot")
		fut := ingest.New(c.Config.Ingest.FuturesWSURL, st, "futures")
		c.Set(keySpotClient, spot)
		c.Set(keyFutClient, fut)
		return nil
	})

	bootstrap.Register("candle_service", bootstrap.PriorityBusiness, func(c *bootstrap.Context) error {
		st := c.MustGet(keyStore).(*store.Store)
		db := c.MustGet(keyDatabase).(*config.Database)
		limiter := ratelimit.New(c.Config.RESTRateLimitRPM, c.Config.BackfillConcurrency)
		rest := ingest.NewRESTClient(c.Config.Ingest.RESTBaseURL, limiter)
		svc := candles.New(st, db.DB(), rest)
		c.Set(keyCandleSvc, svc)
		return nil
	})

	bootstrap.Register("aggregation_engine", bootstrap.PriorityBusiness, func(c *bootstrap.Context) error {
		st := c.MustGet(keyStore).(*store.Store)
		candleSvc := c.MustGet(keyCandleSvc).(*candles.Service)
		c.Set(keyAggEngine, aggregation.NewEngine(st, candleSvc))
		return nil
	})

	bootstrap.Register("hub", bootstrap.PriorityBusiness, func(c *bootstrap.Context) error {
		st := c.MustGet(keyStore).(*store.Store)
		c.Set(keyHub, hub.New(st))
		return nil
	})

	bootstrap.Register("http_server", bootstrap.PriorityBusiness, func(c *bootstrap.Context) error {
		st := c.MustGet(keyStore).(*store.Store)
		candleSvc := c.MustGet(keyCandleSvc).(*candles.Service)
		agg := c.MustGet(keyAggEngine).(*aggregation.Engine)
		h := c.MustGet(keyHub).(*hub.Hub)
		db := c.MustGet(keyDatabase).(*config.Database)
		spot := c.MustGet(keySpotClient).(*ingest.Client)
		fut := c.MustGet(keyFutClient).(*ingest.Client)

		handler := httpapi.NewHandler(st, candleSvc, agg, h, db, spot, fut)
		router := httpapi.NewRouter(handler)

		c.Set(keyHTTPServer, &http.Server{
			Addr:         fmt.Sprintf(":%d", c.Config.HTTPPort),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		})
		return nil
	})
}
