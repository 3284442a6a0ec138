// SlideSync - realtime slide deck collaboration server.
//
// A single worker process owns one listening socket and serves the deck
// API plus websocket deck rooms. Configuration is resolved once from the
// environment at startup; startup failures exit non-zero, a termination
// signal drains in-flight work and exits zero.
package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"slidesync/config"
	"slidesync/database"
	"slidesync/handlers"
	"slidesync/server"
	"slidesync/services"
	"slidesync/utils"
	"slidesync/websocket"
)

func main() {
	utils.InitLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	utils.TrustProxyHeaders.Store(cfg.TrustProxyHeaders)

	startTime := time.Now()

	db, err := database.Setup(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer rdb.Close()

	// Cache being down degrades to database-only reads; it is reported by
	// /healthz but never blocks startup.
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		utils.LogError("REDIS_PING", err, "addr", cfg.RedisURL)
	}
	cancel()

	store := services.NewDeckStore(db, rdb, cfg.DeckCacheTTL)

	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Close()

	services.StartPoolStatsReporter(db)

	api := handlers.NewAPI(db, rdb, store, hub, startTime)

	app, err := server.New(cfg, api)
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}

	utils.LogInfo("SlideSync starting", "port", cfg.Port, "env", cfg.Environment)

	if err := server.RunUntilSignal(app, cfg.Port, cfg.ShutdownGrace); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
