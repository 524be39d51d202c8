// Command server wires every collaborator (store pools, cache, bus,
// command/query cores, projector, sweeper) and starts the HTTP adapter.
// Wiring order and the shutdown sequence follow the teacher's
// cmd/server/main.go flat-main style, extended for this service's extra
// background tasks (outbox relay, projector consumer, expiry sweeper).
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/transit-systems/ticketing-core/internal/bus"
	"github.com/transit-systems/ticketing-core/internal/cache"
	"github.com/transit-systems/ticketing-core/internal/config"
	"github.com/transit-systems/ticketing-core/internal/core"
	"github.com/transit-systems/ticketing-core/internal/httpapi"
	"github.com/transit-systems/ticketing-core/internal/projector"
	"github.com/transit-systems/ticketing-core/internal/query"
	"github.com/transit-systems/ticketing-core/internal/store"
	"github.com/transit-systems/ticketing-core/internal/sweeper"
)

func main() {
	cfg := config.Load()

	writeDB, err := store.Open(cfg.WriteDB, cfg.DBPool)
	if err != nil {
		log.Fatalf("main: open write store: %v", err)
	}
	readDB, err := store.Open(cfg.ReadDB, cfg.DBPool)
	if err != nil {
		log.Fatalf("main: open read store: %v", err)
	}

	writeRepo := store.NewWriteRepo(writeDB)
	readRepo := store.NewReadRepo(readDB)

	rdb := cache.NewClient(cfg.Redis)
	if rdb == nil {
		log.Printf("main: redis unreachable at startup, caching disabled (degrading to read store on every lookup)")
	}
	c := cache.New(rdb)

	pub := bus.NewPublisher(cfg.AMQPURL, cfg.BusPartitions)
	relay := bus.NewRelay(writeRepo, pub)
	relay.Interval = cfg.RelayInterval

	cmdCore := core.NewCore(writeRepo)
	cmdCore.Nudge = relay.Nudge

	proj := projector.New(readRepo, c)
	consumer := &bus.Consumer{URL: cfg.AMQPURL, Partitions: cfg.BusPartitions, DeadLetterURL: cfg.AMQPDeadLetterURL}

	q := query.New(readRepo, c)
	sw := sweeper.New(writeRepo, cmdCore)
	sw.Interval = cfg.SweepInterval

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go relay.Run(ctx)
	go sw.Run(ctx)
	go func() {
		if err := consumer.Run(ctx, proj.Handle); err != nil && ctx.Err() == nil {
			log.Printf("main: projector consumer exited: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	httpapi.RegisterRoutes(e, httpapi.NewHandler(cmdCore, q), cfg.JWTSecret)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: e}
	go func() {
		log.Printf("listening on %s (env=%s)", srv.Addr, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("main: http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("main: shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("main: http server shutdown: %v", err)
	}

	// Drain the outbox relay and close the producer before the consumer
	// and pools, so every event the commands appended before shutdown has
	// a chance to be published (§9 "Global mutable state" shutdown order).
	// The relay goroutine has already stopped with ctx, so a final bounded
	// drain runs here before the publisher closes.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	relay.Run(drainCtx)
	drainCancel()
	if err := pub.Close(); err != nil {
		log.Printf("main: publisher close: %v", err)
	}
	if err := writeDB.Close(); err != nil {
		log.Printf("main: write store close: %v", err)
	}
	if err := readDB.Close(); err != nil {
		log.Printf("main: read store close: %v", err)
	}
}
