/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shift engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store (schema migration included)
  3. Seed the catalog from a fixture file and/or the demo scenario
  4. Create the engine and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: shifts.db)
              Use ":memory:" for an in-memory database
  -catalog    Optional JSON fixture with fuels, nozzles, payment
              methods and users to seed at startup
  -seed-demo  Seed the built-in demo station at startup
  -pretty     Human-readable log output instead of JSON

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database and a station fixture
  ./server -db=./data/station.db -catalog=./station.json

  # Run an in-memory demo
  ./server -db=":memory:" -seed-demo -pretty

SEE ALSO:
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/forecourt/shift-engine/api"
	"github.com/forecourt/shift-engine/catalog"
	"github.com/forecourt/shift-engine/engine"
	"github.com/forecourt/shift-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "shifts.db", "SQLite database path")
	catalogPath := flag.String("catalog", "", "JSON catalog fixture to seed at startup")
	seedDemo := flag.Bool("seed-demo", false, "seed the built-in demo station")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	log := newLogger(*pretty)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("failed to initialize database")
	}
	defer store.Close()

	// Seed the catalog before serving traffic
	ctx := context.Background()
	if *catalogPath != "" {
		fixture, err := catalog.LoadFixture(*catalogPath)
		if err != nil {
			log.Fatal().Err(err).Str("catalog", *catalogPath).Msg("failed to load catalog fixture")
		}
		if err := fixture.Seed(ctx, store); err != nil {
			log.Fatal().Err(err).Msg("failed to seed catalog")
		}
		log.Info().Str("catalog", *catalogPath).Int("nozzles", len(fixture.Nozzles)).Msg("catalog seeded")
	}
	if *seedDemo {
		if err := api.DemoFixture().Seed(ctx, store); err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo station")
		}
		log.Info().Msg("demo station seeded")
	}

	// Wire engine and handler
	eng := engine.NewService(store, store)
	handler := api.NewHandler(eng, store, store, log)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}

func newLogger(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
