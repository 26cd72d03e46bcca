// Package main is the entry point for the homework notify service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homework-notify/backend/internal/api"
	"github.com/homework-notify/backend/internal/calendar"
	"github.com/homework-notify/backend/internal/chat"
	"github.com/homework-notify/backend/internal/config"
	"github.com/homework-notify/backend/internal/cycle"
	"github.com/homework-notify/backend/internal/feed"
	"github.com/homework-notify/backend/internal/storage"
	"github.com/homework-notify/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	configPath := flag.String("config", "/data/config.yaml", "Path to the YAML configuration file")
	dataDir := flag.String("data", "/data", "Data directory for the SQLite store backend")
	addr := flag.String("addr", "", "HTTP server address (overrides config listen)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %q: %v", *configPath, err)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Listen); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to resolve timezone: %v", err)
	}

	log.Printf("Starting homework notify service (version: %s)...", version)

	httpTimeout := time.Duration(cfg.HTTPTimeoutSec) * time.Second

	// Calendar store backend
	var (
		store calendar.Store
		db    *storage.DB
	)
	switch cfg.StoreBackend {
	case "sqlite":
		if err := os.MkdirAll(*dataDir, 0o755); err != nil {
			log.Fatalf("Failed to create data directory %q: %v", *dataDir, err)
		}
		db, err = storage.NewDB(*dataDir + "/homework-notify.db")
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()

		if err := storage.RunMigrations(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations complete")

		store = storage.NewEntryStore(db)
	default:
		store = calendar.NewGoogleStore(
			cfg.Google.BaseURL,
			calendar.StaticToken(cfg.Google.AccessToken),
			cfg.Timezone,
			httpTimeout,
		)
	}

	// Collaborator clients
	feedClient := feed.NewClient(
		cfg.Feed.URL,
		cfg.Feed.StudentID,
		cfg.Feed.CSRFToken,
		cfg.Feed.Cookie,
		loc,
		httpTimeout,
	)
	channel := chat.NewDiscordClient(cfg.Discord.BaseURL, cfg.Discord.BotToken, httpTimeout)

	// WebSocket hub for the admin UI event stream
	hub := websocket.NewHub()
	go hub.Run()

	runner := cycle.NewRunner(cycle.Options{
		Store:            store,
		Feed:             feedClient,
		Channel:          channel,
		Classes:          cfg.Classes,
		CalendarChannels: cfg.CalendarChannels,
		SyncCalendarID:   cfg.SyncCalendarID,
		WindowHours:      cfg.WindowHours,
		Location:         loc,
		BaseSiteURL:      cfg.BaseSiteURL,
		MessageLimit:     cfg.Discord.MessageLimit,
		SendPacing:       time.Duration(cfg.SendPacingMS) * time.Millisecond,
		FetchPacing:      time.Duration(cfg.FetchPacingMS) * time.Millisecond,
		Broadcaster:      websocket.NewEventBroadcaster(hub),
	})

	scheduler := cycle.NewScheduler(runner, loc, cfg.FetchDaily)
	hour, minute, err := config.ParseClock(cfg.DailyTrigger)
	if err != nil {
		log.Fatalf("Invalid daily trigger: %v", err)
	}
	if err := scheduler.Start(hour, minute); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// On-start run: status message first, then one cycle.
	go func() {
		ctx := context.Background()
		runner.SendStartupMessage(ctx, cfg.Discord.StatusChannelID, cfg.DailyTrigger)

		if cfg.FetchOnStart {
			log.Println("Running startup cycle with fetch...")
		} else {
			log.Println("Running startup cycle without fetch...")
		}
		if _, err := runner.RunCycle(ctx, cfg.FetchOnStart); err != nil {
			log.Printf("Startup cycle did not run: %v", err)
		}
	}()

	router := api.NewRouter(db, hub, runner, scheduler)

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
