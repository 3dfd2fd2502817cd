package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovidalb/webdesk/internal/api"
	"github.com/ovidalb/webdesk/internal/audit"
	"github.com/ovidalb/webdesk/internal/live"
	"github.com/ovidalb/webdesk/internal/platform"
	"github.com/ovidalb/webdesk/internal/ratelimit"
	"github.com/ovidalb/webdesk/internal/session"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	log.Println("Starting webdesk...")

	addr := envOr("WEBDESK_ADDR", ":8080")
	browserBin := os.Getenv("WEBDESK_BROWSER_BIN")
	capturesDir := envOr("WEBDESK_CAPTURES_DIR", "./captures")
	maxSessions := envIntOr("WEBDESK_MAX_SESSIONS", 5)
	rateLimit := envIntOr("WEBDESK_RATE_LIMIT", 100)

	// Initialize platform backend
	backend, err := platform.New(browserBin)
	if err != nil {
		log.Fatalf("Failed to create platform backend: %v", err)
	}
	log.Printf("✓ Platform backend initialized (%s)", backend.Name())

	// Captures directory for persisted frames
	if err := os.MkdirAll(capturesDir, 0755); err != nil {
		log.Fatalf("Failed to create captures directory: %v", err)
	}
	log.Printf("✓ Captures directory ready at %s", capturesDir)

	// Initialize session registry
	registry := session.NewRegistry(backend, int64(maxSessions))
	log.Printf("✓ Session registry initialized (max %d live sessions)", maxSessions)

	// Initialize audit log
	auditLog := audit.NewLog()
	log.Println("✓ Action log initialized")

	// Initialize live frame streaming
	liveServer := live.NewServer(registry)
	log.Println("✓ Live stream server initialized")

	// Initialize rate limiter
	rateLimiter := ratelimit.NewLimiter(rateLimit, 10)
	log.Printf("✓ Rate limiter initialized (%d req/hour per client)", rateLimit)

	// Setup HTTP handlers
	handler := api.NewHandler(registry, auditLog, capturesDir)
	router := handler.SetupRoutes(liveServer, rateLimiter, rateLimit)
	log.Println("✓ HTTP routes configured")

	// Create HTTP server
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("🚀 Server starting on %s", addr)
		log.Printf("📍 API endpoints available under /v1")
		log.Printf("🖥  Sessions: start, capture, click, type, stop")
		log.Printf("📋 Audit: /v1/actions (JSON), /actions (HTML)")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("\n⏳ Shutting down server gracefully...")

	// Tear down every live session before the process exits; abandoned
	// browsers and owned displays would otherwise outlive the server.
	registry.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
