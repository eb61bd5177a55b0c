package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cycles/api/internal/app"
	"cycles/api/internal/audit"
	"cycles/api/internal/board"
	"cycles/api/internal/config"
	"cycles/api/internal/identity"
	"cycles/api/internal/rooms"
	"cycles/api/internal/search"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	roomStore := rooms.NewClient(cfg.RoomsURL, cfg.RoomsAPIKey)

	// Redis caches creator profiles; without it every listing hits the
	// identity provider directly.
	var profileCache *identity.RedisCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for the creator profile cache")
		cache, err := identity.NewRedisCache(cfg.RedisURL, cfg.ProfileCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		profileCache = cache
	}
	profiles := identity.NewClient(cfg.IdentityURL, cfg.IdentityAPIKey, profileCache)

	// The lifecycle audit log is optional; board operations proceed
	// without it when no database is configured.
	var auditLog *audit.Log
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := audit.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := audit.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		auditLog = audit.NewLog(db)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewFallback(roomStore))

	// Leave the interface nil unless a log exists; a typed-nil *audit.Log
	// would defeat the nil check inside the service.
	var recorder board.AuditRecorder
	if auditLog != nil {
		recorder = auditLog
	}
	boards := board.New(roomStore, profiles, recorder, searchService)

	httpServer := app.NewHTTPServer(boards, searchService, []byte(cfg.JWTSecret), cfg.CORSOrigin)
	if auditLog != nil {
		httpServer.AddReadinessCheck("audit", auditLog)
	}
	if profileCache != nil {
		httpServer.AddReadinessCheck("profile_cache", profileCache)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Cycles API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
