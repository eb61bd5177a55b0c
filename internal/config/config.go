package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	JWTSecret  string
	AccessTTL  time.Duration
	CORSOrigin string
	// Room store (real-time document backend)
	RoomsURL    string
	RoomsAPIKey string
	// Identity provider (profile lookup)
	IdentityURL    string
	IdentityAPIKey string
	// Meilisearch board search - optional
	MeiliURL       string
	MeiliMasterKey string
	// Redis profile cache - optional
	RedisURL        string
	ProfileCacheTTL time.Duration
	// Audit log database - optional
	DatabaseURL   string
	MigrationsDir string
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8788"),
		JWTSecret:      getenv("CYCLES_JWT_SECRET", "cycles-dev-secret"),
		AccessTTL:      time.Duration(getenvInt("CYCLES_ACCESS_TTL_SECONDS", 900)) * time.Second,
		CORSOrigin:     getenv("CYCLES_CORS_ORIGIN", "*"),
		RoomsURL:       getenv("ROOMS_URL", "https://api.rooms.local/v2"),
		RoomsAPIKey:    getenv("ROOMS_API_KEY", ""),
		IdentityURL:    getenv("IDENTITY_URL", "https://api.identity.local/v1"),
		IdentityAPIKey: getenv("IDENTITY_API_KEY", ""),
		// Meilisearch - empty URL disables board search
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		// Redis - empty URL disables the creator profile cache
		RedisURL:        getenv("REDIS_URL", ""),
		ProfileCacheTTL: time.Duration(getenvInt("CYCLES_PROFILE_CACHE_TTL_SECONDS", 300)) * time.Second,
		// Postgres - empty URL disables the lifecycle audit log
		DatabaseURL:   getenv("DATABASE_URL", ""),
		MigrationsDir: getenv("CYCLES_MIGRATIONS_DIR", "./db/migrations"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
