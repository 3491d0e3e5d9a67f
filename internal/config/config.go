package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port              int
	DatabaseURL       string
	RedisAddr         string
	JWTSecret         string
	JWTExpiry         time.Duration
	EnrichURL         string
	EnrichKey         string
	EnrichMinInterval time.Duration
	MediaServerURL    string
	MediaServerToken  string
	ProgressEvery     int
	StaleJobAfter     time.Duration
}

func Load() *Config {
	return &Config{
		Port:              envInt("PORT", 8080),
		DatabaseURL:       env("DATABASE_URL", "postgres://collectz:collectz@db:5432/collectz?sslmode=disable"),
		RedisAddr:         env("REDIS_ADDR", "redis:6379"),
		JWTSecret:         env("JWT_SECRET", "change-me-in-production"),
		JWTExpiry:         envDuration("JWT_EXPIRY", 24*time.Hour),
		EnrichURL:         env("ENRICH_URL", ""),
		EnrichKey:         env("ENRICH_API_KEY", ""),
		EnrichMinInterval: envDuration("ENRICH_MIN_INTERVAL", 500*time.Millisecond),
		MediaServerURL:    env("MEDIA_SERVER_URL", ""),
		MediaServerToken:  env("MEDIA_SERVER_TOKEN", ""),
		ProgressEvery:     envInt("IMPORT_PROGRESS_EVERY", 25),
		StaleJobAfter:     envDuration("STALE_JOB_AFTER", 30*time.Minute),
	}
}

// MergeFromDB overlays values saved through the settings table onto the
// env-derived config. Missing table or rows leaves the config untouched.
func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "enrich_url":
			c.EnrichURL = value
		case "enrich_api_key":
			c.EnrichKey = value
		case "media_server_url":
			c.MediaServerURL = value
		case "media_server_token":
			c.MediaServerToken = value
		case "import_progress_every":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				c.ProgressEvery = v
			}
		}
	}
}

func (c *Config) EnrichEnabled() bool {
	return c.EnrichURL != "" && c.EnrichKey != ""
}

func (c *Config) MediaServerEnabled() bool {
	return c.MediaServerURL != "" && c.MediaServerToken != ""
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
