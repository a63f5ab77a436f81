package utils

import (
	"os"
	"time"
)

// Config replaces the teacher's inlined connection strings and API keys
// (backend/data/conn.go hardcodes postgres URLs and a Polygon key) with an
// explicit struct threaded through sync contexts (spec §9: "Global mutable
// state... explicit Config struct").
type Config struct {
	DatabaseURL       string
	DocFactsURL       string
	RedisAddr         string
	PolygonAPIKey     string
	TelegramBotToken  string
	TelegramChatID    int64
	JWTSigningKey     []byte
	BackfillWindow    time.Duration
	ConnectRetryDelay time.Duration
}

// LoadConfig reads configuration from the environment, falling back to
// docker-compose-style local defaults the teacher hardcoded (db:5432 /
// localhost:5432 depending on inContainer).
func LoadConfig(inContainer bool) Config {
	dbHost := "localhost"
	redisHost := "localhost"
	if inContainer {
		dbHost = "db"
		redisHost = "redis"
	}
	cfg := Config{
		DatabaseURL:       envOr("LEDGER_DATABASE_URL", "postgres://postgres:pass@"+dbHost+":5432/ledger"),
		DocFactsURL:       envOr("LEDGER_DOCFACTS_URL", "postgres://postgres:pass@"+dbHost+":5432/taxdocs"),
		RedisAddr:         envOr("LEDGER_REDIS_ADDR", redisHost+":6379"),
		PolygonAPIKey:     os.Getenv("POLYGON_API_KEY"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		JWTSigningKey:     []byte(envOr("LEDGER_JWT_KEY", "dev-only-key-change-me")),
		BackfillWindow:    24 * 30 * time.Hour,
		ConnectRetryDelay: 5 * time.Second,
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
