// apps/go-server/internal/config/config.go
//
// Process configuration.
// Loads an optional .env file (github.com/joho/godotenv) and reads the
// environment into a Config. Every value has a development default so the
// server starts with no configuration at all.
//
// Environment variables:
//   PORT              HTTP listen port (default 5175)
//   DB_PATH           SQLite file (default ./data/snake.db); "off" keeps settings in
//                     memory and disables accounts, run history and the daily challenge
//   LOG_LEVEL         zerolog level (default info)
//   JWT_SECRET        HS256 signing secret
//   JWT_EXPIRES_DAYS  token lifetime in days (default 14)
//   COOKIE_NAME       auth cookie name (default snake_token)
//   CLIENT_ORIGIN     CORS origin (default http://localhost:5173)
//   DAILY_SALT        salt for the daily challenge seed
//   SESSION_IDLE_MIN  minutes before an unwatched, unused game is evicted
//                     (default 30; 0 keeps games until shutdown)
//   NODE_ENV          "production" enables Secure cookies

package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DBOff is the DB_PATH value that disables SQLite.
const DBOff = "off"

type Config struct {
	Port           string
	DBPath         string
	LogLevel       string
	JWTSecret      string
	JWTExpiresDays int
	CookieName     string
	ClientOrigin   string
	DailySalt      string
	Production     bool

	SessionIdleMinutes int
}

// Load reads .env (if present) and the environment.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		Port:           GetEnv("PORT", "5175"),
		DBPath:         GetEnv("DB_PATH", "./data/snake.db"),
		LogLevel:       GetEnv("LOG_LEVEL", "info"),
		JWTSecret:      GetEnv("JWT_SECRET", "dev_secret_change_me"),
		JWTExpiresDays: GetEnvInt("JWT_EXPIRES_DAYS", 14),
		CookieName:     GetEnv("COOKIE_NAME", "snake_token"),
		ClientOrigin:   GetEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		DailySalt:      GetEnv("DAILY_SALT", "local_dev_salt"),
		Production:     os.Getenv("NODE_ENV") == "production",

		SessionIdleMinutes: GetEnvInt("SESSION_IDLE_MIN", 30),
	}
}

// GetEnv returns the value of k or def if unset/empty.
func GetEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// GetEnvInt parses k as an int, falling back to def when unset or invalid.
func GetEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
