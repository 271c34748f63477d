// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLevelDB  = "leveldb"
)

type Config struct {
	Addr          string   // HTTP listen address
	StoreBackend  string   // memory | postgres | leveldb
	DatabaseURL   string   // postgres DSN, required for the postgres backend
	LevelDBPath   string   // data directory for the leveldb backend
	KafkaBrokers  []string // empty disables event publishing
	SealThreshold int      // pending transactions that trigger an auto-seal
}

func Load() Config {
	// Missing .env is fine; real deployments configure via the environment.
	godotenv.Load()

	return Config{
		Addr:          envOr("ADDR", ":8080"),
		StoreBackend:  envOr("STORE_BACKEND", BackendMemory),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		LevelDBPath:   envOr("LEVELDB_PATH", "./data/chain"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		SealThreshold: envIntOr("SEAL_THRESHOLD", 5),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
