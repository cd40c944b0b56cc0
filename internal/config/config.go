package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port         int
	NatsURL      string
	NatsToken    string
	DatabaseURL  string
	LogLevel     string
	Strategy     string // "token", "sessionrest", or "domscrape"
	GraphBaseURL string
	OWABaseURL   string
	TabID        string
	TabURL       string
	DOMURL       string // devtools-style endpoint serving the tab's rendered markup
}

func Load() Config {
	return Config{
		Port:         envInt("CALBRIDGE_PORT", 8760),
		NatsURL:      envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:    envStr("NATS_TOKEN", ""),
		DatabaseURL:  envStr("DATABASE_URL", ""),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		Strategy:     envStr("CALBRIDGE_STRATEGY", "token"),
		GraphBaseURL: envStr("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		OWABaseURL:   envStr("OWA_BASE_URL", ""),
		TabID:        envStr("TAB_ID", ""),
		TabURL:       envStr("TAB_URL", ""),
		DOMURL:       envStr("DOM_SNAPSHOT_URL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
