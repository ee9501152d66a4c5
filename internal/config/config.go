package config

import (
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string
	OpsAddr    string

	RedisURL    string
	DatabaseURL string

	StockfishPath     string
	DefaultDifficulty string
	RulesFile         string

	MatchBaseGap      int
	MatchWidenPerSec  int
	MatchForceAfterMS int
	MatchTickMS       int

	MaxConcurrentGames int
	ArchiveTTLSec      int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		OpsAddr:            ":9090",
		DefaultDifficulty:  "medium",
		MatchBaseGap:       150,
		MatchWidenPerSec:   0,
		MatchForceAfterMS:  0,
		MatchTickMS:        500,
		MaxConcurrentGames: 200,
		ArchiveTTLSec:      86400,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("OPS_ADDR")); v != "" {
		cfg.OpsAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	if v := strings.TrimSpace(os.Getenv("ARENA_DEFAULT_DIFFICULTY")); v != "" {
		cfg.DefaultDifficulty = v
	}
	cfg.RulesFile = strings.TrimSpace(os.Getenv("ARENA_RULES_FILE"))

	if v := strings.TrimSpace(os.Getenv("MATCH_BASE_GAP")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MatchBaseGap = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_WIDEN_PER_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MatchWidenPerSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_FORCE_AFTER_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MatchForceAfterMS = n * 1000
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_TICK_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MatchTickMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_GAMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentGames = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ARCHIVE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ArchiveTTLSec = n
		}
	}

	return cfg, nil
}
