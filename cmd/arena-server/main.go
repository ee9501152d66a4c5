package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/archive"
	"github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/engine"
	enguci "github.com/park285/chess-arena/internal/engine/uci"
	"github.com/park285/chess-arena/internal/gateway"
	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/matchqueue"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/internal/relay"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("init logging: %v", err)
	}
	logger := obslog.L()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	rules, err := engine.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Fatal("load rules", zap.String("path", cfg.RulesFile), zap.Error(err))
	}

	policy := matchmaking.Policy{
		BaseGap:     cfg.MatchBaseGap,
		WidenPerSec: cfg.MatchWidenPerSec,
		ForceAfter:  time.Duration(cfg.MatchForceAfterMS) * time.Millisecond,
		Tick:        time.Duration(cfg.MatchTickMS) * time.Millisecond,
	}
	if rules != nil {
		if rules.Pairing.BaseGap != nil {
			policy.BaseGap = *rules.Pairing.BaseGap
		}
		if rules.Pairing.WidenPerSec != nil {
			policy.WidenPerSec = *rules.Pairing.WidenPerSec
		}
		if rules.Pairing.ForceAfterSec != nil {
			policy.ForceAfter = time.Duration(*rules.Pairing.ForceAfterSec) * time.Second
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *archive.RedisStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("parse redis url", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer rdb.Close()
		store = archive.NewRedisStore(rdb, time.Duration(cfg.ArchiveTTLSec)*time.Second)
		logger.Info("archive_redis_ready")
	}

	var repo *archive.PGRepository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewPGRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres init", zap.Error(err))
		}
		defer repo.Close()
		logger.Info("archive_postgres_ready")
	}
	recorder := archive.NewRecorder(store, repo)

	var gen engine.Generator
	if cfg.StockfishPath != "" {
		sf, err := enguci.NewStockfishGenerator(cfg.StockfishPath, 0)
		if err != nil {
			logger.Fatal("stockfish init", zap.String("path", cfg.StockfishPath), zap.Error(err))
		}
		defer sf.Close()
		gen = sf
		logger.Info("engine_ready", zap.String("binary", cfg.StockfishPath))
	} else {
		logger.Warn("engine_disabled", zap.String("reason", "STOCKFISH_PATH not set"))
	}

	queue := matchqueue.New()
	reg := registry.New(cfg.MaxConcurrentGames)
	rly := relay.New(queue, reg, gen, recorder, cfg.DefaultDifficulty)
	matcher := matchmaking.NewEngine(queue, policy, rly.OnMatch)
	rly.SetWake(matcher.Wake)

	go matcher.Run(ctx)

	ops := gateway.NewOpsServer(queue, reg, matcher)
	go func() {
		if err := ops.ListenAndServe(cfg.OpsAddr); err != nil {
			logger.Error("ops server", zap.Error(err))
		}
	}()

	ws := gateway.NewWSServer(cfg.ListenAddr, rly)
	go func() {
		if err := ws.ListenAndServe(); err != nil {
			logger.Error("ws server", zap.Error(err))
			stop()
		}
	}()

	logger.Info("arena_started",
		zap.String("listen", cfg.ListenAddr),
		zap.String("ops", cfg.OpsAddr),
		zap.Int("base_gap", policy.BaseGap),
	)

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ws.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ws shutdown", zap.Error(err))
	}
	if err := ops.Shutdown(); err != nil {
		logger.Warn("ops shutdown", zap.Error(err))
	}
}
