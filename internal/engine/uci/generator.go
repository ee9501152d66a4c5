package uci

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/internal/obslog"
)

const defaultHashMB = 64

// StockfishGenerator produces moves through a pooled Stockfish process,
// one bucket of sessions per strength.
type StockfishGenerator struct {
	pool *Pool
}

func NewStockfishGenerator(binaryPath string, perStrengthCapacity int) (*StockfishGenerator, error) {
	pool, err := NewPool(PoolConfig{
		BinaryPath:          binaryPath,
		PerStrengthCapacity: perStrengthCapacity,
	})
	if err != nil {
		return nil, err
	}
	return &StockfishGenerator{pool: pool}, nil
}

func (g *StockfishGenerator) BestMove(ctx context.Context, fen string, profile engine.SearchProfile) (string, error) {
	opt := Options{
		Threads:    profile.Threads,
		SkillLevel: profile.SkillLevel,
		HashMB:     defaultHashMB,
	}

	session, err := g.pool.Acquire(ctx, opt)
	if err != nil {
		return "", fmt.Errorf("acquire engine session: %w", err)
	}

	// Pooled processes are reused across unrelated games; clear the
	// previous game's search state before handing them a new position.
	if err := session.NewGame(ctx); err != nil {
		g.pool.Release(session, err)
		obslog.L().Warn("engine_reset_failed", zap.Error(err))
		return "", fmt.Errorf("reset engine session: %w", err)
	}

	mv, err := session.BestMove(ctx, fen, Limits{
		Depth:          profile.Depth,
		MoveTimeMillis: int(profile.MoveTime.Milliseconds()),
	})
	g.pool.Release(session, err)
	if err != nil {
		obslog.L().Warn("engine_search_failed", zap.String("fen", fen), zap.Error(err))
		return "", err
	}
	if mv == "(none)" {
		return "", nil
	}
	return mv, nil
}

func (g *StockfishGenerator) Close() error {
	return g.pool.Close()
}
