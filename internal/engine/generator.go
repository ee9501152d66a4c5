package engine

import "context"

// Generator produces a best move, in UCI notation, for a FEN position
// under the given search profile. An empty move with a nil error means
// the engine has nothing to play.
type Generator interface {
	BestMove(ctx context.Context, fen string, profile SearchProfile) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, fen string, profile SearchProfile) (string, error)

func (f GeneratorFunc) BestMove(ctx context.Context, fen string, profile SearchProfile) (string, error) {
	return f(ctx, fen, profile)
}
