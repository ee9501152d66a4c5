package gateway

import (
	"encoding/json"
	"sort"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/engine"
	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/matchqueue"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
)

// OpsServer exposes liveness and a small stats snapshot on a separate
// port, away from player traffic.
type OpsServer struct {
	queue    *matchqueue.Queue
	registry *registry.Registry
	matcher  *matchmaking.Engine

	srv *fasthttp.Server
}

type statsPayload struct {
	QueueLen     int           `json:"queue_len"`
	LiveGames    int           `json:"live_games"`
	MatchesMade  int64         `json:"matches_made"`
	Difficulties []string      `json:"difficulties"`
	Sessions     []sessionInfo `json:"sessions"`
}

type sessionInfo struct {
	GameID string `json:"game_id"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
	Turn   string `json:"turn"`
	Moves  int    `json:"moves"`
}

func NewOpsServer(q *matchqueue.Queue, reg *registry.Registry, mm *matchmaking.Engine) *OpsServer {
	s := &OpsServer{queue: q, registry: reg, matcher: mm}
	s.srv = &fasthttp.Server{Handler: s.route, Name: "arena-ops"}
	return s
}

func (s *OpsServer) ListenAndServe(addr string) error {
	obslog.L().Info("ops_listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *OpsServer) Shutdown() error { return s.srv.Shutdown() }

func (s *OpsServer) route(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case "/stats":
		s.handleStats(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *OpsServer) handleStats(ctx *fasthttp.RequestCtx) {
	live := s.registry.Snapshot()
	sessions := make([]sessionInfo, 0, len(live))
	for _, g := range live {
		sessions = append(sessions, sessionInfo{
			GameID: g.ID(),
			Mode:   string(g.Mode()),
			Status: string(g.Status()),
			Turn:   g.Turn(),
			Moves:  len(g.Moves()),
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].GameID < sessions[j].GameID })

	body, err := json.Marshal(statsPayload{
		QueueLen:     s.queue.Len(),
		LiveGames:    len(live),
		MatchesMade:  s.matcher.Matches(),
		Difficulties: engine.Difficulties(),
		Sessions:     sessions,
	})
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
