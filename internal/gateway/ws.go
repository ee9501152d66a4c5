package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/relay"
	"github.com/park285/chess-arena/pkg/arenadto"
)

const writeTimeout = 10 * time.Second

// WSServer accepts player websockets and feeds their messages to the
// relay. One goroutine reads per connection; engine requests run off
// the read loop so a thinking engine never blocks other traffic on the
// same socket.
type WSServer struct {
	relay *relay.Relay
	seq   atomic.Int64

	httpSrv *http.Server
}

func NewWSServer(addr string, r *relay.Relay) *WSServer {
	s := &WSServer{relay: r}
	// Guest IDs start high so they never collide with real player IDs.
	s.seq.Store(1 << 40)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *WSServer) ListenAndServe() error {
	obslog.L().Info("ws_listening", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *WSServer) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type wsConn struct {
	playerID int64
	conn     *websocket.Conn
	ctx      context.Context
	writeMu  sync.Mutex
}

func (c *wsConn) PlayerID() int64 { return c.playerID }

func (c *wsConn) Send(env arenadto.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, env)
}

func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	playerID := s.playerID(r)
	ctx := r.Context()
	c := &wsConn{playerID: playerID, conn: conn, ctx: ctx}

	s.relay.Attach(c)
	obslog.L().Info("ws_connected", zap.Int64("player", playerID))

	defer func() {
		s.relay.Detach(playerID)
		conn.Close(websocket.StatusNormalClosure, "bye")
		obslog.L().Info("ws_disconnected", zap.Int64("player", playerID))
	}()

	for {
		var env arenadto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		s.dispatch(ctx, c, env)
	}
}

func (s *WSServer) playerID(r *http.Request) int64 {
	if v := strings.TrimSpace(r.URL.Query().Get("player_id")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return s.seq.Add(1)
}

func (s *WSServer) dispatch(ctx context.Context, c *wsConn, env arenadto.Envelope) {
	switch env.Type {
	case arenadto.EvtJoinQueue:
		var p arenadto.JoinQueuePayload
		if !decode(c, env.Payload, &p) {
			return
		}
		s.relay.HandleJoinQueue(c, p)
	case arenadto.EvtLeaveQueue:
		s.relay.HandleLeaveQueue(c)
	case arenadto.EvtStartSolo:
		var p arenadto.StartSoloPayload
		if !decode(c, env.Payload, &p) {
			return
		}
		s.relay.HandleStartSolo(c, p)
	case arenadto.EvtMove:
		var p arenadto.MovePayload
		if !decode(c, env.Payload, &p) {
			return
		}
		s.relay.HandleMove(c, p)
	case arenadto.EvtAIMoveRequest:
		var p arenadto.AIMoveRequestPayload
		if !decode(c, env.Payload, &p) {
			return
		}
		go s.relay.HandleAIMoveRequest(ctx, c, p)
	case arenadto.EvtResign:
		var p arenadto.MovePayload
		if !decode(c, env.Payload, &p) {
			return
		}
		s.relay.HandleResign(c, p.GameID)
	default:
		sendError(c, arenadto.CodeMalformedInput, "unknown event type "+env.Type)
	}
}

func decode(c *wsConn, raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		sendError(c, arenadto.CodeMalformedInput, "missing payload")
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		sendError(c, arenadto.CodeMalformedInput, "bad payload: "+err.Error())
		return false
	}
	return true
}

func sendError(c *wsConn, code, detail string) {
	env, err := arenadto.NewEnvelope(arenadto.EvtError, arenadto.ErrorPayload{Code: code, Detail: detail})
	if err != nil {
		return
	}
	_ = c.Send(env)
}
