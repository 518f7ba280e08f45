package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"aetherlib.ai/internal/protocol"
	"aetherlib.ai/internal/sim/aether"
	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/density"
	"aetherlib.ai/internal/sim/geom"
)

// Source is the read side of the runtime the server exposes.
type Source interface {
	ID() string
	TickRateHz() int
	CurrentTick() uint64
	Registry() *aspects.Registry
	Rules() *density.Rules
	ReportDensity(pos geom.Vec3i) (aether.DensityReport, int)
}

type Config struct {
	QueriesPerSecond float64
	QueryBurst       int
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueriesPerSecond <= 0 {
		c.QueriesPerSecond = 20
	}
	if c.QueryBurst <= 0 {
		c.QueryBurst = 40
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

type Server struct {
	src Source
	cfg Config
	log *zap.Logger

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewServer(src Source, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		src: src,
		cfg: cfg.withDefaults(),
		log: log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions reports the number of connections past the handshake.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

type frame struct {
	kind int
	data []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		log := s.log.With(zap.String("session", sessionID))
		log.Info("session started", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(f.kind, f.data); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(s.cfg.QueriesPerSecond), s.cfg.QueryBurst)
		send := func(v any) {
			b, err := json.Marshal(v)
			if err != nil {
				log.Warn("marshal reply", zap.Error(err))
				return
			}
			select {
			case out <- frame{kind: websocket.TextMessage, data: b}:
			case <-ctx.Done():
			}
		}

		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if kind != websocket.TextMessage {
				send(protocol.NewError("", protocol.ErrProtoBadRequest, "expected text frame"))
				continue
			}
			if reply := s.dispatch(msg, limiter); reply != nil {
				send(reply)
			}
		}

		cancel()
		wg.Wait()
		log.Info("session ended")
	}
}

func (s *Server) dispatch(msg []byte, limiter *rate.Limiter) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError("", protocol.ErrProtoBadRequest, "malformed json")
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError("", protocol.ErrProtoVersion, "unsupported protocol_version")
	}
	switch base.Type {
	case protocol.TypeDensityQuery:
		var q protocol.DensityQueryMsg
		if err := json.Unmarshal(msg, &q); err != nil {
			return protocol.NewError("", protocol.ErrBadRequest, "bad DENSITY_QUERY")
		}
		if !limiter.Allow() {
			return protocol.NewError(q.ReqID, protocol.ErrRateLimit, "query rate exceeded")
		}
		return s.densityReport(q)
	default:
		return protocol.NewError("", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
	}
}

func (s *Server) densityReport(q protocol.DensityQueryMsg) protocol.DensityReportMsg {
	rep, status := s.src.ReportDensity(geom.FromArray(q.Pos))
	msg := protocol.DensityReportMsg{
		Type:            protocol.TypeDensityReport,
		ProtocolVersion: protocol.Version,
		ReqID:           q.ReqID,
		Status:          status,
		Tick:            s.src.CurrentTick(),
		Pos:             q.Pos,
		DeadZone:        rep.DeadZone,
	}
	if status != aether.StatusSuccess {
		return msg
	}
	msg.Region = rep.Region.String()
	for _, st := range rep.Structures {
		msg.Structures = append(msg.Structures, st.String())
	}
	msg.Base = rep.Base.StringKeys()
	msg.Deltas = rep.Deltas.StringKeys()
	msg.Final = rep.Final.StringKeys()
	msg.Corruption = rep.Corruption
	msg.OtherTotal = rep.OtherTotal
	msg.Corrupted = rep.Corrupted
	return msg
}

func (s *Server) handshake(conn *websocket.Conn) (string, chan frame, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return "", nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.reject(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return "", nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		s.reject(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return "", nil, false
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}

	reg := s.src.Registry()
	as := protocol.NewAspectSync(reg, hello.Capabilities.LegacySync)
	syncFrame, err := as.MarshalBinary()
	if err != nil {
		s.log.Error("encode aspect sync", zap.Error(err))
		s.reject(conn, protocol.ErrInternal, "aspect sync unavailable")
		return "", nil, false
	}

	sessionID := uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         s.src.ID(),
		TickRateHz:      s.src.TickRateHz(),
		Tick:            s.src.CurrentTick(),
		RulesDigest:     s.src.Rules().Digest,
		AspectCount:     reg.Len(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil, false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, syncFrame); err != nil {
		return "", nil, false
	}
	return sessionID, make(chan frame, maxQ), true
}

func (s *Server) reject(conn *websocket.Conn, code, reason string) {
	_ = writeJSON(conn, protocol.NewError("", code, reason))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
