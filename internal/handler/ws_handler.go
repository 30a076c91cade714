package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/realtime"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Per-kind inbound budgets over a one-minute window. Frames dominate;
// heartbeats are cheap but there is no reason to accept a flood of them.
var wsKindLimits = map[string]int64{
	realtime.KindFrame:     120,
	realtime.KindAudio:     30,
	realtime.KindEvent:     60,
	realtime.KindHeartbeat: 20,
}

const wsRateWindow = time.Minute

// WSHandler owns the realtime endpoint: upgrade, subscription authorisation
// and inbound media/telemetry dispatch.
type WSHandler struct {
	hub               *realtime.Hub
	sessionService    *service.ExamSessionService
	proctoringService *service.ProctoringService
	authzService      *service.AuthzService
	limiter           *middleware.Limiter
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	hub *realtime.Hub,
	sessionService *service.ExamSessionService,
	proctoringService *service.ProctoringService,
	authzService *service.AuthzService,
	limiter *middleware.Limiter,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		hub:               hub,
		sessionService:    sessionService,
		proctoringService: proctoringService,
		authzService:      authzService,
		limiter:           limiter,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws
// One socket per client; destinations carry the routing.
func (h *WSHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	conn := h.hub.Register(ws, realtime.Principal{UserID: claims.UserID(), Role: claims.Role})
	go conn.WritePump()
	defer h.hub.Unregister(conn)

	ctx := c.Request.Context()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var frame realtime.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Error: "malformed frame"})
			continue
		}

		switch frame.Action {
		case realtime.ActionSubscribe:
			h.handleSubscribe(ctx, conn, claims, frame.Destination)
		case realtime.ActionUnsubscribe:
			h.hub.Unsubscribe(conn, frame.Destination)
			conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameAck, Destination: frame.Destination})
		case realtime.ActionSend:
			h.handleSend(ctx, conn, claims, frame)
		default:
			conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Error: "unknown action"})
		}
	}
}

// handleSubscribe authorises the destination against the caller before the
// hub routes anything to it.
func (h *WSHandler) handleSubscribe(ctx context.Context, conn *realtime.Conn, claims *service.Claims, raw string) {
	dest, err := realtime.ParseDestination(raw)
	if err != nil {
		conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Destination: raw, Error: "bad destination"})
		return
	}

	if err := h.authorizeSubscribe(ctx, claims, dest); err != nil {
		conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Destination: raw, Error: "forbidden"})
		return
	}

	h.hub.Subscribe(conn, raw)
	conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameAck, Destination: raw})
}

func (h *WSHandler) authorizeSubscribe(ctx context.Context, claims *service.Claims, dest realtime.Destination) error {
	switch dest.Kind {
	case realtime.DestQueueExam:
		session, err := h.sessionService.GetByID(ctx, dest.SessionID)
		if err != nil {
			return err
		}
		return h.authzService.RequireSessionParticipant(ctx, claims, session)

	case realtime.DestProctorExam:
		return h.authzService.RequireAssignedProctor(ctx, claims, dest.ExamID)

	case realtime.DestProctorSession:
		session, err := h.sessionService.GetByID(ctx, dest.SessionID)
		if err != nil {
			return err
		}
		return h.authzService.RequireAssignedProctor(ctx, claims, session.ExamID)

	case realtime.DestAdmin:
		if h.authzService.IsAdmin(claims) {
			return nil
		}
		return service.ErrForbidden

	default:
		// app/exam is a send target, never a subscription.
		return service.ErrForbidden
	}
}

// handleSend accepts student uploads on /app/exam/{sessionId}/{kind}. Only the
// session owner may send, and each kind has its own rate budget.
func (h *WSHandler) handleSend(ctx context.Context, conn *realtime.Conn, claims *service.Claims, frame realtime.ClientFrame) {
	dest, err := realtime.ParseDestination(frame.Destination)
	if err != nil || dest.Kind != realtime.DestAppExam {
		conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Destination: frame.Destination, Error: "bad destination"})
		return
	}

	session, err := h.sessionService.GetByID(ctx, dest.SessionID)
	if err != nil {
		conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Destination: frame.Destination, Error: "session not found"})
		return
	}
	if session.UserID != claims.UserID() {
		conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Destination: frame.Destination, Error: "forbidden"})
		return
	}

	limit := wsKindLimits[dest.Channel]
	if !h.limiter.Allow(ctx, config.CacheKey.ChannelRateKey(session.ID, dest.Channel), limit, wsRateWindow) {
		conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Destination: frame.Destination, Error: "rate limited"})
		return
	}

	if err := h.dispatch(ctx, session, dest.Channel, frame.Payload); err != nil {
		h.log.Warn().Err(err).
			Str("session_id", session.ID.String()).
			Str("kind", dest.Channel).
			Msg("Inbound realtime dispatch failed")
		conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameError, Destination: frame.Destination, Error: "rejected"})
		return
	}
	conn.SendFrame(realtime.ServerFrame{Type: realtime.FrameAck, Destination: frame.Destination})
}

func (h *WSHandler) dispatch(ctx context.Context, session *model.ExamSession, kind string, payload json.RawMessage) error {
	switch kind {
	case realtime.KindFrame:
		return h.proctoringService.IngestFrame(ctx, session.ID, payload)
	case realtime.KindAudio:
		return h.proctoringService.IngestAudio(ctx, session.ID, payload)
	case realtime.KindEvent:
		var msg service.BehaviorMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return err
		}
		return h.proctoringService.IngestBehavior(ctx, session.ID, msg)
	case realtime.KindHeartbeat:
		return h.sessionService.Heartbeat(ctx, session.ID)
	default:
		return realtime.ErrBadDestination
	}
}
