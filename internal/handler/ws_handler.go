package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/config"
	"github.com/ujicara/cbt-backend/internal/middleware"
	"github.com/ujicara/cbt-backend/internal/response"
	"github.com/ujicara/cbt-backend/internal/service"
	"github.com/ujicara/cbt-backend/internal/session"
	ws "github.com/ujicara/cbt-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
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

// wsConn serializes writes to a single WebSocket connection. The reader loop
// and the notification subscriber both write, gorilla allows one writer only.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeTyped(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteTyped(w.conn, v)
}

func (w *wsConn) writeError(code response.ErrCode, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = ws.WriteError(w.conn, code, msg)
}

// wsErrCode maps a controller error to its wire error code.
func wsErrCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, session.ErrNotRunning):
		return response.ErrSessionNotRunning
	case errors.Is(err, session.ErrOptionOutOfRange):
		return response.ErrOptionOutOfRange
	default:
		return response.ErrInternal
	}
}

// WSHandler handles the WebSocket exam stream.
type WSHandler struct {
	rdb           *redis.Client
	portalService *service.PortalService
	manager       *session.Manager
	log           zerolog.Logger
	upgrader      websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, portalService *service.PortalService, manager *session.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:           rdb,
		portalService: portalService,
		manager:       manager,
		log:           log.With().Str("component", "ws_handler").Logger(),
		upgrader:      buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exam/stream
// Upgrades to WebSocket for the real-time exam session: answers, navigation,
// proctoring signals in, state snapshots and warnings out.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	participantID := claims.ParticipantID

	ctrl, err := h.portalService.Controller(c.Request.Context(), participantID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no active attempt"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()

	conn := &wsConn{conn: raw}

	wsLog := h.log.With().Int("participant_id", participantID).Logger()
	wsLog.Info().Msg("Participant connected")

	// Push notifications (warnings, submit failures, terminal events) for
	// as long as the connection lives.
	notifications, unsubscribe := h.manager.Subscribe(participantID)
	done := make(chan struct{})
	defer func() {
		unsubscribe()
		close(done)
	}()
	go func() {
		for {
			select {
			case n, ok := <-notifications:
				if !ok {
					return
				}
				if err := conn.writeTyped(notificationEvent(n)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Initial snapshot so a reloading client can render immediately.
	if err := conn.writeTyped(ws.StateEvent{Event: ws.EventState, Snapshot: ctrl.Snapshot(time.Now())}); err != nil {
		return
	}

	for {
		raw.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, payload, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			conn.writeError(response.ErrValidation, "malformed message")
			continue
		}

		h.dispatch(conn, wsLog, ctrl, participantID, envelope.Action, payload)
	}

	wsLog.Info().Msg("Participant disconnected")
}

// dispatch routes one client action to the session controller. Every
// state-changing action is acknowledged with a fresh snapshot; terminal
// transitions are delivered by the subscriber goroutine instead.
func (h *WSHandler) dispatch(conn *wsConn, wsLog zerolog.Logger, ctrl *session.Controller, participantID int, action ws.Action, payload []byte) {
	ctx := context.Background()
	now := time.Now()

	switch action {
	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if err := json.Unmarshal(payload, &req); err != nil || req.QuestionID == "" {
			conn.writeError(response.ErrInvalidID, "q_id is required")
			return
		}
		if err := ctrl.SelectAnswer(ctx, req.QuestionID, req.Option); err != nil {
			conn.writeError(wsErrCode(err), err.Error())
			return
		}

	case ws.ActionGoto:
		var req ws.GotoRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.writeError(response.ErrValidation, "index is required")
			return
		}
		ctrl.GoToQuestion(req.Index)

	case ws.ActionNext:
		ctrl.Next()

	case ws.ActionPrevious:
		ctrl.Previous()

	case ws.ActionVisibility:
		var req ws.VisibilityRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.writeError(response.ErrValidation, "state is required")
			return
		}
		switch req.State {
		case ws.VisibilityHidden:
			ctrl.ContentHidden(now)
		case ws.VisibilityVisible:
			ctrl.ContentVisible(ctx, now)
		default:
			conn.writeError(response.ErrValidation, "unknown visibility state: " + req.State)
			return
		}
		h.recordProctoringEvent(ctx, participantID, "visibility_"+req.State, now)

	case ws.ActionFullscreen:
		var req ws.FullscreenRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			conn.writeError(response.ErrValidation, "state is required")
			return
		}
		switch req.State {
		case ws.FullscreenEntered:
			ctrl.FullscreenEntered(now)
		case ws.FullscreenExited:
			ctrl.FullscreenExited(ctx, now)
		case ws.FullscreenUnsupported:
			ctrl.FullscreenUnsupported(now)
		default:
			conn.writeError(response.ErrValidation, "unknown fullscreen state: " + req.State)
			return
		}
		h.recordProctoringEvent(ctx, participantID, "fullscreen_"+req.State, now)

	case ws.ActionFinishRequest:
		ctrl.RequestFinish()

	case ws.ActionFinishCancel:
		ctrl.CancelFinishRequest()

	case ws.ActionFinishConfirm:
		ctrl.ConfirmFinish(ctx, now)
		return // terminal snapshot arrives via the subscriber

	case ws.ActionMuteToggle:
		ctrl.ToggleMute()

	case ws.ActionPing:
		_ = conn.writeTyped(ws.PongResponse{Event: ws.EventPong})
		return

	default:
		wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
		conn.writeError(response.ErrValidation, "unknown action: " + string(action))
		return
	}

	_ = conn.writeTyped(ws.StateEvent{Event: ws.EventState, Snapshot: ctrl.Snapshot(time.Now())})
}

// recordProctoringEvent queues a proctoring audit record for async persistence.
func (h *WSHandler) recordProctoringEvent(ctx context.Context, participantID int, eventType string, occurredAt time.Time) {
	payload, _ := json.Marshal(map[string]interface{}{
		"participant_id": participantID,
		"event_type":     eventType,
		"occurred_at":    occurredAt.UTC().Format(time.RFC3339),
	})
	if err := h.rdb.RPush(ctx, config.WorkerKey.PersistProctoringQueue, payload).Err(); err != nil {
		h.log.Warn().Err(err).Msg("failed to queue proctoring event")
	}
}

// notificationEvent maps a controller notification to its wire event.
func notificationEvent(n session.Notification) interface{} {
	switch n.Kind {
	case session.NoteWarning:
		return ws.WarningEvent{Event: ws.EventWarning, Message: n.Message, Snapshot: n.Snapshot}
	case session.NoteFinished:
		return ws.FinishedEvent{Event: ws.EventFinished, Reason: string(n.Snapshot.FinishReason), Snapshot: n.Snapshot}
	case session.NoteSubmitFailed:
		return ws.ErrorResponse{Event: ws.EventError, Code: response.ErrSubmissionFailed, Error: n.Message}
	default:
		return ws.StateEvent{Event: ws.EventState, Snapshot: n.Snapshot}
	}
}
