package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/prepwise/mockexam-backend/internal/middleware"
	"github.com/prepwise/mockexam-backend/internal/service"
	"github.com/prepwise/mockexam-backend/internal/session"
	ws "github.com/prepwise/mockexam-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
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

// WSHandler streams a live session over WebSocket: answer and navigation
// actions inbound, timer ticks and the final result outbound.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// wsConn serializes writes: the tick pusher goroutine and the action
// reply path share one connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteTyped(w.conn, v)
}

func (w *wsConn) sendError(msg string) {
	_ = w.send(ws.ErrorResponse{Event: ws.EventError, Error: msg})
}

// SessionStream godoc
// WS /ws/v1/portal/exams/:exam_id/stream
// Requires an already-started session; closes when the session ends.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()

	conn := &wsConn{conn: raw}
	userID := claims.UserID

	ticks, cancel, err := h.sessionService.Subscribe(userID, examID)
	if err != nil {
		conn.sendError("no active session for this exam")
		return
	}
	defer cancel()

	wsLog := h.log.With().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Taker connected")

	go h.pushTicks(conn, ticks, userID, examID)

	for {
		// Read the raw message once; the envelope identifies the action
		// and the same bytes decode into the typed request.
		data, err := ws.ReadRaw(raw)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			conn.sendError("malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, data, userID, examID)
		case ws.ActionGoTo:
			h.handleGoTo(conn, data, userID, examID)
		case ws.ActionNext:
			h.handleNavigate(conn, userID, examID, "next")
		case ws.ActionPrev:
			h.handleNavigate(conn, userID, examID, "prev")
		case ws.ActionState:
			h.handleState(conn, userID, examID)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, userID, examID)
		case ws.ActionPing:
			_ = conn.send(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			conn.sendError("unknown action: " + string(env.Action))
		}
	}
}

// pushTicks forwards timer events; after a submit or timeout it pushes
// the final result and stops.
func (h *WSHandler) pushTicks(conn *wsConn, ticks <-chan service.TickEvent, userID int, examID uuid.UUID) {
	for ev := range ticks {
		_ = conn.send(ws.TickResponse{
			Event:            ws.EventTick,
			RemainingSeconds: int(ev.Remaining.Seconds()),
			ElapsedSeconds:   int(ev.Elapsed.Seconds()),
		})

		state, err := h.sessionService.State(userID, examID)
		if err != nil {
			return
		}
		if state.Result != nil {
			_ = conn.send(ws.ResultResponse{
				Event:  ws.EventResult,
				Reason: string(state.Result.Reason),
				Result: state.Result,
			})
			return
		}
	}
}

func (h *WSHandler) handleAnswer(conn *wsConn, data []byte, userID int, examID uuid.UUID) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Choice == "" {
		conn.sendError("question_index and choice are required")
		return
	}

	if err := h.sessionService.Record(context.Background(), userID, examID, req.QuestionIndex, req.Choice); err != nil {
		conn.sendError(sessionErrMessage(err))
		return
	}

	_ = conn.send(ws.SavedResponse{
		Event:         ws.EventSaved,
		QuestionIndex: req.QuestionIndex,
		Choice:        req.Choice,
	})
}

func (h *WSHandler) handleGoTo(conn *wsConn, data []byte, userID int, examID uuid.UUID) {
	var req ws.GoToRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.sendError("index is required")
		return
	}

	state, err := h.sessionService.Navigate(userID, examID, "goto", req.Index)
	if err != nil {
		conn.sendError(sessionErrMessage(err))
		return
	}
	h.sendState(conn, state)
}

func (h *WSHandler) handleNavigate(conn *wsConn, userID int, examID uuid.UUID, op string) {
	state, err := h.sessionService.Navigate(userID, examID, op, 0)
	if err != nil {
		conn.sendError(sessionErrMessage(err))
		return
	}
	h.sendState(conn, state)
}

func (h *WSHandler) handleState(conn *wsConn, userID int, examID uuid.UUID) {
	state, err := h.sessionService.State(userID, examID)
	if err != nil {
		conn.sendError(sessionErrMessage(err))
		return
	}
	h.sendState(conn, state)
}

func (h *WSHandler) sendState(conn *wsConn, state *service.SessionState) {
	_ = conn.send(ws.StateResponse{
		Event:            ws.EventState,
		Status:           string(state.Status),
		CurrentIndex:     state.CurrentIndex,
		TotalQuestions:   state.TotalQuestions,
		Answers:          state.Answers,
		RemainingSeconds: state.RemainingSeconds,
		ElapsedSeconds:   state.ElapsedSeconds,
	})
}

func (h *WSHandler) handleSubmit(conn *wsConn, wsLog zerolog.Logger, userID int, examID uuid.UUID) {
	result, err := h.sessionService.Submit(context.Background(), userID, examID)
	if err != nil {
		conn.sendError(sessionErrMessage(err))
		return
	}

	wsLog.Info().
		Int("score", result.Score).
		Int("correct", result.CorrectAnswers).
		Int("total", result.TotalQuestions).
		Msg("Session submitted over WebSocket")

	_ = conn.send(ws.ResultResponse{
		Event:  ws.EventResult,
		Reason: string(result.Reason),
		Result: result,
	})
}

// sessionErrMessage converts domain errors to client-safe strings.
func sessionErrMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionSubmitted):
		return "session already submitted"
	case errors.Is(err, session.ErrScoringUnavailable):
		return "scoring temporarily unavailable, try again"
	case errors.Is(err, session.ErrIndexOutOfRange):
		return "question index out of range"
	case errors.Is(err, service.ErrNoActiveSession):
		return "no active session"
	default:
		return "operation failed"
	}
}
