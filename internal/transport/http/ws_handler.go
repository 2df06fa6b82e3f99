package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"iq-quiz-client/internal/app"
	"iq-quiz-client/internal/display"
	"iq-quiz-client/internal/domain"
	"iq-quiz-client/internal/infra/backend"
	"iq-quiz-client/internal/timer"
)

// WSHandler drives test runs over a websocket: one connection, one browsing
// session, at most one active run.
type WSHandler struct {
	service   *app.Service
	publicURL string
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func NewWSHandler(service *app.Service, publicURL string, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service:   service,
		publicURL: publicURL,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type enterPayload struct {
	Nickname string `json:"nickname"`
}

type selectPayload struct {
	Index  int `json:"index"`
	Option int `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname,omitempty"`
}

type introPayload struct {
	Index       int             `json:"index"`
	Total       int             `json:"total"`
	Category    domain.Category `json:"category"`
	Emoji       string          `json:"emoji"`
	Description string          `json:"description"`
	Position    int             `json:"position"`
	Count       int             `json:"count"`
	Size        int             `json:"size"`
	Seconds     int             `json:"seconds"`
}

type questionPayload struct {
	Index              int             `json:"index"`
	Total              int             `json:"total"`
	PositionInCategory int             `json:"positionInCategory"`
	CategorySize       int             `json:"categorySize"`
	Seconds            int             `json:"seconds"`
	Question           domain.Question `json:"question"`
}

type tickPayload struct {
	Index     int  `json:"index"`
	Remaining int  `json:"remaining"`
	Urgent    bool `json:"urgent"`
}

type answeredPayload struct {
	Index  int `json:"index"`
	Answer int `json:"answer"`
}

type resultPayload struct {
	Result    domain.Result `json:"result"`
	IQLabel   string        `json:"iqLabel"`
	SharePath string        `json:"sharePath"`
	ShareURL  string        `json:"shareUrl"`
}

type errorPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type runPayload struct {
	RunID string `json:"runId"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the test-run
// use cases. ?session= resumes a browsing session; otherwise a new one is issued.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = h.service.NewSessionID()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := backend.WithForwardedFor(r.Context(), clientIP(r))
	c := &wsConn{
		h:            h,
		sessionID:    sessionID,
		send:         make(chan outboundMessage[any], 32),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
	}

	go func() {
		defer close(c.writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "session", sessionID, "error", err)
				return
			}
		}
	}()

	c.push("session", sessionPayload{SessionID: sessionID})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		c.handle(ctx, inbound)
	}

	close(c.closeSignals)
	if c.runner != nil {
		c.runner.Close()
		<-c.runner.Drained()
	}
	close(c.send)
	<-c.writerDone
}

type wsConn struct {
	h         *WSHandler
	sessionID string
	runner    *app.Runner

	send         chan outboundMessage[any]
	closeSignals chan struct{}
	writerDone   chan struct{}
}

func (c *wsConn) handle(ctx context.Context, in inboundMessage) {
	switch in.Type {
	case "enter":
		var p enterPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.fail(domain.ErrInvalidNickname)
			return
		}
		name, err := c.h.service.Enter(ctx, c.sessionID, p.Nickname)
		if err != nil {
			c.fail(err)
			return
		}
		c.push("session", sessionPayload{SessionID: c.sessionID, Nickname: name})

	case "start":
		if c.runner != nil && c.runner.Phase() == app.PhaseIntro {
			if err := c.runner.Acknowledge(); err != nil {
				c.fail(err)
			}
			return
		}
		if c.runner != nil && active(c.runner.Phase()) {
			c.fail(domain.ErrWrongPhase)
			return
		}
		if c.runner != nil {
			c.runner.Close()
		}
		runner, err := c.h.service.Begin(ctx, c.sessionID, c.observe)
		c.runner = runner
		// load failures are already reported through the observer
		if err != nil && !errors.Is(err, domain.ErrLoadFailed) {
			c.fail(err)
		}

	case "select":
		var p selectPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			c.fail(domain.ErrInvalidAnswer)
			return
		}
		if c.runner == nil {
			c.fail(domain.ErrWrongPhase)
			return
		}
		if _, err := c.runner.Select(p.Index, p.Option); err != nil {
			c.fail(err)
		}

	case "restart":
		if c.runner != nil {
			c.runner.Close()
			c.runner = nil
		}
		if err := c.h.service.Restart(ctx, c.sessionID); err != nil {
			c.fail(err)
			return
		}
		c.push("session", sessionPayload{SessionID: c.sessionID})

	default:
		c.push("error", errorPayload{Message: "unsupported message type"})
	}
}

// observe runs on the runner's dispatch goroutine.
func (c *wsConn) observe(ev app.Event) {
	switch ev.Kind {
	case app.EventLoading:
		c.push("loading", runPayload{RunID: ev.RunID})
	case app.EventIntro:
		info := display.InfoFor(ev.Category)
		c.push("intro", introPayload{
			Index:       ev.Index,
			Total:       ev.Total,
			Category:    ev.Category,
			Emoji:       info.Emoji,
			Description: info.Description,
			Position:    ev.CategoryPosition,
			Count:       ev.CategoryCount,
			Size:        ev.CategorySize,
			Seconds:     ev.Seconds,
		})
	case app.EventQuestion:
		c.push("question", questionPayload{
			Index:              ev.Index,
			Total:              ev.Total,
			PositionInCategory: ev.PositionInCategory,
			CategorySize:       ev.CategorySize,
			Seconds:            ev.Seconds,
			Question:           *ev.Question,
		})
	case app.EventTick:
		c.push("tick", tickPayload{Index: ev.Index, Remaining: ev.Remaining, Urgent: timer.IsUrgent(ev.Remaining)})
	case app.EventAnswered:
		c.push("answered", answeredPayload{Index: ev.Index, Answer: ev.Answer})
	case app.EventSubmitting:
		c.push("submitting", runPayload{RunID: ev.RunID})
	case app.EventDone:
		c.push("result", resultPayload{
			Result:    *ev.Result,
			IQLabel:   display.IQLabel(ev.Result.EstimatedIQ),
			SharePath: ev.SharePath,
			ShareURL:  display.ShareURL(c.h.publicURL, ev.SharePath),
		})
	case app.EventError:
		c.fail(ev.Err)
	}
}

func (c *wsConn) fail(err error) {
	c.push("error", errorPayload{Message: display.UserMessage(err), Detail: err.Error()})
}

// push never blocks past the end of the connection.
func (c *wsConn) push(typ string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-c.closeSignals:
	case <-c.writerDone:
	}
}

func active(p app.Phase) bool {
	switch p {
	case app.PhaseLoading, app.PhaseIntro, app.PhaseQuestion, app.PhaseSubmitting:
		return true
	}
	return false
}
