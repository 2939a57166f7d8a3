// Package server exposes the math agent over HTTP, one conversation per
// session.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/olusolaa/mathagent/foundation/conversation"
	"github.com/olusolaa/mathagent/internal/agent"
)

// Server is the HTTP driver of the agent.
type Server struct {
	agent    *agent.Agent
	sessions *store
	logger   *slog.Logger
	h        *server.Hertz
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a server listening on addr. Call Spin to serve.
func New(a *agent.Agent, addr string, opts ...Option) *Server {
	s := &Server{
		agent:    a,
		sessions: newStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	s.h = server.Default(server.WithHostPorts(addr))
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.h.Group("/v1")
	v1.GET("/graph", s.graph)
	v1.POST("/sessions", s.createSession)
	v1.GET("/sessions/:id", s.getSession)
	v1.DELETE("/sessions/:id", s.deleteSession)
	v1.POST("/sessions/:id/messages", s.postMessage)
	v1.POST("/sessions/:id/stream", s.streamMessage)
}

// Spin serves until the process receives a shutdown signal.
func (s *Server) Spin() {
	s.logger.Info("http server starting")
	s.h.Spin()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.h.Shutdown(ctx)
}

type sessionResponse struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"created_at"`
	Messages  []conversation.Message `json:"messages"`
}

type messageRequest struct {
	Query string `json:"query"`
}

type messageResponse struct {
	Answer   string                 `json:"answer"`
	Messages []conversation.Message `json:"messages"`
}

func newSessionResponse(sess *session) sessionResponse {
	msgs := sess.snapshot().Messages()
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	return sessionResponse{ID: sess.id, CreatedAt: sess.created, Messages: msgs}
}

func (s *Server) graph(ctx context.Context, c *app.RequestContext) {
	g := s.agent.Topology()
	if c.Query("format") == "mermaid" {
		c.Data(consts.StatusOK, "text/plain; charset=utf-8", []byte(agent.Mermaid(g)))
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"graph":   g,
		"mermaid": agent.Mermaid(g),
	})
}

func (s *Server) createSession(ctx context.Context, c *app.RequestContext) {
	sess := s.sessions.create()
	s.logger.Info("session created", "session_id", sess.id)
	c.JSON(consts.StatusCreated, newSessionResponse(sess))
}

func (s *Server) getSession(ctx context.Context, c *app.RequestContext) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(consts.StatusOK, newSessionResponse(sess))
}

func (s *Server) deleteSession(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if !s.sessions.remove(id) {
		abortError(c, consts.StatusNotFound, "session not found")
		return
	}
	s.logger.Info("session deleted", "session_id", id)
	c.Status(consts.StatusNoContent)
}

func (s *Server) postMessage(ctx context.Context, c *app.RequestContext) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	query, ok := bindQuery(c)
	if !ok {
		return
	}

	answer, state, err := s.runTurn(ctx, sess, query)
	if err != nil {
		abortError(c, statusFor(err), err.Error())
		return
	}
	c.JSON(consts.StatusOK, messageResponse{
		Answer:   answer,
		Messages: state.Messages(),
	})
}

// runTurn runs one agent turn on sess. The session keeps the updated state
// on success and on the loop limit; otherwise it is left as it was.
func (s *Server) runTurn(ctx context.Context, sess *session, query string, opts ...agent.RunOption) (string, *conversation.State, error) {
	sess.turn.Lock()
	defer sess.turn.Unlock()

	answer, state, err := s.agent.Run(ctx, query, sess.snapshot(), opts...)
	if err == nil || errors.Is(err, agent.ErrLoopLimitExceeded) {
		sess.replace(state)
	}
	if err != nil {
		s.logger.Warn("turn failed", "session_id", sess.id, "error", err)
		return "", nil, err
	}
	return answer, state, nil
}

func (s *Server) lookup(c *app.RequestContext) (*session, bool) {
	sess, ok := s.sessions.get(c.Param("id"))
	if !ok {
		abortError(c, consts.StatusNotFound, "session not found")
	}
	return sess, ok
}

func bindQuery(c *app.RequestContext) (string, bool) {
	var req messageRequest
	if err := c.BindAndValidate(&req); err != nil {
		abortError(c, consts.StatusBadRequest, "invalid request body: "+err.Error())
		return "", false
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		abortError(c, consts.StatusBadRequest, "query cannot be empty")
		return "", false
	}
	return query, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrReasoningTimeout):
		return consts.StatusGatewayTimeout
	case errors.Is(err, agent.ErrReasoningUnavailable):
		return consts.StatusBadGateway
	case errors.Is(err, agent.ErrLoopLimitExceeded):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, agent.ErrTurnCanceled), errors.Is(err, context.Canceled):
		return consts.StatusServiceUnavailable
	default:
		return consts.StatusInternalServerError
	}
}

func abortError(c *app.RequestContext, status int, msg string) {
	c.AbortWithStatusJSON(status, utils.H{"error": msg})
}
