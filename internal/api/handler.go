// Package api exposes the search session over HTTP for a local web front
// end.
package api

import (
	"context"
	"net/http"
	"time"

	"askweb/internal/auth"
	"askweb/internal/backend"
	"askweb/internal/credit"
	"askweb/internal/history"
	"askweb/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Session is the search session served by the handler.
type Session interface {
	SubmitSearch(ctx context.Context, query string) (history.Record, error)
	SubmitFollowup(ctx context.Context, query, targetID string) (history.Record, error)
	ViewRecord(id string) (history.Record, error)
	Parent(rec history.Record) (history.Record, bool)
	ClearHistory(ctx context.Context)
	Cancel() bool
	CurrentSession() session.State
}

// Accounts signs users in and out.
type Accounts interface {
	CurrentUser() *auth.User
	Login(ctx context.Context, email string) (*auth.User, error)
	Logout(ctx context.Context) error
}

// Balances reports credit balances.
type Balances interface {
	Balance(ctx context.Context, userID string) (int, error)
}

type Handler struct {
	Session  Session
	Accounts Accounts
	Balances Balances
	logger   *zap.Logger
}

func NewHandler(s Session, accounts Accounts, balances Balances, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Session: s, Accounts: accounts, Balances: balances, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	{
		api.POST("/search", h.search)
		api.POST("/followup", h.followup)
		api.POST("/cancel", h.cancel)

		api.GET("/session", h.getSession)
		api.GET("/records/:id", h.getRecord)
		api.DELETE("/records", h.clearRecords)

		api.GET("/credits", h.getCredits)
		api.POST("/login", h.login)
		api.POST("/logout", h.logout)
	}
}

type searchRequest struct {
	Query string `json:"query"`
}

type followupRequest struct {
	Query string `json:"query"`
	// ParentID targets a specific record; empty uses the current context.
	ParentID string `json:"parent_id"`
}

type loginRequest struct {
	Email string `json:"email"`
}

type recordResponse struct {
	Record history.Record  `json:"record"`
	Parent *history.Record `json:"parent,omitempty"`
}

type sessionResponse struct {
	session.State
	User *auth.User `json:"user,omitempty"`
}

type creditsResponse struct {
	User    *auth.User `json:"user"`
	Credits int        `json:"credits"`
}

func (h *Handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.Session.SubmitSearch(c.Request.Context(), req.Query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.recordResponse(rec))
}

func (h *Handler) followup(c *gin.Context) {
	var req followupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.Session.SubmitFollowup(c.Request.Context(), req.Query, req.ParentID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.recordResponse(rec))
}

func (h *Handler) cancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.Session.Cancel()})
}

func (h *Handler) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionResponse{
		State: h.Session.CurrentSession(),
		User:  h.Accounts.CurrentUser(),
	})
}

func (h *Handler) getRecord(c *gin.Context) {
	rec, err := h.Session.ViewRecord(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.recordResponse(rec))
}

func (h *Handler) clearRecords(c *gin.Context) {
	h.Session.ClearHistory(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) getCredits(c *gin.Context) {
	user := h.Accounts.CurrentUser()
	if user == nil {
		h.writeError(c, session.ErrAuthRequired)
		return
	}

	balance, err := h.Balances.Balance(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to read balance", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not read credits, please try again"})
		return
	}
	c.JSON(http.StatusOK, creditsResponse{User: user, Credits: balance})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.Accounts.Login(c.Request.Context(), req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.Accounts.Logout(c.Request.Context()); err != nil {
		h.logger.Warn("failed to clear persisted session", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) recordResponse(rec history.Record) recordResponse {
	resp := recordResponse{Record: rec}
	if parent, ok := h.Session.Parent(rec); ok {
		resp.Parent = &parent
	}
	return resp
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": session.UserMessage(err)})
}

// StatusFor maps a session error to an HTTP status.
func StatusFor(err error) int {
	var denied *session.CreditDeniedError
	var backendErr *backend.Error

	switch {
	case errors.Is(err, session.ErrEmptyQuery),
		errors.Is(err, session.ErrNoContext),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.As(err, &denied):
		if denied.Reason == credit.NoCreditsRemaining {
			return http.StatusPaymentRequired
		}
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSuperseded), errors.Is(err, session.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, session.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &backendErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// requestLogger logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
