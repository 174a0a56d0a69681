package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartchat/internal/auth"
	"smartchat/internal/models"
	"smartchat/internal/service/chat"
	"smartchat/pkg/logger"
)

// Handler wires HTTP routes to the chat and auth services. Error payloads use
// a "detail" field throughout; clients surface it verbatim.
type Handler struct {
	chat *chat.Service
	auth *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(chatService *chat.Service, authService *auth.Service) *Handler {
	return &Handler{chat: chatService, auth: authService}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/auth/register", h.registerUser)
	api.POST("/auth/login", h.loginUser)

	authMW := h.auth.Middleware()
	api.POST("/auth/logout", authMW, h.logoutUser)

	chatRoutes := api.Group("/chat")
	chatRoutes.Use(authMW, h.auth.CSRFMiddleware())
	chatRoutes.GET("/sessions", h.listSessions)
	chatRoutes.POST("/sessions", h.createSession)
	chatRoutes.GET("/:session_id/messages", h.sessionMessages)
	chatRoutes.POST("/:session_id/send", h.sendMessage)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	user, err := h.chat.RegisterUser(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, chat.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already registered"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"full_name":  user.FullName,
		"created_at": user.CreatedAt,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) loginUser(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	user, err := h.chat.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, chat.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid email or password"})
			return
		}
		logger.Errorf("login failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Login failed"})
		return
	}
	authToken, expiresAt, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		logger.Errorf("issue token failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Login failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		logger.Errorf("issue csrf token failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Login failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"access_token": authToken,
		"token_type":   "bearer",
		"expires_at":   expiresAt,
		"user": gin.H{
			"id":        user.ID,
			"email":     user.Email,
			"full_name": user.FullName,
		},
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), userID); err != nil {
		logger.Warnf("revoke tokens for user %s failed: %v", userID, err)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessions, err := h.chat.ListSessions(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("list sessions for user %s failed: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch chat sessions"})
		return
	}
	out := make([]wireSession, 0, len(sessions))
	for _, se := range sessions {
		out = append(out, toWireSession(se))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) createSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	session, err := h.chat.CreateSession(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("create session for user %s failed: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to create chat session"})
		return
	}
	c.JSON(http.StatusOK, toWireSession(*session))
}

func (h *Handler) sessionMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	messages, err := h.chat.SessionMessages(c.Request.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Chat session not found"})
			return
		}
		logger.Errorf("fetch messages for session %s failed: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch session messages"})
		return
	}
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, toWireMessage(m))
	}
	c.JSON(http.StatusOK, out)
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}
	reply, err := h.chat.ProcessMessage(c.Request.Context(), userID, sessionID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "Chat session not found"})
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "message text cannot be empty"})
		default:
			logger.Errorf("process message for session %s failed: %v", sessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to process message"})
		}
		return
	}
	c.JSON(http.StatusOK, toWireMessage(*reply))
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "authorization required"})
		return "", false
	}
	return userID, true
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// Wire shapes. The HTTP surface predates the canonical model and reports the
// assistant as "bot"; both sides translate at their boundary.

type wireMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

type wireSession struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	LastMessage string        `json:"last_message"`
	Timestamp   time.Time     `json:"timestamp"`
	UserID      string        `json:"user_id"`
	Messages    []wireMessage `json:"messages"`
}

func toWireMessage(m models.Message) wireMessage {
	sender := "user"
	if m.Sender == models.SenderAssistant {
		sender = "bot"
	}
	return wireMessage{
		ID:        m.ID,
		Text:      m.Text,
		Sender:    sender,
		Timestamp: m.Timestamp,
		SessionID: m.SessionID,
	}
}

func toWireSession(se models.ChatSession) wireSession {
	msgs := make([]wireMessage, 0, len(se.Messages))
	for _, m := range se.Messages {
		msgs = append(msgs, toWireMessage(m))
	}
	return wireSession{
		ID:          se.ID,
		Title:       se.Title,
		LastMessage: se.LastMessage,
		Timestamp:   se.Timestamp,
		UserID:      se.UserID,
		Messages:    msgs,
	}
}
