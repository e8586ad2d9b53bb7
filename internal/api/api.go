package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/marefa.ai/internal/auth"
	"github.com/wuwenbin0122/marefa.ai/internal/chat"
	"github.com/wuwenbin0122/marefa.ai/internal/gateway"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

const (
	msgMessageRequired  = "Message is required and must be a non-empty string"
	msgMessageTooLong   = "Message too long. Maximum 4000 characters allowed."
	msgNotFound         = "Conversation not found"
	msgProcessingFailed = "Failed to process message"
	msgGenerationFailed = "Failed to generate AI response"
)

type Handler struct {
	authService   *auth.Service
	chat          *chat.Service
	logger        *zap.Logger
	version       string
	listingPublic bool
	now           func() time.Time

	upgrader websocket.Upgrader
	// turnLimiter charges each websocket turn against the client IP.
	turnLimiter *IPRateLimiter
}

type HandlerConfig struct {
	Version string
	// ListingPublic opens GET /api/conversations to anonymous callers.
	ListingPublic bool
}

func NewHandler(authService *auth.Service, chatService *chat.Service, logger *zap.Logger, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}

	return &Handler{
		authService:   authService,
		chat:          chatService,
		logger:        logger.Named("api"),
		version:       version,
		listingPublic: cfg.ListingPublic,
		now:           func() time.Time { return time.Now().UTC() },
		upgrader:      newTurnUpgrader(""),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.handleHealth)

	apiGroup := router.Group("/api")
	apiGroup.GET("/health", h.handleHealth)

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.handleRegister)
	authGroup.POST("/login", h.handleLogin)

	conversations := apiGroup.Group("/conversations")
	conversations.POST("", h.handleCreateConversation)
	conversations.GET("", RequireAdmin(h.authService, h.listingPublic), h.handleListConversations)
	conversations.GET("/:id", h.handleGetConversation)
	conversations.DELETE("/:id", h.handleDeleteConversation)
	conversations.POST("/:id/messages", h.handleSendMessage)
	conversations.GET("/:id/ws", h.handleConversationWebsocket)
}

// RouterConfig collects the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	FrontendURL string
	StaticDir   string
	RateLimit   utils.RateLimitConfig
	// ConnectSrc lists extra origins the browser bundle may call.
	ConnectSrc []string
}

// NewRouter builds the engine with middleware, API routes and the static
// bundle fallback.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(
		Recovery(h.logger),
		RequestLogger(h.logger),
		SecurityHeaders(cfg.ConnectSrc...),
		CORS(cfg.FrontendURL),
		BodyLimit(maxBodyBytes),
	)

	limiter := NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst)
	h.turnLimiter = limiter
	h.upgrader = newTurnUpgrader(cfg.FrontendURL)

	limit := limiter.Middleware()
	router.Use(func(c *gin.Context) {
		if isAPIPath(c.Request.URL.Path) {
			limit(c)
			return
		}
		c.Next()
	})

	h.RegisterRoutes(router)
	router.NoRoute(StaticFallback(cfg.StaticDir))

	return router
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now().Format(time.RFC3339),
		"version":   h.version,
	})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNameRequired), errors.Is(err, auth.ErrEmailRequired), errors.Is(err, auth.ErrPasswordTooWeak):
			writeError(c, http.StatusBadRequest, err.Error(), err)
		case errors.Is(err, auth.ErrEmailExists):
			writeError(c, http.StatusConflict, err.Error(), err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to register user", err)
		}
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(result))
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(c, http.StatusBadRequest, "email and password are required", auth.ErrInvalidCredentials)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, err.Error(), err)
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to login", err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

func newAuthResponse(result *auth.AuthResult) gin.H {
	return gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
		"user": gin.H{
			"id":        result.User.ID,
			"name":      result.User.Name,
			"email":     result.User.Email,
			"role":      result.User.Role,
			"createdAt": result.User.CreatedAt.Format(time.RFC3339),
			"updatedAt": result.User.UpdatedAt.Format(time.RFC3339),
		},
	}
}

// turnErrorResponse maps a turn failure to a status and a client-safe body.
// Upstream and internal detail never leaves the server.
func turnErrorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, store.ErrMessageTooLong):
		return http.StatusBadRequest, gin.H{"error": msgMessageTooLong}
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, gin.H{"error": msgMessageRequired}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": msgNotFound}
	case errors.Is(err, gateway.ErrGenerationFailed), errors.Is(err, gateway.ErrNoProvider):
		return http.StatusInternalServerError, gin.H{"error": msgProcessingFailed, "details": msgGenerationFailed}
	default:
		return http.StatusInternalServerError, gin.H{"error": msgProcessingFailed, "details": "Internal server error"}
	}
}

func writeError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}
