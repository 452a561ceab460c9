// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mnordin/go-concierge-backend/internal/config"
	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/http/handlers"
	"github.com/mnordin/go-concierge-backend/internal/http/middleware"
	"github.com/mnordin/go-concierge-backend/internal/llm"
	"github.com/mnordin/go-concierge-backend/internal/notify"
	"github.com/mnordin/go-concierge-backend/internal/repo"
	"github.com/mnordin/go-concierge-backend/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// tenantRepoShim adapts the repository free functions to the services
// interfaces that need tenant and configuration lookups. This keeps services
// decoupled from the concrete repo package while reusing existing functions.
type tenantRepoShim struct{}

// GetCustomer proxies repo.GetCustomer.
func (tenantRepoShim) GetCustomer(ctx context.Context, db *gorm.DB, id string) (*domain.Customer, error) {
	return repo.GetCustomer(ctx, db, id)
}

// GetCustomerBySlug proxies repo.GetCustomerBySlug.
func (tenantRepoShim) GetCustomerBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Customer, error) {
	return repo.GetCustomerBySlug(ctx, db, slug)
}

// GetAIConfig proxies repo.GetAIConfig.
func (tenantRepoShim) GetAIConfig(ctx context.Context, db *gorm.DB, customerID string) (*domain.AIConfig, error) {
	return repo.GetAIConfig(ctx, db, customerID)
}

// GetAnalysisConfig proxies repo.GetAnalysisConfig.
func (tenantRepoShim) GetAnalysisConfig(ctx context.Context, db *gorm.DB, customerID string) (*domain.AnalysisConfig, error) {
	return repo.GetAnalysisConfig(ctx, db, customerID)
}

// GetCompanion proxies repo.GetCompanion.
func (tenantRepoShim) GetCompanion(ctx context.Context, db *gorm.DB, customerID, key string) (*domain.Companion, error) {
	return repo.GetCompanion(ctx, db, customerID, key)
}

// ListActiveActions proxies repo.ListActiveActions.
func (tenantRepoShim) ListActiveActions(ctx context.Context, db *gorm.DB, customerID string) ([]domain.Action, error) {
	return repo.ListActiveActions(ctx, db, customerID)
}

// sessionRepoShim adapts the session repository functions to the
// services.SessionStore interface (and, via UpdateSession, to the
// services.SessionFlagger interface used by the dispatcher).
type sessionRepoShim struct{}

// GetSession proxies repo.GetSession.
func (sessionRepoShim) GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	return repo.GetSession(ctx, db, id)
}

// CreateSession proxies repo.CreateSession.
func (sessionRepoShim) CreateSession(ctx context.Context, db *gorm.DB, customerID string, metadata domain.JSONMap) (*domain.Session, error) {
	return repo.CreateSession(ctx, db, customerID, metadata)
}

// UpdateSession proxies repo.UpdateSession.
func (sessionRepoShim) UpdateSession(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return repo.UpdateSession(ctx, db, id, fields)
}

// MergeSessionMetadata proxies repo.MergeSessionMetadata.
func (sessionRepoShim) MergeSessionMetadata(ctx context.Context, db *gorm.DB, id string, partial domain.JSONMap) error {
	return repo.MergeSessionMetadata(ctx, db, id, partial)
}

// messageRepoShim adapts the message repository functions to the
// services.MessageStore interface.
type messageRepoShim struct{}

// AppendMessage proxies repo.AppendMessage.
func (messageRepoShim) AppendMessage(db *gorm.DB, sessionID, role, content, senderType string) (*domain.Message, error) {
	return repo.AppendMessage(db, sessionID, role, content, senderType)
}

// ListRecentMessages proxies repo.ListRecentMessages.
func (messageRepoShim) ListRecentMessages(db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	return repo.ListRecentMessages(db, sessionID, limit)
}

// CountMessages proxies repo.CountMessages.
func (messageRepoShim) CountMessages(db *gorm.DB, sessionID string) (int64, error) {
	return repo.CountMessages(db, sessionID)
}

// ListHistoryTail proxies repo.ListHistoryTail.
func (messageRepoShim) ListHistoryTail(db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	return repo.ListHistoryTail(db, sessionID, limit)
}

// notificationRepoShim adapts the notification repository functions to the
// services.NotificationStore interface.
type notificationRepoShim struct{}

// NotificationExists proxies repo.NotificationExists.
func (notificationRepoShim) NotificationExists(ctx context.Context, db *gorm.DB, sessionID, notificationType string) (bool, error) {
	return repo.NotificationExists(ctx, db, sessionID, notificationType)
}

// CreateNotification proxies repo.CreateNotification.
func (notificationRepoShim) CreateNotification(ctx context.Context, db *gorm.DB, sessionID, customerID, notificationType, summary string) (*domain.Notification, error) {
	return repo.CreateNotification(ctx, db, sessionID, customerID, notificationType, summary)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per customer/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, provider llm.Provider, sender *notify.WebhookSender) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Conversations carry guest PII
	// (names, phone numbers, reservation emails), so redaction is not
	// optional here.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting). The lookup here only
	// decides the rate-limit bypass; the chat handler performs the
	// authoritative customer-and-session-scoped lookup and serves the stored
	// reply.
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, key string, now time.Time) (bool, error) {
			exists, err := repo.IdempotencyKeyExists(ctx, db, key, now)
			if err != nil {
				return false, nil
			}
			return exists, nil
		},
	))

	// 8) Token-bucket rate limiter per customer/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCustomerOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured). Chat
	// widgets call this API from arbitrary customer domains, so the open
	// default is the common deployment.
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Framing stays allowed because the widget runs inside customer iframes.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
		AllowFraming: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API documentation (behind a flag; off in production by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/llm/notify
	sessionMgr := services.NewSessionManager(db, sessionRepoShim{}, messageRepoShim{})

	screener := services.NewScreener(
		&llm.SafetyScorer{Provider: provider, Model: cfg.OpenAI.AnalysisModel},
		cfg.Risk,
	)

	dispatcher := &services.Dispatcher{
		DB:            db,
		Notifications: notificationRepoShim{},
		Sessions:      sessionRepoShim{},
		Push:          sender,
		Mailer:        sender,
	}

	analysis := &services.AnalysisRunner{
		DB:         db,
		Analyzer:   &llm.ConversationAnalyzer{Provider: provider, Model: cfg.OpenAI.AnalysisModel},
		Sessions:   sessionRepoShim{},
		Matcher:    services.Matcher{},
		Dispatcher: dispatcher,
	}

	turnSvc := &services.TurnService{
		DB:             db,
		Tenants:        tenantRepoShim{},
		Sessions:       sessionMgr,
		Screener:       screener,
		Matcher:        services.Matcher{},
		Analysis:       analysis,
		Provider:       provider,
		Push:           sender,
		Mailer:         sender,
		ChatModel:      cfg.OpenAI.ChatModel,
		HistoryWindow:  cfg.HistoryWindow,
		MaxPromptRunes: cfg.MaxPromptRunes,
	}

	inboxSvc := &services.InboxService{
		DB:       db,
		Sessions: sessionRepoShim{},
		Messages: messageRepoShim{},
	}

	fbSvc := &services.FeedbackService{DB: db}
	h := handlers.New(turnSvc, inboxSvc, fbSvc, cfg.IdempotencyTTL)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Guest chat
		api.POST("/chat", h.ProcessTurn)

		// Staff dashboard, scoped per customer
		api.GET("/customers/:slug/sessions", h.ListSessions)
		api.GET("/customers/:slug/sessions/:id/messages", h.ListSessionMessages)
		api.POST("/customers/:slug/sessions/:id/reply", h.StaffReply)
		api.PUT("/customers/:slug/sessions/:id/handoff", h.SetHandoff)
		api.GET("/customers/:slug/notifications", h.ListNotifications)
		api.PUT("/customers/:slug/notifications/:id/read", h.MarkNotificationRead)

		// Feedback
		api.POST("/messages/:id/feedback", h.LeaveFeedback)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
