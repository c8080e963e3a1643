package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/campusmarket/marketplace-core/docs"
	"github.com/campusmarket/marketplace-core/internal/api/handler"
	"github.com/campusmarket/marketplace-core/internal/api/middleware"
	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

const (
	defaultAuthRatePerMinute = 20
	defaultAuthBurst         = 5
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Log      zerolog.Logger
	Tokens   middleware.TokenVerifier
	Users    middleware.UserLookup
	Auth     ports.AuthService
	Bids     ports.BidService
	Checkout ports.CheckoutService
	Orders   ports.OrderService
	Webhooks ports.WebhookService

	// HealthChecks are run by /health/ready. Empty in memory mode.
	HealthChecks map[string]handler.Check

	// AuthRatePerMinute and AuthBurst limit the public auth endpoints per
	// client IP.
	AuthRatePerMinute int
	AuthBurst         int
	SignatureHeader   string

	// Registry receives the HTTP request metrics. Nil uses the default
	// Prometheus registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(promConfig(deps.Registry)))
	e.Use(middleware.ResolveIdentity(deps.Tokens, deps.Users, deps.Log))

	requireAuth := middleware.RequireAuth()

	// --- Auth routes (public, rate-limited) ---
	rate, burst := deps.AuthRatePerMinute, deps.AuthBurst
	if rate <= 0 {
		rate = defaultAuthRatePerMinute
	}
	if burst <= 0 {
		burst = defaultAuthBurst
	}
	authHandler := handler.NewAuthHandler(deps.Auth)
	auth := e.Group("/auth", middleware.RateLimit(rate, burst))
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)

	// --- Bid routes ---
	bidHandler := handler.NewBidHandler(deps.Bids, deps.Checkout)
	bids := e.Group("/bids")
	bids.GET("/listing/:id/count", bidHandler.Count)
	bids.GET("/user", bidHandler.ListMine, requireAuth)
	bids.GET("/listing/:id", bidHandler.ListByListing, requireAuth)
	bids.POST("/listing/:id/finalize", bidHandler.Finalize, requireAuth)
	bids.POST("/:id", bidHandler.Create, requireAuth)
	bids.GET("/:id", bidHandler.Get, requireAuth)
	bids.PUT("/:id/status", bidHandler.UpdateStatus, requireAuth)
	bids.PATCH("/:id/status", bidHandler.UpdateStatus, requireAuth)
	bids.POST("/:id/accept", bidHandler.Accept, requireAuth)
	bids.POST("/:id/reject", bidHandler.Reject, requireAuth)
	bids.POST("/:id/pay", bidHandler.Pay, requireAuth)

	// --- Order routes ---
	orderHandler := handler.NewOrderHandler(deps.Orders, deps.Checkout)
	orders := e.Group("/orders", requireAuth)
	orders.POST("/cart", orderHandler.CreateFromCart)
	orders.GET("/payments/:ref/status", orderHandler.PaymentStatusByReference)
	orders.GET("/user/:userId", orderHandler.ListByUser, middleware.RequireOwner("userId"))
	orders.GET("/user/:userId/payments", orderHandler.ListPayments, middleware.RequireOwner("userId"))
	orders.GET("/:id", orderHandler.Get)
	orders.POST("/:id/pay", orderHandler.Pay)
	orders.GET("/:id/payment-status", orderHandler.PaymentStatus)

	// --- Processor callbacks (signature-verified, no identity) ---
	webhookHandler := handler.NewWebhookHandler(deps.Webhooks, deps.SignatureHeader)
	e.POST("/webhook", webhookHandler.Receive)

	// --- Operator routes ---
	adminHandler := handler.NewAdminHandler(deps.Webhooks)
	admin := e.Group("/admin", middleware.RequireAuthority(domain.AuthorityAdmin))
	admin.GET("/reconciliation", adminHandler.Reconciliation)

	// --- Health checks, metrics and docs (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.HealthChecks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", promHandler(deps.Registry))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func promConfig(reg *prometheus.Registry) echoprometheus.MiddlewareConfig {
	cfg := echoprometheus.MiddlewareConfig{Subsystem: "marketplace"}
	if reg != nil {
		cfg.Registerer = reg
	}
	return cfg
}

func promHandler(reg *prometheus.Registry) echo.HandlerFunc {
	if reg == nil {
		return echoprometheus.NewHandler()
	}
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg})
}
