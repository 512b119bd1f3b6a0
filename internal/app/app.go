package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"booking-portal/internal/gcal"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// App holds the injected collaborators every handler works against.
type App struct {
	Bookings   BookingStore
	Services   ServiceStore
	Health     Pinger
	Reconciler *Reconciler
	Verifier   *SignatureVerifier
	Sessions   SessionConfig
	Calendar   *gcal.Client
	Logger     *slog.Logger
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Router builds the engine with every route of the portal.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(a.logger()))
	router.SetHTMLTemplate(dashboardTemplate)

	// OAuth2 callback (must stay outside the protected prefixes)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	router.Use(SessionAuth(a.Sessions))

	api := router.Group("/api")
	{
		api.GET("/auth/session", SessionHandler)

		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/booking-cancelled", a.BookingCancelledHandler)
			webhooks.POST("/booking-rescheduled", a.BookingRescheduledHandler)
			webhooks.POST("/calendly", a.CalendlyWebhookHandler)
		}
	}

	dashboard := router.Group("/dashboard")
	{
		dashboard.GET("", a.DashboardPageHandler)
		dashboard.GET("/bookings", a.ListMyBookingsHandler)
		dashboard.GET("/bookings.ics", a.BookingsFeedHandler)
	}

	portal := router.Group("/portal")
	{
		calendar := portal.Group("/calendar")
		{
			calendar.GET("/auth", a.GoogleAuthHandler)
			calendar.GET("/events", a.GetGoogleCalendarEvents)
			calendar.GET("/calendars", a.GetGoogleCalendarList)
		}
	}

	admin := router.Group("/admin")
	{
		admin.GET("/services", a.ListServicesHandler)
		admin.POST("/services", RequireRole(RoleAdmin, RoleService), a.CreateServiceHandler)
		admin.GET("/health", a.HealthHandler)
	}

	return router
}

// RequestLogger logs one line per request with a request id.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)
		c.Next()
		logger.Info("request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}
