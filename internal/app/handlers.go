package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps how much of an inbound webhook is read before verification.
const maxWebhookBody = 1 << 20

// readVerifiedBody returns the raw body after the signature check. It writes the
// error response itself and returns ok=false on failure.
func (a *App) readVerifiedBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if err := a.Verifier.Verify(c.GetHeader(SignatureHeader), body); err != nil {
		a.logger().Warn("webhook rejected", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return nil, false
	}
	return body, true
}

func (a *App) webhookError(c *gin.Context, err error) {
	if errors.Is(err, ErrInvalidPayload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.logger().Error("webhook failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// POST /api/webhooks/booking-cancelled
func (a *App) BookingCancelledHandler(c *gin.Context) {
	body, ok := a.readVerifiedBody(c)
	if !ok {
		return
	}
	a.handleCancelled(c, body)
}

// POST /api/webhooks/booking-rescheduled
func (a *App) BookingRescheduledHandler(c *gin.Context) {
	body, ok := a.readVerifiedBody(c)
	if !ok {
		return
	}
	a.handleRescheduled(c, body)
}

// POST /api/webhooks/calendly
// Dispatches on the envelope's "event" field; unknown events are acknowledged and ignored.
func (a *App) CalendlyWebhookHandler(c *gin.Context) {
	body, ok := a.readVerifiedBody(c)
	if !ok {
		return
	}
	event, err := EventName(body)
	if err != nil {
		a.webhookError(c, err)
		return
	}
	switch event {
	case EventInviteeCanceled:
		a.handleCancelled(c, body)
	case EventInviteeRescheduled:
		a.handleRescheduled(c, body)
	default:
		a.logger().Info("webhook event ignored", "event", event)
		c.JSON(http.StatusAccepted, gin.H{"ok": true, "ignored": event})
	}
}

func (a *App) handleCancelled(c *gin.Context, body []byte) {
	p, err := DecodeCancelled(body)
	if err != nil {
		a.webhookError(c, err)
		return
	}
	res, err := a.Reconciler.HandleBookingCancelled(c.Request.Context(), p)
	if err != nil {
		a.webhookError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "updated": res.Updated})
}

func (a *App) handleRescheduled(c *gin.Context, body []byte) {
	p, err := DecodeRescheduled(body)
	if err != nil {
		a.webhookError(c, err)
		return
	}
	res, err := a.Reconciler.HandleBookingRescheduled(c.Request.Context(), p)
	if err != nil {
		a.webhookError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "updated": res.Updated})
}

// GET /admin/services
func (a *App) ListServicesHandler(c *gin.Context) {
	services, err := a.Services.ListServices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if services == nil {
		services = []Service{}
	}
	c.JSON(http.StatusOK, services)
}

// POST /admin/services
// A body without "active" creates an active service.
func (a *App) CreateServiceHandler(c *gin.Context) {
	svc := Service{Active: true}
	if err := c.ShouldBindJSON(&svc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	svc.ID = ""
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	if err := a.Services.CreateService(c.Request.Context(), &svc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, svc)
}

// GET /admin/health
func (a *App) HealthHandler(c *gin.Context) {
	if a.Health != nil {
		if err := a.Health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
