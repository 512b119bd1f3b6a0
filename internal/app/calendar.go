package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"booking-portal/internal/gcal"
)

func (a *App) calendarOrAbort(c *gin.Context) bool {
	if a.Calendar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gcal.ErrNotConfigured.Error()})
		return false
	}
	return true
}

// GET /portal/calendar/auth
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if !a.calendarOrAbort(c) {
		return
	}
	userID := c.Query("user_id")
	if s, ok := SessionFromContext(c); ok {
		userID = s.User.ID
	}
	state := fmt.Sprintf("user_%s_%d", userID, time.Now().Unix())

	url, err := a.Calendar.AuthURL(state)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auth_url": url,
		"state":    state,
	})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if !a.calendarOrAbort(c) {
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}

	token, err := a.Calendar.Exchange(c.Request.Context(), code)
	if err != nil {
		a.logger().Warn("oauth2 exchange failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// the client keeps the token and sends it back in X-Google-Token
	c.JSON(http.StatusOK, gin.H{
		"message": "Authorization successful",
		"state":   c.Query("state"),
		"token":   string(tokenJSON),
	})
}

// googleToken reads the oauth2 token the client got back from the callback.
func googleToken(c *gin.Context) (*oauth2.Token, bool) {
	tokenStr := c.GetHeader("X-Google-Token")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Google token required in X-Google-Token header"})
		return nil, false
	}
	token, err := gcal.DecodeToken(tokenStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token format"})
		return nil, false
	}
	return token, true
}

// GET /portal/calendar/events?calendar_id=&time_min=&time_max=
func (a *App) GetGoogleCalendarEvents(c *gin.Context) {
	if !a.calendarOrAbort(c) {
		return
	}
	token, ok := googleToken(c)
	if !ok {
		return
	}

	events, err := a.Calendar.Events(c.Request.Context(), token,
		c.DefaultQuery("calendar_id", "primary"), c.Query("time_min"), c.Query("time_max"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GET /portal/calendar/calendars
func (a *App) GetGoogleCalendarList(c *gin.Context) {
	if !a.calendarOrAbort(c) {
		return
	}
	token, ok := googleToken(c)
	if !ok {
		return
	}

	calendars, err := a.Calendar.Calendars(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"calendars": calendars,
		"count":     len(calendars),
	})
}
