package app

import (
	"html/template"
	"net/http"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gin-gonic/gin"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head><title>My bookings</title></head>
<body>
<h1>Welcome{{with .User.Name}}, {{.}}{{end}}</h1>
{{if .Bookings}}
<table>
<tr><th>When</th><th>Timezone</th><th>Status</th></tr>
{{range .Bookings}}<tr><td>{{.LocalTime.Format "Mon 02 Jan 2006 15:04"}}</td><td>{{.Timezone}}</td><td>{{.Status}}</td></tr>
{{end}}</table>
<p><a href="/dashboard/bookings.ics">Subscribe to calendar</a></p>
{{else}}
<p>No bookings yet.</p>
{{end}}
</body>
</html>`))

type dashboardView struct {
	User     User
	Bookings []Booking
}

func (a *App) myBookings(c *gin.Context) (*Session, []Booking, bool) {
	s, ok := SessionFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return nil, nil, false
	}
	bookings, err := a.Bookings.ListByClient(c.Request.Context(), s.User.ID)
	if err != nil {
		a.logger().Error("list bookings", "client_id", s.User.ID, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return s, bookings, true
}

// GET /dashboard
func (a *App) DashboardPageHandler(c *gin.Context) {
	s, bookings, ok := a.myBookings(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "dashboard", dashboardView{User: s.User, Bookings: bookings})
}

// GET /dashboard/bookings
func (a *App) ListMyBookingsHandler(c *gin.Context) {
	_, bookings, ok := a.myBookings(c)
	if !ok {
		return
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	c.JSON(http.StatusOK, bookings)
}

// GET /dashboard/bookings.ics
func (a *App) BookingsFeedHandler(c *gin.Context) {
	_, bookings, ok := a.myBookings(c)
	if !ok {
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(BookingsCalendar(bookings, time.Now().UTC())))
}

// BookingsCalendar serializes confirmed bookings as an iCalendar document.
// Bookings without a known service length are given one hour.
func BookingsCalendar(bookings []Booking, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//booking-portal//bookings//EN")
	for _, b := range bookings {
		if b.Status != StatusConfirmed {
			continue
		}
		length := time.Duration(b.DurationMinutes) * time.Minute
		if length <= 0 {
			length = time.Hour
		}
		ev := cal.AddEvent(b.ID + "@booking-portal")
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(b.ScheduledAt.UTC())
		ev.SetEndAt(b.ScheduledAt.UTC().Add(length))
		ev.SetSummary("Booking")
		ev.SetStatus(ics.ObjectStatusConfirmed)
	}
	return cal.Serialize()
}
