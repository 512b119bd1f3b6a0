package app

import "time"

type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
)

type Booking struct {
	ID              string        `json:"id"`
	ClientID        string        `json:"client_id"`
	CalendlyEventID string        `json:"calendly_event_id"`
	ServiceID       string        `json:"service_id,omitempty"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
	Status          BookingStatus `json:"status"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	Timezone        string        `json:"timezone"`
	CreatedAt       time.Time     `json:"created_at,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at,omitempty"`
}

// LocalTime renders ScheduledAt in the booking's own timezone, falling back to UTC.
func (b Booking) LocalTime() time.Time {
	if b.Timezone != "" {
		if loc, err := time.LoadLocation(b.Timezone); err == nil {
			return b.ScheduledAt.In(loc)
		}
	}
	return b.ScheduledAt.UTC()
}

type Service struct {
	ID              string    `json:"id"`
	Name            string    `json:"name" binding:"required"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,gt=0"`
	PriceCents      int64     `json:"price_cents" binding:"gte=0"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

const (
	RoleClient  = "client"
	RoleAdmin   = "admin"
	RoleService = "service"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// Session is what the route gate attaches to an authenticated request.
type Session struct {
	User    User      `json:"user"`
	Expires time.Time `json:"expires,omitempty"`
}
