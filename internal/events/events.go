package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	TypeBookingCancelled   = "booking.cancelled"
	TypeBookingRescheduled = "booking.rescheduled"
)

// Event is the message published after a webhook changed local bookings.
type Event struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	OccurredAt      time.Time  `json:"occurred_at"`
	CalendlyEventID string     `json:"calendly_event_id"`
	Updated         int64      `json:"updated"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Timezone        string     `json:"timezone,omitempty"`
}

func NewEvent(typ, calendlyEventID string, updated int64) Event {
	return Event{
		ID:              uuid.NewString(),
		Type:            typ,
		OccurredAt:      time.Now().UTC(),
		CalendlyEventID: calendlyEventID,
		Updated:         updated,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type Config struct {
	Driver        string
	RabbitURL     string
	Exchange      string
	NATSURL       string
	SubjectPrefix string
}

// New builds the publisher for the configured driver. An empty driver or "none"
// yields a publisher that drops everything.
func New(cfg Config, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "rabbitmq":
		p, err := NewRabbitPublisher(cfg.RabbitURL, cfg.Exchange, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "nats":
		p, err := NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
