package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"booking-portal/internal/events"
)

var ErrInvalidPayload = errors.New("invalid webhook payload")

// PayloadError describes why an inbound webhook body was rejected.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid webhook payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid webhook payload: %s: %s", e.Field, e.Reason)
}

func (e *PayloadError) Is(target error) bool { return target == ErrInvalidPayload }

// Calendly event names accepted by the dispatching endpoint.
const (
	EventInviteeCanceled    = "invitee.canceled"
	EventInviteeRescheduled = "invitee.rescheduled"
)

type webhookEnvelope struct {
	Event   string          `json:"event,omitempty"`
	Payload *webhookPayload `json:"payload"`
}

type webhookPayload struct {
	ID        string `json:"id"`
	StartTime string `json:"startTime,omitempty"`
	TimeZone  string `json:"timeZone,omitempty"`
}

type CancelledPayload struct {
	CalendlyEventID string
}

type RescheduledPayload struct {
	CalendlyEventID string
	ScheduledAt     time.Time
	// Timezone is empty when the delivery did not carry one.
	Timezone string
}

func decodeEnvelope(body []byte) (webhookEnvelope, error) {
	var env webhookEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return env, &PayloadError{Reason: err.Error()}
	}
	if _, err := dec.Token(); err != io.EOF {
		return env, &PayloadError{Reason: "unexpected data after JSON body"}
	}
	if env.Payload == nil {
		return env, &PayloadError{Field: "payload", Reason: "required"}
	}
	if strings.TrimSpace(env.Payload.ID) == "" {
		return env, &PayloadError{Field: "payload.id", Reason: "required"}
	}
	return env, nil
}

// EventName reads only the envelope's "event" field, so deliveries for events the
// portal does not handle are recognised whatever their payload looks like.
func EventName(body []byte) (string, error) {
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return "", &PayloadError{Reason: err.Error()}
	}
	return head.Event, nil
}

func DecodeCancelled(body []byte) (CancelledPayload, error) {
	env, err := decodeEnvelope(body)
	if err != nil {
		return CancelledPayload{}, err
	}
	return CancelledPayload{CalendlyEventID: env.Payload.ID}, nil
}

func DecodeRescheduled(body []byte) (RescheduledPayload, error) {
	env, err := decodeEnvelope(body)
	if err != nil {
		return RescheduledPayload{}, err
	}
	p := env.Payload
	if p.StartTime == "" {
		return RescheduledPayload{}, &PayloadError{Field: "payload.startTime", Reason: "required"}
	}
	start, err := time.Parse(time.RFC3339, p.StartTime)
	if err != nil {
		return RescheduledPayload{}, &PayloadError{Field: "payload.startTime", Reason: "not an RFC3339 timestamp"}
	}
	// timeZone is optional; an absent one leaves the stored timezone as it is
	if p.TimeZone != "" {
		if _, err := time.LoadLocation(p.TimeZone); err != nil {
			return RescheduledPayload{}, &PayloadError{Field: "payload.timeZone", Reason: "unknown time zone"}
		}
	}
	return RescheduledPayload{
		CalendlyEventID: p.ID,
		ScheduledAt:     start.UTC(),
		Timezone:        p.TimeZone,
	}, nil
}

type Result struct {
	Updated int64 `json:"updated"`
}

// Reconciler applies scheduling-provider events to local bookings.
type Reconciler struct {
	Store     BookingStore
	Publisher events.Publisher
	Logger    *slog.Logger
}

func NewReconciler(store BookingStore, pub events.Publisher, logger *slog.Logger) *Reconciler {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{Store: store, Publisher: pub, Logger: logger}
}

// HandleBookingCancelled sets every booking correlated to the event to CANCELLED.
// Repeating it is harmless: the second call writes the same status again.
func (r *Reconciler) HandleBookingCancelled(ctx context.Context, p CancelledPayload) (Result, error) {
	n, err := r.Store.CancelByEventID(ctx, p.CalendlyEventID)
	if err != nil {
		return Result{}, err
	}
	r.Logger.Info("bookings cancelled", "calendly_event_id", p.CalendlyEventID, "updated", n)
	if n > 0 {
		r.publish(ctx, events.NewEvent(events.TypeBookingCancelled, p.CalendlyEventID, n))
	}
	return Result{Updated: n}, nil
}

// HandleBookingRescheduled moves correlated bookings to the new start time and
// marks them CONFIRMED. The timezone is replaced only when the payload has one.
func (r *Reconciler) HandleBookingRescheduled(ctx context.Context, p RescheduledPayload) (Result, error) {
	n, err := r.Store.RescheduleByEventID(ctx, p.CalendlyEventID, p.ScheduledAt, p.Timezone)
	if err != nil {
		return Result{}, err
	}
	r.Logger.Info("bookings rescheduled",
		"calendly_event_id", p.CalendlyEventID,
		"scheduled_at", p.ScheduledAt,
		"timezone", p.Timezone,
		"updated", n)
	if n > 0 {
		evt := events.NewEvent(events.TypeBookingRescheduled, p.CalendlyEventID, n)
		at := p.ScheduledAt
		evt.ScheduledAt = &at
		evt.Timezone = p.Timezone
		r.publish(ctx, evt)
	}
	return Result{Updated: n}, nil
}

// publish failures are logged only; the store is the source of truth.
func (r *Reconciler) publish(ctx context.Context, evt events.Event) {
	if err := r.Publisher.Publish(ctx, evt); err != nil {
		r.Logger.Error("publish booking event", "type", evt.Type, "calendly_event_id", evt.CalendlyEventID, "error", err)
	}
}
