package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// BookingStore is the persistence the webhook handlers and the dashboard need.
type BookingStore interface {
	CancelByEventID(ctx context.Context, calendlyEventID string) (int64, error)
	RescheduleByEventID(ctx context.Context, calendlyEventID string, scheduledAt time.Time, timezone string) (int64, error)
	ListByClient(ctx context.Context, clientID string) ([]Booking, error)
}

type ServiceStore interface {
	ListServices(ctx context.Context) ([]Service, error)
	CreateService(ctx context.Context, s *Service) error
}

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type PGStore struct {
	DB DB
}

func NewPGStore(db DB) *PGStore {
	return &PGStore{DB: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS services (
	id               UUID PRIMARY KEY,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
	price_cents      BIGINT NOT NULL DEFAULT 0 CHECK (price_cents >= 0),
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookings (
	id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	client_id         TEXT NOT NULL,
	calendly_event_id TEXT NOT NULL,
	service_id        UUID REFERENCES services(id),
	status            TEXT NOT NULL DEFAULT 'CONFIRMED'
	                  CHECK (status IN ('PENDING', 'CONFIRMED', 'CANCELLED')),
	scheduled_at      TIMESTAMPTZ NOT NULL,
	timezone          TEXT NOT NULL DEFAULT 'UTC',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS bookings_calendly_event_id_idx ON bookings (calendly_event_id);
CREATE INDEX IF NOT EXISTS bookings_client_id_idx ON bookings (client_id, scheduled_at);
`

func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

// CancelByEventID marks every booking correlated to the external event as cancelled.
// Matching zero rows is not an error.
func (s *PGStore) CancelByEventID(ctx context.Context, calendlyEventID string) (int64, error) {
	q := `UPDATE bookings SET status=$1, updated_at=$2 WHERE calendly_event_id=$3`
	res, err := s.DB.Exec(ctx, q, string(StatusCancelled), time.Now().UTC(), calendlyEventID)
	if err != nil {
		return 0, fmt.Errorf("cancel bookings for %s: %w", calendlyEventID, err)
	}
	return res.RowsAffected(), nil
}

// RescheduleByEventID keeps the stored timezone when timezone is empty.
func (s *PGStore) RescheduleByEventID(ctx context.Context, calendlyEventID string, scheduledAt time.Time, timezone string) (int64, error) {
	q := `UPDATE bookings
          SET scheduled_at=$1, timezone=COALESCE(NULLIF($2, ''), timezone), status=$3, updated_at=$4
          WHERE calendly_event_id=$5`
	res, err := s.DB.Exec(ctx, q, scheduledAt.UTC(), timezone, string(StatusConfirmed), time.Now().UTC(), calendlyEventID)
	if err != nil {
		return 0, fmt.Errorf("reschedule bookings for %s: %w", calendlyEventID, err)
	}
	return res.RowsAffected(), nil
}

func (s *PGStore) ListByClient(ctx context.Context, clientID string) ([]Booking, error) {
	q := `SELECT b.id::text, b.client_id, b.calendly_event_id, COALESCE(b.service_id::text, ''),
	             COALESCE(s.duration_minutes, 0), b.status, b.scheduled_at, b.timezone,
	             b.created_at, b.updated_at
	      FROM bookings b LEFT JOIN services s ON s.id = b.service_id
	      WHERE b.client_id=$1 ORDER BY b.scheduled_at`
	rows, err := s.DB.Query(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var b Booking
		var status string
		if err := rows.Scan(&b.ID, &b.ClientID, &b.CalendlyEventID, &b.ServiceID, &b.DurationMinutes,
			&status, &b.ScheduledAt, &b.Timezone, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Status = BookingStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PGStore) ListServices(ctx context.Context) ([]Service, error) {
	q := `SELECT id::text, name, description, duration_minutes, price_cents, active, created_at
	      FROM services ORDER BY name`
	rows, err := s.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes,
			&svc.PriceCents, &svc.Active, &svc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *PGStore) CreateService(ctx context.Context, svc *Service) error {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	q := `INSERT INTO services (id, name, description, duration_minutes, price_cents, active, created_at)
          VALUES ($1,$2,$3,$4,$5,$6,now())
          RETURNING created_at`
	return s.DB.QueryRow(ctx, q, svc.ID, svc.Name, svc.Description, svc.DurationMinutes,
		svc.PriceCents, svc.Active).Scan(&svc.CreatedAt)
}
