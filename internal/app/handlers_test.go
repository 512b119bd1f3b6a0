package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func postJSON(t *testing.T, h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestBookingCancelledEndpoint(t *testing.T) {
	store := &memStore{bookings: []Booking{seedBooking()}}
	router := newTestApp(store, &recordingPublisher{}).Router()

	w := postJSON(t, router, "/api/webhooks/booking-cancelled", `{"payload":{"id":"evt_123"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["updated"]; got != float64(1) {
		t.Errorf("expected updated=1, got %v", got)
	}
	if store.get("b1").Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", store.get("b1").Status)
	}

	// unknown ids are acknowledged with zero updates
	w = postJSON(t, router, "/api/webhooks/booking-cancelled", `{"payload":{"id":"evt_nope"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decodeBody(t, w)["updated"]; got != float64(0) {
		t.Errorf("expected updated=0, got %v", got)
	}
}

func TestBookingRescheduledEndpoint(t *testing.T) {
	store := &memStore{bookings: []Booking{seedBooking()}}
	router := newTestApp(store, &recordingPublisher{}).Router()

	body := `{"payload":{"id":"evt_123","startTime":"2024-05-01T10:00:00Z","timeZone":"UTC"}}`
	w := postJSON(t, router, "/api/webhooks/booking-rescheduled", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := store.get("b1")
	if !got.ScheduledAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) || got.Timezone != "UTC" || got.Status != StatusConfirmed {
		t.Errorf("unexpected booking %+v", got)
	}
}

func TestBookingRescheduledWithoutTimeZone(t *testing.T) {
	store := &memStore{bookings: []Booking{seedBooking()}}
	router := newTestApp(store, &recordingPublisher{}).Router()

	w := postJSON(t, router, "/api/webhooks/booking-rescheduled", `{"payload":{"id":"evt_123","startTime":"2024-05-01T10:00:00Z"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := store.get("b1")
	if !got.ScheduledAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) || got.Status != StatusConfirmed {
		t.Errorf("unexpected booking %+v", got)
	}
	if got.Timezone != "Europe/London" {
		t.Errorf("expected stored timezone kept, got %q", got.Timezone)
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	store := &memStore{bookings: []Booking{seedBooking()}}
	router := newTestApp(store, &recordingPublisher{}).Router()

	body := `{"payload":{"id":"evt_123","pad":"` + strings.Repeat("x", maxWebhookBody) + `"}}`
	for _, path := range []string{"/api/webhooks/booking-cancelled", "/api/webhooks/calendly"} {
		w := postJSON(t, router, path, body, nil)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("%s: expected 413, got %d", path, w.Code)
		}
	}
	if store.get("b1").Status != StatusConfirmed {
		t.Error("oversized webhook modified the store")
	}
}

func TestWebhookRejectsBadPayloadWithoutWriting(t *testing.T) {
	store := &memStore{bookings: []Booking{seedBooking()}}
	router := newTestApp(store, &recordingPublisher{}).Router()
	before := store.get("b1")

	tests := []struct {
		path string
		body string
	}{
		{"/api/webhooks/booking-cancelled", `{"payload":"evt_123"}`},
		{"/api/webhooks/booking-cancelled", `{}`},
		{"/api/webhooks/booking-rescheduled", `{"payload":{"id":"evt_123","startTime":"not-a-date","timeZone":"UTC"}}`},
	}
	for _, tt := range tests {
		w := postJSON(t, router, tt.path, tt.body, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", tt.path, tt.body, w.Code)
		}
	}
	if store.get("b1") != before {
		t.Errorf("rejected payloads modified the store: %+v", store.get("b1"))
	}
}

func TestWebhookStoreFailure(t *testing.T) {
	store := &memStore{bookings: []Booking{seedBooking()}, err: errStoreDown}
	router := newTestApp(store, &recordingPublisher{}).Router()

	w := postJSON(t, router, "/api/webhooks/booking-cancelled", `{"payload":{"id":"evt_123"}}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), errStoreDown.Error()) {
		t.Error("store error details leaked to the caller")
	}
}

func TestWebhookSignature(t *testing.T) {
	store := &memStore{bookings: []Booking{seedBooking()}}
	a := newTestApp(store, &recordingPublisher{})
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a.Verifier = NewSignatureVerifier("signing-key", 3*time.Minute)
	a.Verifier.Now = func() time.Time { return now }
	router := a.Router()
	body := `{"payload":{"id":"evt_123"}}`

	w := postJSON(t, router, "/api/webhooks/booking-cancelled", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unsigned: expected 401, got %d", w.Code)
	}

	forged := (&SignatureVerifier{Key: "other-key"}).SignatureFor(now, []byte(body))
	w = postJSON(t, router, "/api/webhooks/booking-cancelled", body, map[string]string{SignatureHeader: forged})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("forged: expected 401, got %d", w.Code)
	}
	if store.get("b1").Status != StatusConfirmed {
		t.Fatal("rejected webhook modified the store")
	}

	sig := a.Verifier.SignatureFor(now, []byte(body))
	w = postJSON(t, router, "/api/webhooks/booking-cancelled", body, map[string]string{SignatureHeader: sig})
	if w.Code != http.StatusOK {
		t.Fatalf("signed: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if store.get("b1").Status != StatusCancelled {
		t.Error("expected booking cancelled")
	}
}

func TestCalendlyDispatch(t *testing.T) {
	store := &memStore{bookings: []Booking{seedBooking()}}
	router := newTestApp(store, &recordingPublisher{}).Router()

	ignored := []string{
		`{"event":"invitee.created","payload":{"id":"evt_123"}}`,
		`{"event":"invitee.created","payload":{"uri":"https://api.calendly.com/scheduled_events/abc"}}`,
		`{"event":"ping"}`,
	}
	for _, body := range ignored {
		w := postJSON(t, router, "/api/webhooks/calendly", body, nil)
		if w.Code != http.StatusAccepted {
			t.Errorf("%s: expected 202, got %d: %s", body, w.Code, w.Body.String())
		}
	}
	if store.get("b1") != seedBooking() {
		t.Error("ignored event modified the store")
	}

	// handled events still require payload.id
	w := postJSON(t, router, "/api/webhooks/calendly", `{"event":"invitee.canceled","payload":{}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("canceled without id: expected 400, got %d", w.Code)
	}

	w = postJSON(t, router, "/api/webhooks/calendly", `{"event":"invitee.canceled","payload":{"id":"evt_123"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("canceled: expected 200, got %d", w.Code)
	}
	if store.get("b1").Status != StatusCancelled {
		t.Error("expected booking cancelled")
	}

	body := `{"event":"invitee.rescheduled","payload":{"id":"evt_123","startTime":"2024-06-01T08:30:00Z","timeZone":"UTC"}}`
	w = postJSON(t, router, "/api/webhooks/calendly", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rescheduled: expected 200, got %d", w.Code)
	}
	if store.get("b1").Status != StatusConfirmed {
		t.Error("expected booking confirmed again")
	}
}

func TestAdminServices(t *testing.T) {
	store := &memStore{services: []Service{{ID: "svc-1", Name: "Coaching", DurationMinutes: 60, Active: true}}}
	router := newTestApp(store, &recordingPublisher{}).Router()
	adminTok := mustToken(t, User{ID: "admin-1", Role: RoleAdmin})
	clientTok := mustToken(t, User{ID: "client-1", Role: RoleClient})

	req := httptest.NewRequest(http.MethodGet, "/admin/services", nil)
	req.Header.Set("Authorization", "Bearer "+clientTok)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	var services []Service
	if err := json.Unmarshal(w.Body.Bytes(), &services); err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 || services[0].Name != "Coaching" {
		t.Errorf("unexpected services %+v", services)
	}

	body := `{"name":"Review","duration_minutes":30,"price_cents":5000,"active":true}`
	w = postJSON(t, router, "/admin/services", body, map[string]string{"Authorization": "Bearer " + clientTok})
	if w.Code != http.StatusForbidden {
		t.Errorf("client create: expected 403, got %d", w.Code)
	}

	w = postJSON(t, router, "/admin/services", body, map[string]string{"Authorization": "Bearer " + adminTok})
	if w.Code != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["id"]; got != "svc-Review" {
		t.Errorf("unexpected id %v", got)
	}

	// active defaults to true unless the body says otherwise
	w = postJSON(t, router, "/admin/services", `{"name":"Intro","duration_minutes":15}`, map[string]string{"Authorization": "Bearer " + adminTok})
	if w.Code != http.StatusCreated {
		t.Fatalf("create without active: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["active"]; got != true {
		t.Errorf("expected active=true by default, got %v", got)
	}
	w = postJSON(t, router, "/admin/services", `{"name":"Retired","duration_minutes":15,"active":false}`, map[string]string{"Authorization": "Bearer " + adminTok})
	if w.Code != http.StatusCreated {
		t.Fatalf("create inactive: expected 201, got %d", w.Code)
	}
	if got := decodeBody(t, w)["active"]; got != false {
		t.Errorf("expected active=false, got %v", got)
	}

	w = postJSON(t, router, "/admin/services", `{"name":"Bad","duration_minutes":0}`, map[string]string{"Authorization": "Bearer " + adminTok})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid create: expected 400, got %d", w.Code)
	}
}

func TestAdminHealth(t *testing.T) {
	store := &memStore{}
	a := newTestApp(store, &recordingPublisher{})
	router := a.Router()

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	req.Header.Set("Authorization", "Bearer svc-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	store.err = errStoreDown
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestPortalCalendarNotConfigured(t *testing.T) {
	router := newTestApp(&memStore{}, &recordingPublisher{}).Router()
	req := httptest.NewRequest(http.MethodGet, "/portal/calendar/auth", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, User{ID: "client-1", Role: RoleClient}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
