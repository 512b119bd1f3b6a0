package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var ErrNotConfigured = errors.New("google calendar not configured")

// Client connects a portal user's Google Calendar.
type Client struct {
	Config *oauth2.Config
}

// Event is the portal's view of a Google Calendar event.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Creator     string    `json:"creator,omitempty"`
}

type CalendarInfo struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary"`
	AccessRole  string `json:"access_role"`
}

// New returns nil when any of the OAuth2 settings is missing.
func New(clientID, clientSecret, redirectURL string) *Client {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	return &Client{Config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}}
}

func (c *Client) AuthURL(state string) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}
	return c.Config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}
	return c.Config.Exchange(ctx, code)
}

// DecodeToken parses the JSON form of an oauth2 token, as handed back by the callback.
func DecodeToken(s string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(s), &token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	return &token, nil
}

func (c *Client) service(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(c.Config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

// Events lists single events ordered by start time. timeMin/timeMax are RFC3339 and optional.
func (c *Client) Events(ctx context.Context, token *oauth2.Token, calendarID, timeMin, timeMax string) ([]Event, error) {
	srv, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	call := srv.Events.List(calendarID).
		Context(ctx).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)
	if timeMin != "" {
		call = call.TimeMin(timeMin)
	}
	if timeMax != "" {
		call = call.TimeMax(timeMax)
	}
	events, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("retrieve events: %w", err)
	}

	out := make([]Event, 0, len(events.Items))
	for _, item := range events.Items {
		out = append(out, ConvertEvent(item))
	}
	return out, nil
}

func (c *Client) Calendars(ctx context.Context, token *oauth2.Token) ([]CalendarInfo, error) {
	srv, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}
	list, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("retrieve calendars: %w", err)
	}
	out := make([]CalendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, CalendarInfo{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Primary:     item.Primary,
			AccessRole:  item.AccessRole,
		})
	}
	return out, nil
}

// ConvertEvent maps an API event; all-day events carry midnight UTC times.
func ConvertEvent(item *calendar.Event) Event {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
	}
	if item.Creator != nil {
		ev.Creator = item.Creator.Email
	}
	ev.StartTime = eventTime(item.Start)
	ev.EndTime = eventTime(item.End)
	return ev
}

func eventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	} else if dt.Date != "" {
		if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
