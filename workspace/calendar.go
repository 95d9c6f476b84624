// Package workspace holds the thin REST calls the assistant makes against
// Google Workspace through an authenticated handle. Payloads are kept
// minimal; the point of these calls is exercising the credential
// machinery, not mirroring the full APIs.
package workspace

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dottie-ai/assistant-server/googleauth"
)

const (
	defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"
	defaultGmailBaseURL    = "https://gmail.googleapis.com/gmail/v1"

	maxEventResults = 50
)

type Service struct {
	calendarBaseURL string
	gmailBaseURL    string
	nowTime         func() time.Time
}

type ServiceOption func(*Service)

// WithBaseURLs overrides the provider endpoints (for testing).
func WithBaseURLs(calendarBaseURL, gmailBaseURL string) ServiceOption {
	return func(s *Service) {
		s.calendarBaseURL = calendarBaseURL
		s.gmailBaseURL = gmailBaseURL
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(options ...ServiceOption) *Service {
	s := &Service{
		calendarBaseURL: defaultCalendarBaseURL,
		gmailBaseURL:    defaultGmailBaseURL,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Event is one calendar entry, reduced to what the assistant surfaces.
type Event struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Location string `json:"location,omitempty"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

func (t eventTime) value() string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

// ListEvents returns upcoming events from the caller's primary calendar.
func (s *Service) ListEvents(ctx context.Context, client *googleauth.Client, maxResults int) ([]Event, error) {
	if maxResults <= 0 || maxResults > maxEventResults {
		maxResults = maxEventResults
	}

	query := url.Values{
		"maxResults":   {strconv.Itoa(maxResults)},
		"timeMin":      {s.nowTime().Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
	}
	endpoint := fmt.Sprintf("%s/calendars/primary/events?%s", s.calendarBaseURL, query.Encode())

	var resp struct {
		Items []struct {
			ID       string    `json:"id"`
			Summary  string    `json:"summary"`
			Location string    `json:"location"`
			Start    eventTime `json:"start"`
			End      eventTime `json:"end"`
		} `json:"items"`
	}
	if err := client.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, Event{
			ID:       item.ID,
			Summary:  item.Summary,
			Location: item.Location,
			Start:    item.Start.value(),
			End:      item.End.value(),
		})
	}
	return events, nil
}
