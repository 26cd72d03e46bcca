package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGoogleBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenSource supplies a bearer token for Calendar API calls. Token
// acquisition and refresh live outside this process.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource backed by a fixed access token.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", fmt.Errorf("empty access token")
	}
	return string(t), nil
}

// GoogleStore is a calendar Store backed by the Google Calendar v3 REST API.
// The entry annotation maps to the event description field.
type GoogleStore struct {
	baseURL    string
	tokens     TokenSource
	timezone   string
	httpClient *http.Client
}

// NewGoogleStore creates a store client. baseURL may be empty to use the
// public API endpoint. timezone is attached to written event times.
func NewGoogleStore(baseURL string, tokens TokenSource, timezone string, timeout time.Duration) *GoogleStore {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &GoogleStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokens:   tokens,
		timezone: timezone,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// googleEventTime is the wire shape of an event boundary: a dateTime for
// timed events, or a date for all-day events.
type googleEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleEvent struct {
	ID          string           `json:"id,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Description string           `json:"description,omitempty"`
	Status      string           `json:"status,omitempty"`
	Start       *googleEventTime `json:"start,omitempty"`
	End         *googleEventTime `json:"end,omitempty"`
}

type googleEventList struct {
	Items []googleEvent `json:"items"`
}

// ListEntries returns up to MaxListResults entries, optionally bounded by
// timeMin.
func (s *GoogleStore) ListEntries(ctx context.Context, calendarID string, timeMin time.Time) ([]Entry, error) {
	q := url.Values{}
	q.Set("maxResults", fmt.Sprintf("%d", MaxListResults))
	q.Set("singleEvents", "true")
	if !timeMin.IsZero() {
		q.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	}

	path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(calendarID), q.Encode())

	var list googleEventList
	if err := s.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(list.Items))
	for _, ev := range list.Items {
		if ev.Status == "cancelled" {
			continue
		}
		entries = append(entries, s.toEntry(ev))
	}
	return entries, nil
}

// CreateEntry inserts a new event and returns the entry with the
// store-assigned id.
func (s *GoogleStore) CreateEntry(ctx context.Context, calendarID string, entry Entry) (Entry, error) {
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(calendarID))

	var created googleEvent
	if err := s.do(ctx, http.MethodPost, path, s.toEvent(entry), &created); err != nil {
		return Entry{}, err
	}
	return s.toEntry(created), nil
}

// UpdateEntry rewrites an event in place.
func (s *GoogleStore) UpdateEntry(ctx context.Context, calendarID, id string, entry Entry) (Entry, error) {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(id))

	var updated googleEvent
	if err := s.do(ctx, http.MethodPut, path, s.toEvent(entry), &updated); err != nil {
		return Entry{}, err
	}
	return s.toEntry(updated), nil
}

// DeleteEntry removes an event by id.
func (s *GoogleStore) DeleteEntry(ctx context.Context, calendarID, id string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(id))
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

// toEntry normalizes a wire event into an Entry. Date-only (all-day) and
// absent boundaries both normalize to nil so that nothing downstream has to
// branch on the wire shape.
func (s *GoogleStore) toEntry(ev googleEvent) Entry {
	return Entry{
		ID:         ev.ID,
		Title:      ev.Summary,
		Start:      parseEventTime(ev.Start),
		End:        parseEventTime(ev.End),
		Annotation: ev.Description,
	}
}

// toEvent renders an Entry as a wire event for writes.
func (s *GoogleStore) toEvent(entry Entry) googleEvent {
	ev := googleEvent{
		Summary:     entry.Title,
		Description: entry.Annotation,
	}
	if entry.Start != nil {
		ev.Start = &googleEventTime{DateTime: entry.Start.Format(time.RFC3339), TimeZone: s.timezone}
	}
	if entry.End != nil {
		ev.End = &googleEventTime{DateTime: entry.End.Format(time.RFC3339), TimeZone: s.timezone}
	}
	return ev
}

func parseEventTime(t *googleEventTime) *time.Time {
	if t == nil || t.DateTime == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, t.DateTime)
	if err != nil {
		return nil
	}
	return &parsed
}

// do executes an authenticated API call, decoding the response into out
// when out is non-nil.
func (s *GoogleStore) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	token, err := s.tokens.Token()
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("calendar API error (status %d): %s", resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
