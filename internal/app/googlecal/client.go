package googlecal

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

	"github.com/taskleaf/taskleaf/internal/calendar"
)

const calendarBaseURL = "https://www.googleapis.com/calendar/v3"

// Client is a thin Calendar v3 REST client scoped to the primary calendar.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL:    calendarBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type eventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type remoteEvent struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	Start       eventTime `json:"start,omitempty"`
	End         eventTime `json:"end,omitempty"`
}

type eventList struct {
	Items         []remoteEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
}

// EventInput describes a local event being pushed to the remote calendar.
type EventInput struct {
	Title       string
	Description string
	Date        calendar.Date
	Time        string
}

func (c *Client) doRequest(ctx context.Context, accessToken, method, path string, query url.Values, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: calendar API %d", ErrTokenRevoked, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("calendar API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// ListEvents fetches single-instance events in [from, to), paging as needed.
func (c *Client) ListEvents(ctx context.Context, accessToken string, from, to calendar.Date) ([]calendar.Event, error) {
	var events []calendar.Event
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("timeMin", from.Time().Format(time.RFC3339))
		q.Set("timeMax", to.Time().Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		q.Set("maxResults", "2500")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		data, err := c.doRequest(ctx, accessToken, http.MethodGet, "/calendars/primary/events", q, nil)
		if err != nil {
			return nil, err
		}
		var page eventList
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("unmarshal event list: %w", err)
		}
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, ok := toCalendarEvent(item)
			if !ok {
				continue
			}
			events = append(events, ev)
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// CreateEvent inserts an event and returns its remote identifier.
func (c *Client) CreateEvent(ctx context.Context, accessToken string, in EventInput) (string, error) {
	data, err := c.doRequest(ctx, accessToken, http.MethodPost, "/calendars/primary/events", nil, toRemoteEvent(in))
	if err != nil {
		return "", err
	}
	var created remoteEvent
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("unmarshal created event: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("calendar API returned no event id")
	}
	return created.ID, nil
}

func (c *Client) UpdateEvent(ctx context.Context, accessToken, remoteID string, in EventInput) error {
	_, err := c.doRequest(ctx, accessToken, http.MethodPut,
		"/calendars/primary/events/"+url.PathEscape(remoteID), nil, toRemoteEvent(in))
	return err
}

func (c *Client) DeleteEvent(ctx context.Context, accessToken, remoteID string) error {
	_, err := c.doRequest(ctx, accessToken, http.MethodDelete,
		"/calendars/primary/events/"+url.PathEscape(remoteID), nil, nil)
	if err != nil && strings.Contains(err.Error(), "calendar API error 410") {
		// Already gone remotely.
		return nil
	}
	return err
}

func toRemoteEvent(in EventInput) remoteEvent {
	ev := remoteEvent{
		Summary:     in.Title,
		Description: in.Description,
	}
	if in.Time == "" {
		ev.Start = eventTime{Date: in.Date.String()}
		ev.End = eventTime{Date: in.Date.AddDays(1).String()}
		return ev
	}
	start := timedStart(in.Date, in.Time)
	ev.Start = eventTime{DateTime: start.Format(time.RFC3339), TimeZone: "UTC"}
	ev.End = eventTime{DateTime: start.Add(time.Hour).Format(time.RFC3339), TimeZone: "UTC"}
	return ev
}

func timedStart(d calendar.Date, clock string) time.Time {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return d.Time()
	}
	return d.Time().Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

func toCalendarEvent(item remoteEvent) (calendar.Event, bool) {
	ev := calendar.Event{
		ID:       "remote-" + item.ID,
		Title:    item.Summary,
		Origin:   calendar.OriginGoogle,
		RemoteID: item.ID,
	}
	if ev.Title == "" {
		ev.Title = "(untitled)"
	}

	switch {
	case item.Start.Date != "":
		d, err := calendar.ParseDate(item.Start.Date)
		if err != nil {
			return calendar.Event{}, false
		}
		ev.Date = d
	case item.Start.DateTime != "":
		t, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return calendar.Event{}, false
		}
		t = t.UTC()
		ev.Date = calendar.DateOf(t)
		ev.Time = t.Format("15:04")
	default:
		return calendar.Event{}, false
	}
	return ev, true
}
