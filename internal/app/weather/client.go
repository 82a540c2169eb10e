package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Info is the slice of a weather report attached to tasks and returned by
// the weather endpoints.
type Info struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// ForecastEntry is one 3-hour forecast slot.
type ForecastEntry struct {
	At          time.Time `json:"at"`
	Temperature float64   `json:"temperature"`
	Condition   string    `json:"condition"`
	Icon        string    `json:"icon"`
}

type cacheEntry struct {
	info      *Info
	expiresAt time.Time
}

// Client fetches current conditions from OpenWeatherMap. Lookups are
// memoized per location for a short TTL; a missing API key disables the
// client entirely.
type Client struct {
	APIKey     string
	BaseURL    string
	Units      string
	HTTPClient *http.Client
	TTL        time.Duration
	Now        func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    defaultBaseURL,
		Units:      "metric",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		TTL:        10 * time.Minute,
		Now:        func() time.Time { return time.Now().UTC() },
		cache:      map[string]cacheEntry{},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.APIKey != ""
}

type owmResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type owmForecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main string `json:"main"`
			Icon string `json:"icon"`
		} `json:"weather"`
	} `json:"list"`
}

// Current returns conditions for a location, or nil when the client is
// disabled, the location is empty, or the lookup fails. Callers treat
// weather as decoration and never fail a write over it.
func (c *Client) Current(ctx context.Context, location string) *Info {
	location = strings.TrimSpace(location)
	if !c.Enabled() || location == "" {
		return nil
	}

	key := strings.ToLower(location)
	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && c.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.info
	}
	c.mu.Unlock()

	info, err := c.fetchCurrent(ctx, location)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	c.cache[key] = cacheEntry{info: info, expiresAt: c.Now().Add(c.TTL)}
	c.mu.Unlock()
	return info
}

func (c *Client) fetchCurrent(ctx context.Context, location string) (*Info, error) {
	data, err := c.get(ctx, "/weather", location)
	if err != nil {
		return nil, err
	}
	var raw owmResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal weather: %w", err)
	}

	info := &Info{
		Location:    raw.Name,
		Temperature: raw.Main.Temp,
		FeelsLike:   raw.Main.FeelsLike,
		Humidity:    raw.Main.Humidity,
		WindSpeed:   raw.Wind.Speed,
	}
	if info.Location == "" {
		info.Location = location
	}
	if len(raw.Weather) > 0 {
		info.Condition = raw.Weather[0].Main
		info.Description = raw.Weather[0].Description
		info.Icon = raw.Weather[0].Icon
	}
	return info, nil
}

// Forecast returns upcoming 3-hour slots, at most limit entries. Failures
// degrade to an empty slice.
func (c *Client) Forecast(ctx context.Context, location string, limit int) []ForecastEntry {
	location = strings.TrimSpace(location)
	if !c.Enabled() || location == "" {
		return nil
	}
	data, err := c.get(ctx, "/forecast", location)
	if err != nil {
		return nil
	}
	var raw owmForecastResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	entries := make([]ForecastEntry, 0, limit)
	for _, slot := range raw.List {
		if limit > 0 && len(entries) >= limit {
			break
		}
		entry := ForecastEntry{
			At:          time.Unix(slot.Dt, 0).UTC(),
			Temperature: slot.Main.Temp,
		}
		if len(slot.Weather) > 0 {
			entry.Condition = slot.Weather[0].Main
			entry.Icon = slot.Weather[0].Icon
		}
		entries = append(entries, entry)
	}
	return entries
}

func (c *Client) get(ctx context.Context, path, location string) ([]byte, error) {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.APIKey)
	q.Set("units", c.Units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("weather API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
