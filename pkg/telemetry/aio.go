package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// DefaultBaseURL is the Adafruit IO service.
const DefaultBaseURL = "https://io.adafruit.com"

// Feed describes an Adafruit IO feed.
type Feed struct {
	ID   int    `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Datum is a value stored in a feed.
type Datum struct {
	ID        string
	Value     string
	FeedKey   string
	CreatedAt time.Time
}

// UnmarshalJSON decodes a datum, accepting any ISO 8601 created_at.
func (d *Datum) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string `json:"id"`
		Value     string `json:"value"`
		FeedKey   string `json:"feed_key"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	d.ID, d.Value, d.FeedKey = raw.ID, raw.Value, raw.FeedKey
	d.CreatedAt = time.Time{}
	if raw.CreatedAt != "" {
		t, err := iso8601.ParseString(raw.CreatedAt)
		if err != nil {
			return fmt.Errorf("invalid created_at: %w", err)
		}
		d.CreatedAt = t
	}
	return nil
}

// AIO is an Adafruit IO REST client.
type AIO struct {
	baseURL  string
	username string
	key      string
	client   *http.Client
	log      *slog.Logger
}

// NewAIO creates a client for the given account. Each request is bounded by
// timeout.
func NewAIO(baseURL, username, key string, timeout time.Duration, logger *slog.Logger) *AIO {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AIO{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		key:      key,
		client:   &http.Client{Timeout: timeout},
		log:      logger.With("service", "aio"),
	}
}

// GetFeed returns the feed with the given key, creating it when it does not
// exist. A key of the form "group.feed" is created inside its group.
func (a *AIO) GetFeed(ctx context.Context, key string) (Feed, error) {
	var feed Feed
	err := a.do(ctx, http.MethodGet, a.path("feeds", key), nil, &feed)
	if err == nil {
		return feed, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Feed{}, err
	}

	a.log.Info("creating feed", "key", key)
	path := a.path("feeds")
	name := key
	if group, n, ok := strings.Cut(key, "."); ok {
		path = a.path("groups", group, "feeds")
		name = n
	}

	body := map[string]any{"feed": map[string]string{"name": name, "key": name}}
	if err := a.do(ctx, http.MethodPost, path, body, &feed); err != nil {
		return Feed{}, fmt.Errorf("failed to create feed %s: %w", key, err)
	}
	return feed, nil
}

// Send stores value in the feed and returns the stored datum.
func (a *AIO) Send(ctx context.Context, feedKey, value string, loc *Location) (Datum, error) {
	var d Datum
	if err := a.do(ctx, http.MethodPost, a.path("feeds", feedKey, "data"), newPayload(value, loc), &d); err != nil {
		return Datum{}, err
	}
	return d, nil
}

// SendData stores value in the feed.
func (a *AIO) SendData(ctx context.Context, feedKey, value string, loc *Location) error {
	d, err := a.Send(ctx, feedKey, value, loc)
	if err != nil {
		return err
	}
	a.log.Debug("sent", "feed", feedKey, "value", value, "id", d.ID, "created_at", d.CreatedAt)
	return nil
}

// ReceiveTime fetches the current time from the time integration.
func (a *AIO) ReceiveTime(ctx context.Context) (Time, error) {
	var t Time
	if err := a.do(ctx, http.MethodGet, a.path("integrations", "time", "struct.json"), nil, &t); err != nil {
		return Time{}, err
	}
	return t, nil
}

// CloseIdleConnections drops pooled connections so the next request dials
// afresh.
func (a *AIO) CloseIdleConnections() {
	a.client.CloseIdleConnections()
}

func (a *AIO) path(elems ...string) string {
	for i, e := range elems {
		elems[i] = url.PathEscape(e)
	}
	return "/api/v2/" + url.PathEscape(a.username) + "/" + strings.Join(elems, "/")
}

func (a *AIO) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-AIO-Key", a.key)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRetryable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s: %w", ErrRetryable, method, path, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s %s: %w", ErrRetryable, method, path, ErrThrottled)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s %s: unexpected status %s%s", ErrRetryable, method, path, resp.Status, errorMessage(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrRetryable, path, err)
	}
	return nil
}

// errorMessage extracts the service's error text from a failed response.
func errorMessage(r io.Reader) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&e); err != nil || e.Error == "" {
		return ""
	}
	return ": " + e.Error
}
