// Package graph talks to Microsoft Graph: To Do tasks, calendar
// availability and change-notification subscriptions.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ShayCichocki/monica/internal/version"
	"github.com/ShayCichocki/monica/pkg/models"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is an authenticated Microsoft Graph HTTP client.
type Client struct {
	baseURL string
	user    string
	tokens  TokenSource
	http    *http.Client
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// User is "me" or a user ID.
	User   string
	Tokens TokenSource
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// NewClient creates a Graph client.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		user:    cfg.User,
		tokens:  cfg.Tokens,
		http:    cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.user == "" {
		c.user = "me"
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

// userPath returns the path prefix for the configured user.
func (c *Client) userPath() string {
	if c.user == "me" {
		return "/me"
	}
	return "/users/" + c.user
}

// graphError is the error envelope returned by Graph.
type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// StatusError is a non-2xx Graph response.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph: %d %s", e.Status, http.StatusText(e.Status))
}

// classifyStatus maps a failed response to the error taxonomy:
// 404 is not found; 408, 429 and 5xx are transient; other 4xx are permanent.
func classifyStatus(se *StatusError) error {
	switch {
	case se.Status == http.StatusNotFound:
		return fmt.Errorf("%w: %v", models.ErrNotFound, se)
	case se.Status == http.StatusRequestTimeout,
		se.Status == http.StatusTooManyRequests,
		se.Status >= 500:
		return models.Retryable(se)
	default:
		return fmt.Errorf("%w: %v", models.Failed(se.Message), se)
	}
}

// do sends a JSON request to path (relative to the base URL, or absolute
// for nextLink paging) and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any, headers ...string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
		headers = append([]string{"Content-Type", "application/json"}, headers...)
	}

	respBody, err := c.send(ctx, method, path, reader, headers...)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// send performs an authenticated request and returns the raw 2xx body.
// Headers are name/value pairs applied after the defaults.
func (c *Client) send(ctx context.Context, method, path string, reader io.Reader, headers ...string) ([]byte, error) {
	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	// Transport failures, timeouts included, are transient.
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, models.Retryable(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, path, models.Retryable(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Status: resp.StatusCode}
		var ge graphError
		if json.Unmarshal(respBody, &ge) == nil {
			se.Code = ge.Error.Code
			se.Message = ge.Error.Message
		}
		if se.Message == "" {
			se.Message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, classifyStatus(se))
	}
	return respBody, nil
}

// dateTimeTimeZone is Graph's zoned local time representation.
type dateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

const graphDateTimeLayout = "2006-01-02T15:04:05.0000000"

func newDateTimeTimeZone(t time.Time, loc *time.Location) *dateTimeTimeZone {
	return &dateTimeTimeZone{
		DateTime: t.In(loc).Format(graphDateTimeLayout),
		TimeZone: loc.String(),
	}
}

// Time parses the value, treating unknown zones as UTC.
func (d *dateTimeTimeZone) Time() (time.Time, error) {
	loc := time.UTC
	if d.TimeZone != "" {
		if l, err := time.LoadLocation(d.TimeZone); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.9999999", d.DateTime, loc)
	if err != nil {
		t, err = time.ParseInLocation("2006-01-02T15:04:05", d.DateTime, loc)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse graph time %q: %w", d.DateTime, err)
	}
	return t.UTC(), nil
}
