package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "schedex/internal/log"
)

// HTTPClient talks to a portal gateway service over JSON/HTTP. The gateway
// owns the actual portal protocol (login flow, captcha, scraping) and hands
// back an opaque state blob that we thread through subsequent calls.
type HTTPClient struct {
	base   string
	client *http.Client
	state  State
}

// NewHTTPFactory returns a Factory producing gateway clients for baseURL.
func NewHTTPFactory(baseURL string) Factory {
	return func() Client {
		return &HTTPClient{
			base: baseURL,
			client: &http.Client{
				Timeout: 15 * time.Second,
			},
		}
	}
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) error {
	var resp struct {
		State State `json:"state"`
	}
	err := c.post(ctx, "/login", map[string]any{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}
	c.state = resp.State
	return nil
}

func (c *HTTPClient) Dump() (State, error) {
	if c.state == nil {
		return nil, errors.New("portal: no state to dump")
	}
	return c.state, nil
}

func (c *HTTPClient) Restore(state State) error {
	if len(state) == 0 {
		return errors.New("portal: empty state")
	}
	c.state = state
	return nil
}

func (c *HTTPClient) StudentID(ctx context.Context) (int, error) {
	var resp struct {
		StudentID int `json:"student_id"`
	}
	err := c.post(ctx, "/student_id", map[string]any{"state": c.state}, &resp)
	return resp.StudentID, err
}

func (c *HTTPClient) Schedule(ctx context.Context, year, term int) ([]RawClass, error) {
	var resp struct {
		Classes []RawClass `json:"classes"`
	}
	err := c.post(ctx, "/schedule", map[string]any{
		"state": c.state,
		"year":  year,
		"term":  term,
	}, &resp)
	return resp.Classes, err
}

func (c *HTTPClient) TermStart(ctx context.Context) (time.Time, error) {
	var resp struct {
		TermStart string `json:"term_start"`
	}
	if err := c.post(ctx, "/term_start", map[string]any{"state": c.state}, &resp); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse("2006-01-02", resp.TermStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("portal: bad term_start %q: %w", resp.TermStart, err)
	}
	return t, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.post(ctx, "/logout", map[string]any{"state": c.state}, nil)
}

// post sends a JSON body and decodes the JSON response into out (if
// non-nil). Gateway 401/403 map onto the portal error taxonomy.
func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		appLog.Error("portal gateway request failed", err, "path", path)
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrAuth
	case resp.StatusCode == http.StatusForbidden:
		return ErrSessionExpired
	case resp.StatusCode != http.StatusOK:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("portal: gateway %s: %s: %s", path, resp.Status, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("portal: decode %s response: %w", path, err)
	}
	return nil
}
