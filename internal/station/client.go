package station

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client calls a station's admin API over HTTP. tetherctl is its main
// consumer; the server side lives in server.go.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient builds a client for the admin API at base. An empty token sends
// no Authorization header.
func NewClient(base string, timeout time.Duration, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx admin API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("admin api: %s (http %d)", e.Message, e.Status)
}

// Health is the GET /health response.
type Health struct {
	Status  string `json:"status"`
	Station string `json:"station"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// LinkInfo is the admin view of the link state machine.
type LinkInfo struct {
	State    string `json:"state"`
	Endpoint string `json:"endpoint"`
}

// SendReceipt acknowledges an accepted outbound message.
type SendReceipt struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// PingResult reports one round trip over the link.
type PingResult struct {
	RTTMillis float64 `json:"rtt_ms"`
}

func (c *Client) Health() (Health, error) {
	var out Health
	err := c.get("/health", &out)
	return out, err
}

func (c *Client) Link() (LinkInfo, error) {
	var out LinkInfo
	err := c.get("/v1/link", &out)
	return out, err
}

func (c *Client) Connect(endpoint string, secure bool) (LinkInfo, error) {
	in := map[string]any{"endpoint": endpoint, "secure": secure}
	var out LinkInfo
	err := c.post("/v1/link/connect", in, &out)
	return out, err
}

func (c *Client) Listen(secure bool) (LinkInfo, error) {
	in := map[string]any{"secure": secure}
	var out LinkInfo
	err := c.post("/v1/link/listen", in, &out)
	return out, err
}

func (c *Client) StopLink() (LinkInfo, error) {
	var out LinkInfo
	err := c.post("/v1/link/stop", nil, &out)
	return out, err
}

func (c *Client) SendText(text string) (SendReceipt, error) {
	in := map[string]any{"text": text}
	var out SendReceipt
	err := c.post("/v1/messages", in, &out)
	return out, err
}

func (c *Client) Messages(limit int) ([]Message, error) {
	path := "/v1/messages"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	err := c.get(path, &out)
	return out.Messages, err
}

func (c *Client) Ping() (PingResult, error) {
	var out PingResult
	err := c.post("/v1/ping", nil, &out)
	return out, err
}

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("admin api: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("admin api: encode request: %w", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, &body)
	if err != nil {
		return fmt.Errorf("admin api: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("admin api: decode response: %w", err)
	}
	return nil
}
