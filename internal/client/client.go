// Package client is a typed client for the gradilisce REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// FallbackMessage is shown when an error carries no usable text.
const FallbackMessage = "Something went wrong"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed: %d %s", e.Status, http.StatusText(e.Status))
}

// ErrorMessage turns any error into text for a person: the server's message,
// then the error's own text, then FallbackMessage.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return FallbackMessage
}

// Client talks to one gradilisce server.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates requests with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL, e.g. "https://site.example".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", nil, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	token := gjson.GetBytes(body, "token").String()
	if token == "" {
		return "", errors.New("login response has no token")
	}
	c.SetToken(token)
	return token, nil
}

// Logout revokes the current token.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if err == nil {
		c.SetToken("")
	}
	return err
}

// doJSON sends payload as JSON and returns the raw response body.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, query, body, "application/json")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}
	if gjson.ValidBytes(data) {
		apiErr.Message = gjson.GetBytes(data, "message").String()
		apiErr.Code = gjson.GetBytes(data, "code").String()
	}
	return apiErr
}

// decode unmarshals a JSON response body.
func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// looseID reads an object's ID under any of the names servers have used.
func looseID(obj gjson.Result) int64 {
	for _, name := range []string{"id", "_id", "user_id"} {
		if v := obj.Get(name); v.Exists() && v.Type != gjson.Null {
			return v.Int()
		}
	}
	return 0
}

// firstString returns the first present field of obj.
func firstString(obj gjson.Result, names ...string) string {
	for _, name := range names {
		if v := obj.Get(name); v.Exists() && v.Type != gjson.Null {
			return v.String()
		}
	}
	return ""
}

// fillIDs decodes a JSON array and repairs element IDs sent under another name.
func fillIDs[T any](data []byte, setID func(*T, int64), getID func(*T) int64) ([]T, error) {
	var items []T
	if err := decode(data, &items); err != nil {
		return nil, err
	}
	raw := gjson.ParseBytes(data).Array()
	for i := range items {
		if getID(&items[i]) == 0 && i < len(raw) {
			setID(&items[i], looseID(raw[i]))
		}
	}
	return items, nil
}
