package walletauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPClient implements Client over the JSON HTTP API
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *HTTPClient) Challenge(ctx context.Context, address string) (string, error) {
	var challenge string
	err := c.do(ctx, http.MethodPost, "/api/session/generate_challenge", "", map[string]string{
		"public_address": address,
	}, &challenge)
	if err != nil {
		return "", err
	}
	return challenge, nil
}

func (c *HTTPClient) Login(ctx context.Context, address, challenge, signature string) (*Login, error) {
	var login Login
	err := c.do(ctx, http.MethodPost, "/api/session/validate_auth", "", map[string]string{
		"public_address": address,
		"challenge":      challenge,
		"signature":      signature,
	}, &login)
	if err != nil {
		return nil, err
	}
	return &login, nil
}

func (c *HTTPClient) Me(ctx context.Context, bearer string) (*Me, error) {
	var me Me
	if err := c.do(ctx, http.MethodGet, "/api/session/me", bearer, nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s %s returned %d: %w", ErrUnexpectedResponse, method, path, resp.StatusCode, err)
	}

	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnexpectedResponse, method, path, err)
	}

	return nil
}
