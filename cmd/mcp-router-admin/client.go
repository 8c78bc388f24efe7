// ABOUTME: HTTP client for the router admin API
// ABOUTME: Wraps JSON request/response handling with session auth

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiError is a non-2xx response from the router.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("router returned %d: %s", e.Status, e.Message)
}

type adminClient struct {
	baseURL string
	session string
	http    *http.Client
}

func newAdminClient(cfg *Config) *adminClient {
	return &adminClient{
		baseURL: cfg.Router.URL,
		session: cfg.Router.Session,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues one JSON request. out may be nil for requests without a
// response body.
func (c *adminClient) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		req.Header.Set("Authorization", "Bearer "+c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling router: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil || errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *adminClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *adminClient) post(path string, in, out any) error {
	return c.do(http.MethodPost, path, in, out)
}

func (c *adminClient) put(path string, in, out any) error {
	return c.do(http.MethodPut, path, in, out)
}

func (c *adminClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}
