package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// permanentError wraps errors that should not be retried (4xx responses).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type apiClient struct {
	baseURL string
	token   string
	retries int
	http    *http.Client
	// backoff returns the pause before the given retry.
	backoff func(attempt int) time.Duration
}

func newAPIClient(timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(flagURL, "/"),
		token:   flagToken,
		retries: flagRetries,
		http:    &http.Client{Timeout: timeout},
		backoff: func(attempt int) time.Duration { return time.Duration(attempt*2) * time.Second },
	}
}

// call sends the request, retrying connection failures and 5xx responses.
// out may be nil when no body is expected.
func (c *apiClient) call(method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			fmt.Fprintf(os.Stderr, "partscout-cli: retry %d/%d after error: %v\n", attempt, c.retries, lastErr)
			time.Sleep(c.backoff(attempt))
		}
		lastErr = c.do(method, path, body, out)
		if lastErr == nil {
			return nil
		}
		var permErr *permanentError
		if errors.As(lastErr, &permErr) {
			return lastErr
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.retries, lastErr)
}

func (c *apiClient) do(method, path string, body []byte, out interface{}) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		return &permanentError{err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to partscout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		err := fmt.Errorf("partscout returned HTTP %d", resp.StatusCode)
		if e.Error != "" {
			err = fmt.Errorf("partscout returned HTTP %d: %s", resp.StatusCode, e.Error)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &permanentError{err: err}
		}
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &permanentError{err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
