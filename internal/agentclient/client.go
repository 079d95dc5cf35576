// Package agentclient implements the agent-side HTTP client (spec
// component C6): one shared *http.Client against the coordinator's
// agent-api, grounded on the pack's HTTPPhoneHomeClient (shared transport,
// bearer header, JSON marshal/unmarshal, wrapped errors).
package agentclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/crater-dist/crater/internal/auth"
	"github.com/crater-dist/crater/internal/wire"
)

// Client talks to one coordinator on behalf of a single agent identity.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New builds a Client. baseURL is the coordinator's agent-api root (no
// trailing slash), token is this agent's bearer credential.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// do issues one request against path, decoding the envelope and unwrapping
// its result into out (nil if the caller doesn't need the payload).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", auth.Scheme+" "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &httpStatusError{status: resp.StatusCode, body: string(data)}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return wire.ErrUnauthorized
	}

	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Status {
	case wire.StatusSuccess:
		if out != nil && len(env.Result) > 0 {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
		}
		return nil
	case wire.StatusSlowDown:
		return errSlowDown
	case wire.StatusUnauth:
		return wire.ErrUnauthorized
	case wire.StatusNotFound:
		return errNotFound
	default:
		return fmt.Errorf("coordinator internal-error: %s", env.Error)
	}
}

// Config reports this agent's capabilities and returns the coordinator's
// current crater configuration snapshot.
func (c *Client) Config(ctx context.Context, capabilities []string) (*wire.ConfigResult, error) {
	var result wire.ConfigResult
	req := wire.ConfigRequest{Capabilities: capabilities}
	if err := withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/config", req, &result)
	}); err != nil {
		return nil, err
	}
	return &result, nil
}

// NextExperiment claims the next unit of work, or returns (nil, nil) if
// none is currently available.
func (c *Client) NextExperiment(ctx context.Context) (*wire.ExperimentResult, error) {
	var result wire.ExperimentResult
	var got bool
	err := withRetry(ctx, func() error {
		raw := json.RawMessage{}
		if doErr := c.do(ctx, http.MethodGet, "/next-experiment", nil, &raw); doErr != nil {
			return doErr
		}
		if len(raw) == 0 || string(raw) == "null" {
			got = false
			return nil
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("decode experiment result: %w", err)
		}
		got = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !got {
		return nil, nil
	}
	return &result, nil
}

// NextCrate pops one uncompleted item from experiment, or "" if the agent
// has no remaining work in it (spec §6: "POST next-crate" with the bare
// experiment name string as the request body).
func (c *Client) NextCrate(ctx context.Context, experiment string) (string, error) {
	var raw json.RawMessage
	err := withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/next-crate", experiment, &raw)
	})
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var crate string
	if err := json.Unmarshal(raw, &crate); err != nil {
		return "", fmt.Errorf("decode next crate: %w", err)
	}
	return crate, nil
}

// RecordProgress reports one or more finished item results.
func (c *Client) RecordProgress(ctx context.Context, req wire.ProgressRequest) error {
	return withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/record-progress", req, nil)
	})
}

// Heartbeat lets the coordinator know this agent is still alive.
func (c *Client) Heartbeat(ctx context.Context) error {
	return withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/heartbeat", struct{}{}, nil)
	})
}

// ReportError tells the coordinator this agent can no longer make progress
// on an experiment, releasing its in-flight items back to the queue.
func (c *Client) ReportError(ctx context.Context, experiment, message string) error {
	req := wire.ErrorRequest{ExperimentName: experiment, Error: message}
	return withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/error", req, nil)
	})
}
