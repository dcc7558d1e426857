package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/ollamabench/pkg/types"
)

// DefaultTimeout bounds a single generate call.
const DefaultTimeout = 600 * time.Second

// TransportError means the HTTP exchange itself did not complete.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama error status %d: %s", e.StatusCode, e.Body)
}

// DecodeError is a 2xx response whose body is not a generate response.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode response: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Client calls the non-streaming /api/generate endpoint of an Ollama server.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Generate sends one request and waits for the complete response. It never retries.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (*types.InferenceResponse, error) {
	client := c.HTTPClient
	if client == nil {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if c.Logger != nil {
		c.Logger.Debug("ollama request", "url", c.URL, "model", req.Model, "prompt", req.Prompt)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	out, err := decodeResponse(data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if c.Logger != nil {
		c.Logger.Debug("ollama response", "model", out.Model, "bytes", len(data))
	}
	return out, nil
}

// decodeResponse requires model and response to be present.
func decodeResponse(data []byte) (*types.InferenceResponse, error) {
	var probe struct {
		Model    *string `json:"model"`
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.Model == nil {
		return nil, errors.New("missing field model")
	}
	if probe.Response == nil {
		return nil, errors.New("missing field response")
	}
	var out types.InferenceResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
