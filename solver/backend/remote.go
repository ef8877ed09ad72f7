package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/classify"
	"github.com/hrygo/eyemath/solver/normalize"
)

// RemoteConfig configures a Remote backend.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one HTTP exchange. The invocation deadline usually fires first.
	Timeout time.Duration
}

// Remote calls an engine over HTTP: POST <base>/execute with
// {operation, expression, variable}, answered by {results, steps, raw}.
type Remote struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

type executeRequest struct {
	Operation  string `json:"operation"`
	Expression string `json:"expression"`
	Variable   string `json:"variable,omitempty"`
}

type executeResponse struct {
	Results []any      `json:"results"`
	Steps   [][]string `json:"steps"`
	Raw     string     `json:"raw"`
	Error   string     `json:"error"`
}

// NewRemote creates a Remote backend.
func NewRemote(cfg RemoteConfig, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Remote{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Execute posts the operation to the engine.
func (r *Remote) Execute(ctx context.Context, op classify.Operation, expr, variable string) (Output, error) {
	body, err := json.Marshal(executeRequest{Operation: op.String(), Expression: expr, Variable: variable})
	if err != nil {
		return Output{}, &Error{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return Output{}, &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, errors.Wrap(ctx.Err(), "remote backend")
		}
		return Output{}, &Error{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.logger.Warn("remote backend error", "operation", op, "status", resp.StatusCode)
		return Output{}, &Error{Op: op, Err: errors.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))}
	}

	var payload executeResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return Output{}, &Error{Op: op, Err: errors.Wrap(err, "decode response")}
	}
	if payload.Error != "" {
		return Output{}, &Error{Op: op, Err: errors.New(payload.Error)}
	}

	values := make([]normalize.Value, len(payload.Results))
	for i, v := range payload.Results {
		values[i] = normalize.FromAny(v)
	}
	return Output{Results: values, Steps: payload.Steps, Raw: payload.Raw}, nil
}

// Ping checks GET <base>/healthz.
func (r *Remote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "ping remote backend")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("remote backend unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}
