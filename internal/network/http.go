package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/provectl/internal/observability"
)

const maxResponseBytes = 8 << 20

type HTTPConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     BackoffConfig
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		Backoff:     DefaultBackoff(),
	}
}

// HTTP talks to a node REST API. Transport errors are retried with backoff.
// 5xx responses are retried for program lookups only: a broadcast that got a
// 5xx may still have been accepted, so it is not resubmitted.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client

	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ Client = (*HTTP)(nil)

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *HTTP) Program(ctx context.Context, host, id string) (string, error) {
	id = strings.TrimSpace(id)
	endpoint := strings.TrimRight(host, "/") + "/testnet3/program/" + url.PathEscape(id)
	status, body, err := c.do(ctx, "program", http.MethodGet, endpoint, nil, true)
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusNotFound:
		observability.RecordNetworkRequest("program", true)
		return "", notFound(id)
	case status != http.StatusOK:
		observability.RecordNetworkRequest("program", false)
		return "", fmt.Errorf("%w: GET %s: status %d", ErrNetwork, endpoint, status)
	}
	observability.RecordNetworkRequest("program", true)

	var source string
	if err := json.Unmarshal(body, &source); err != nil {
		// some nodes serve the program as plain text
		source = string(body)
	}
	if strings.TrimSpace(source) == "" {
		return "", fmt.Errorf("%w: GET %s: empty program body", ErrNetwork, endpoint)
	}
	return source, nil
}

func (c *HTTP) Broadcast(ctx context.Context, host string, payload []byte) (string, error) {
	endpoint := strings.TrimRight(host, "/") + "/testnet3/transaction/broadcast"
	status, body, err := c.do(ctx, "broadcast", http.MethodPost, endpoint, payload, false)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		observability.RecordNetworkRequest("broadcast", false)
		return "", fmt.Errorf("%w: POST %s: status %d: %s", ErrNetwork, endpoint, status, strings.TrimSpace(string(body)))
	}
	observability.RecordNetworkRequest("broadcast", true)

	var id string
	if err := json.Unmarshal(body, &id); err != nil {
		id = strings.TrimSpace(string(body))
	}
	return id, nil
}

// do returns the final status and body. err is set only when no response
// could be obtained within the attempt budget. retry5xx controls whether a
// server error counts as transient.
func (c *HTTP) do(ctx context.Context, op, method, endpoint string, payload []byte, retry5xx bool) (int, []byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt - 1)
			logs.Zerolog().Debug().
				Str("op", op).
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("network.HTTP.do retry")
			select {
			case <-ctx.Done():
				observability.RecordNetworkRequest(op, false)
				return 0, nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, endpoint, ctx.Err())
			case <-time.After(delay):
			}
		}

		status, body, err := c.once(ctx, method, endpoint, payload)
		if err == nil && (status < 500 || !retry5xx) {
			return status, body, nil
		}
		if err == nil {
			err = fmt.Errorf("status %d", status)
		}
		lastErr = err
	}
	observability.RecordNetworkRequest(op, false)
	return 0, nil, fmt.Errorf("%w: %s %s after %d attempts: %v", ErrNetwork, method, endpoint, c.cfg.MaxAttempts, lastErr)
}

func (c *HTTP) once(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *HTTP) backoff(attempt int) time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
}
