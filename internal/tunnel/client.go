// Package tunnel implements the signed HTTP bridge between the worker
// tier and the remote generation pipeline.
package tunnel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/devcapsules/codecapsules-sub003/internal/infra"
)

// ErrKind classifies tunnel failures so retry and alerting logic can
// tell a timeout from a refused connection or a 5xx.
type ErrKind string

const (
	KindTimeout     ErrKind = "timeout"
	KindNetwork     ErrKind = "network"
	KindHTTPStatus  ErrKind = "http_status"
	KindBadResponse ErrKind = "bad_response"
	KindInternal    ErrKind = "internal"
)

// Result is the structured outcome of one tunnel call. Call never
// returns a Go error; every failure mode lands here.
type Result struct {
	Success    bool
	StatusCode int
	Data       []byte
	Err        string
	Kind       ErrKind
	LatencyMs  int64
}

// Failed reports whether the call did not produce a usable 2xx body.
func (r Result) Failed() bool { return !r.Success }

// Options configures the tunnel client.
type Options struct {
	BaseURL    string
	Secret     string
	CallerID   string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client signs and sends requests to the remote compute tier. Each call
// owns an independent timeout; cancelling one call never affects others.
type Client struct {
	baseURL    string
	secret     string
	callerID   string
	httpClient *http.Client
	logger     *infra.Logger
	now        func() time.Time
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Per-call timeouts come from contexts, not the client.
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		secret:     opts.Secret,
		callerID:   opts.CallerID,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Call POSTs a signed JSON payload to path and captures the outcome as a
// Result. The timeout bounds the whole round trip.
func (c *Client) Call(ctx context.Context, path string, payload any, timeout time.Duration) Result {
	start := c.now()

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: fmt.Sprintf("encode payload: %v", err), Kind: KindInternal}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Result{Err: fmt.Sprintf("build request: %v", err), Kind: KindInternal}
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, string(body))

	resp, err := c.httpClient.Do(req)
	latency := c.now().Sub(start).Milliseconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn().Str("path", path).Int64("latency_ms", latency).Msg("tunnel: call timed out")
			return Result{
				Err:       fmt.Sprintf("timed out after %dms", timeout.Milliseconds()),
				Kind:      KindTimeout,
				LatencyMs: latency,
			}
		}
		c.logger.Warn().Err(err).Str("path", path).Msg("tunnel: network error")
		return Result{Err: fmt.Sprintf("network error: %v", err), Kind: KindNetwork, LatencyMs: latency}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Err:        fmt.Sprintf("read response: %v", err),
			Kind:       KindBadResponse,
			LatencyMs:  latency,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			StatusCode: resp.StatusCode,
			Data:       data,
			Err:        fmt.Sprintf("pipeline returned status %d", resp.StatusCode),
			Kind:       KindHTTPStatus,
			LatencyMs:  latency,
		}
	}

	return Result{Success: true, StatusCode: resp.StatusCode, Data: data, LatencyMs: latency}
}

// Health probes the liveness path with a short timeout. Healthy iff the
// response parses and its status field is "ok".
func (c *Client) Health(ctx context.Context) bool {
	const path = "/internal/health"

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false
	}
	// GETs sign the request path instead of a body.
	c.sign(req, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.Status == "ok"
}

func (c *Client) sign(req *http.Request, payload string) {
	ts := c.now().UnixMilli()
	req.Header.Set(HeaderSignature, Sign(c.secret, ts, c.callerID, payload))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderCaller, c.callerID)
}
