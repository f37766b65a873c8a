// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package platform implements the external video platform API client:
// fielded user-info and video-list calls, cursor pagination, the structured
// error taxonomy, and integration with the process-wide pacer, the retry
// kernel, and a circuit breaker around the platform host.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/logging"
	"github.com/storepulse/storepulse/internal/metrics"
	"github.com/storepulse/storepulse/internal/models"
	"github.com/storepulse/storepulse/internal/retry"
)

// maxResponseBytes bounds response reads against a misbehaving platform.
const maxResponseBytes = 10 << 20

// Client talks to the platform open API. One Client is shared by all sync
// workers; the pacer and circuit breaker inside it are process-wide.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	pacer       *retry.Pacer
	cb          *gobreaker.CircuitBreaker[json.RawMessage]
	userFields  string
	videoFields string
	policy      retry.Policy
}

// NewClient creates a platform client. The pacer is shared so that every
// caller observes the same requests-per-second budget.
func NewClient(cfg *config.PlatformConfig, pacer *retry.Pacer) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "platform-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Auth and client errors are the caller's problem, not evidence
		// the platform is down; only server-side failures count.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Kind != KindServer && apiErr.Kind != KindHTTP
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
		},
	})

	return &Client{
		baseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		pacer:       pacer,
		cb:          cb,
		userFields:  strings.Join(cfg.UserFields, ","),
		videoFields: strings.Join(cfg.VideoFields, ","),
		policy:      retry.DefaultPolicy(IsRetryable),
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error errorBody       `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

// call performs one paced, breaker-guarded request and returns the envelope
// data payload. Retries live above this in the operation wrappers.
func (c *Client) call(ctx context.Context, method, path, fields, accessToken string, body any, endpoint string) (json.RawMessage, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := c.cb.Execute(func() (json.RawMessage, error) {
		return c.doRequest(ctx, method, path, fields, accessToken, body)
	})
	metrics.PlatformAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	metrics.PlatformAPIRequests.WithLabelValues(endpoint, outcomeLabel(err)).Inc()

	return data, err
}

func (c *Client) doRequest(ctx context.Context, method, path, fields, accessToken string, body any) (json.RawMessage, error) {
	reqURL := c.baseURL + path
	if fields != "" {
		reqURL += "?fields=" + url.QueryEscape(fields)
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{
				Kind:       classifyCode("", resp.StatusCode),
				Code:       "http_error",
				Message:    http.StatusText(resp.StatusCode),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, &APIError{
			Kind:       KindParse,
			Message:    fmt.Sprintf("malformed response body: %v", err),
			HTTPStatus: resp.StatusCode,
		}
	}

	if env.Error.Code != "" && env.Error.Code != "ok" {
		return nil, &APIError{
			Kind:       classifyCode(env.Error.Code, resp.StatusCode),
			Code:       env.Error.Code,
			Message:    env.Error.Message,
			LogID:      env.Error.LogID,
			HTTPStatus: resp.StatusCode,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := classifyCode("", resp.StatusCode)
		if resp.StatusCode < 400 {
			kind = KindHTTP
		}
		return nil, &APIError{
			Kind:       kind,
			Code:       "http_error",
			Message:    http.StatusText(resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	return env.Data, nil
}

// GetUserInfo fetches account-level statistics for the token's user.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*models.UserStats, error) {
	return retry.Do(ctx, c.policy, "get_user_info", func(ctx context.Context) (*models.UserStats, error) {
		data, err := c.call(ctx, http.MethodGet, "/user/info/", c.userFields, accessToken, nil, "user_info")
		if err != nil {
			return nil, err
		}

		var payload struct {
			User models.UserStats `json:"user"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, &APIError{Kind: KindParse, Message: fmt.Sprintf("decode user info: %v", err)}
		}
		return &payload.User, nil
	})
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	return "transport"
}
