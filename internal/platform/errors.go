// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a platform API failure. The kind drives retry
// decisions and token-store status transitions.
type ErrorKind string

const (
	// KindAuth covers invalid or expired access tokens. Never retried;
	// the token store treats it like a revoked token.
	KindAuth ErrorKind = "auth"

	// KindRateLimit covers platform throttling. Retried with backoff.
	KindRateLimit ErrorKind = "rate_limit"

	// KindServer covers platform 5xx responses. Retried with backoff.
	KindServer ErrorKind = "server"

	// KindClient covers other 4xx responses. Never retried.
	KindClient ErrorKind = "client"

	// KindHTTP covers non-2xx responses with no parseable error envelope.
	KindHTTP ErrorKind = "http"

	// KindParse covers malformed response bodies.
	KindParse ErrorKind = "parse"
)

// APIError is the structured platform API failure. A concrete struct with a
// Kind field, matched with errors.As, instead of an error interface tree.
type APIError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	LogID      string
	HTTPStatus int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform api %s error: %s (%s, http %d, log_id %s)",
			e.Kind, e.Message, e.Code, e.HTTPStatus, e.LogID)
	}
	return fmt.Sprintf("platform api %s error: %s (http %d)", e.Kind, e.Message, e.HTTPStatus)
}

// Retryable reports whether the failure class is transient.
func (e *APIError) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindServer
}

// authCodes are the platform error codes that indicate a dead access token.
var authCodes = map[string]bool{
	"access_token_invalid": true,
	"access_token_expired": true,
	"invalid_token":        true,
}

// classifyCode maps a platform error code plus HTTP status to an ErrorKind.
func classifyCode(code string, httpStatus int) ErrorKind {
	switch {
	case authCodes[code] || httpStatus == http.StatusUnauthorized:
		return KindAuth
	case code == "rate_limit_exceeded" || httpStatus == http.StatusTooManyRequests:
		return KindRateLimit
	case httpStatus >= 500:
		return KindServer
	case httpStatus >= 400:
		return KindClient
	default:
		return KindClient
	}
}

// IsRetryable is the retry classifier for platform operations: rate-limit
// and server errors only.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// IsAuthError reports whether err is a dead-token failure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindAuth
}
