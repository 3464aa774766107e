// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the backend client.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeNotFound
	ErrTypeStatus
	ErrTypeNoBody
	ErrTypeInvalidRequest
	ErrTypeInvalidResponse
)

var errorTypeNames = [...]string{
	ErrTypeUnknown:         "unknown",
	ErrTypeNotRunning:      "not_running",
	ErrTypeTimeout:         "timeout",
	ErrTypeCanceled:        "canceled",
	ErrTypeNotFound:        "not_found",
	ErrTypeStatus:          "status",
	ErrTypeNoBody:          "no_body",
	ErrTypeInvalidRequest:  "invalid_request",
	ErrTypeInvalidResponse: "invalid_response",
}

func (t ErrorType) String() string {
	if t >= 0 && int(t) < len(errorTypeNames) {
		return errorTypeNames[t]
	}
	return "unknown"
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning = &ClientError{Type: ErrTypeNotRunning, Message: "backend is not running"}
	ErrTimeout    = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNotFound   = &ClientError{Type: ErrTypeNotFound, Message: "not found"}
	ErrNoBody     = &ClientError{Type: ErrTypeNoBody, Message: "response has no readable body"}
)

// IsNotRunning checks if an error indicates the backend is unreachable.
func IsNotRunning(err error) bool {
	return hasType(err, ErrTypeNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return hasType(err, ErrTypeTimeout)
}

// IsNotFound checks if an error is a 404 from the backend.
func IsNotFound(err error) bool {
	return hasType(err, ErrTypeNotFound)
}

// IsCanceled checks if the request was abandoned by its context.
func IsCanceled(err error) bool {
	return hasType(err, ErrTypeCanceled)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// transportError classifies a failed round trip.
func transportError(baseURL string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return &ClientError{Type: ErrTypeCanceled, Message: "request canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}

	return &ClientError{
		Type:    ErrTypeNotRunning,
		Message: "backend is not reachable at " + baseURL,
		Cause:   err,
	}
}

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 4096

// statusError builds an error from a non-2xx response, surfacing the
// backend's {"detail": ...} message when there is one.
func statusError(op string, resp *http.Response) error {
	errType := ErrTypeStatus
	if resp.StatusCode == http.StatusNotFound {
		errType = ErrTypeNotFound
	}

	msg := op + " failed: " + resp.Status
	if detail := readDetail(resp.Body); detail != "" {
		msg = op + " failed: " + detail
	}

	return &ClientError{Type: errType, Message: msg, StatusCode: resp.StatusCode}
}

func readDetail(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var apiErr APIError
	if err := json.Unmarshal(data, &apiErr); err == nil && len(apiErr.Detail) > 0 {
		var s string
		if err := json.Unmarshal(apiErr.Detail, &s); err == nil {
			return s
		}
		return string(apiErr.Detail)
	}

	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "<") {
		// HTML error pages are not useful in a notification.
		return ""
	}
	return text
}

func invalidResponse(op string, err error) error {
	return &ClientError{Type: ErrTypeInvalidResponse, Message: fmt.Sprintf("%s: invalid response", op), Cause: err}
}
