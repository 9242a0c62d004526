package signalrclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the management API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.RequestID != "" {
		return fmt.Sprintf("management API returned %d (%s, request id %s)", e.StatusCode, msg, e.RequestID)
	}
	return fmt.Sprintf("management API returned %d (%s)", e.StatusCode, msg)
}

// OperationError reports an asynchronous operation that ended in Failed or Canceled
type OperationError struct {
	Status  string
	Code    string
	Message string
}

func (e *OperationError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("operation %s: %s: %s", strings.ToLower(e.Status), e.Code, e.Message)
	}
	return fmt.Sprintf("operation %s", strings.ToLower(e.Status))
}

// armError is the ARM error envelope
type armError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newAPIError builds an APIError from resp and closes its body
func newAPIError(resp *http.Response, clientRequestID string) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(headerRequestID),
	}
	if apiErr.RequestID == "" {
		apiErr.RequestID = clientRequestID
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope armError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// StatusCode returns the HTTP status of an APIError in err's chain, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound returns true if err is a 404 from the management API
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsAuth returns true if err is a 401 or 403 from the management API
func IsAuth(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
