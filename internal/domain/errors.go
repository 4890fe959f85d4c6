/**
 * @description
 * Typed API errors for the buyer-service. Every domain failure is carried
 * as a single *Error value holding the HTTP status, a stable machine code,
 * a human message, and optional details. The api layer translates these
 * into the {ok:false, error:{...}} response envelope; anything that is not
 * an *Error is treated as an unexpected 500 and never leaks to the client.
 */
package domain

import (
	"fmt"
	"net/http"
)

// Stable error codes exposed to clients.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeApprovalRequired = "APPROVAL_REQUIRED"
	CodeForbidden        = "FORBIDDEN"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL"
)

// Error is the single error type crossing layer boundaries in this service.
type Error struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError reports malformed or out-of-range input.
func ValidationError(message string, details map[string]any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidationError, Message: message, Details: details}
}

// InvalidJSONError reports an unparseable request body.
func InvalidJSONError() *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeInvalidJSON, Message: "request body is not valid JSON"}
}

// ApprovalRequiredError gates buyer actions on admin approval.
func ApprovalRequiredError() *Error {
	return &Error{Status: http.StatusForbidden, Code: CodeApprovalRequired, Message: "buyer account is not approved"}
}

// ForbiddenError reports a caller without the required capability.
func ForbiddenError() *Error {
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: "caller lacks the required capability"}
}

// UnauthorizedError reports a missing or invalid identity.
func UnauthorizedError(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

// NotFoundError reports a missing route or record.
func NotFoundError(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// RateLimitedError reports an exhausted purchase-commit budget.
func RateLimitedError(retryAfterSeconds int) *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimited,
		Message: "too many purchase commits, retry later",
		Details: map[string]any{"retryAfterSeconds": retryAfterSeconds},
	}
}
