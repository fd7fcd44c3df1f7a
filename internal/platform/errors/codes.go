// Package errors provides structured error handling for the ONS core.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Identity and authority errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeQuotaExceeded   Code = "QUOTA_EXCEEDED"

	// Input errors
	CodeValidation        Code = "VALIDATION"
	CodeUnmatchedRecordID Code = "UNMATCHED_RECORD_ID"
	CodeDuplicateName     Code = "DUPLICATE_NAME"

	// Graph store errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeGraphUnavailable Code = "GRAPH_UNAVAILABLE"

	// Record store errors
	CodeRemoteStore Code = "REMOTE_STORE"

	// CodeDiverged marks a graph mutation that failed after the remote
	// store already committed the change. Callers must surface it
	// distinctly so operators can reconcile the two stores.
	CodeDiverged Code = "DIVERGED"
)

// HTTPStatus maps domain codes to HTTP status codes for the API surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeValidation, CodeUnmatchedRecordID:
		return http.StatusBadRequest
	case CodeDuplicateName:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeGraphUnavailable, CodeRemoteStore:
		return http.StatusBadGateway
	case CodeDiverged:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
