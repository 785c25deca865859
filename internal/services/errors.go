package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Top-level markers. Every error that leaves a core component wraps exactly
// one of these so boundary layers can classify it with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrStale         = errors.New("stale asset")
	ErrDecodeFailure = errors.New("decode failure")
	ErrInvalidInput  = errors.New("invalid input")
	ErrTimeout       = errors.New("timeout")
	ErrStorage       = errors.New("storage failure")
	ErrNoConsensus   = errors.New("no consensus")
	ErrUnauthorized  = errors.New("unauthenticated principal")
)

// Specific failures. Each wraps its top-level marker.
var (
	ErrNoPreviewAvailable       = fmt.Errorf("%w: no embedded preview available", ErrDecodeFailure)
	ErrUnsupportedPreviewFormat = fmt.Errorf("%w: unsupported embedded preview format", ErrDecodeFailure)

	ErrInvalidKey          = fmt.Errorf("%w: invalid annotation key", ErrInvalidInput)
	ErrInvalidWeight       = fmt.Errorf("%w: invalid vote weight", ErrInvalidInput)
	ErrInvalidCriteriaType = fmt.Errorf("%w: criteria value does not match column type", ErrInvalidInput)
	ErrUnknownSortField    = fmt.Errorf("%w: unknown sort field", ErrInvalidInput)
	ErrUnknownField        = fmt.Errorf("%w: unknown search field", ErrInvalidInput)

	ErrProposalNotFound = fmt.Errorf("%w: proposal", ErrNotFound)
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrStorage
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short stable classification used in logs and API payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNoConsensus):
		return "no_consensus"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDecodeFailure):
		return "decode_failure"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrStorage):
		return "storage_failure"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error to the status code the HTTP adapter returns.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "unauthorized":
		return http.StatusUnauthorized
	case "invalid_input":
		return http.StatusBadRequest
	case "not_found", "no_consensus":
		return http.StatusNotFound
	case "decode_failure":
		return http.StatusUnprocessableEntity
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
