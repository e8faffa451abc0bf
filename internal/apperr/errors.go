// Package apperr defines the error taxonomy shared by the ledger, the
// reporter, the store and the HTTP layer. Errors are wrapped with %w so the
// sentinel survives context added along the way.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrInvalidArgument rejects a request before anything is mutated.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound means the post, comment or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized means the request carries no usable identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the identity is known but not allowed to act.
	ErrForbidden = errors.New("forbidden")
	// ErrConstraintViolation is a duplicate insert against the (user, post)
	// vote constraint. The ledger recovers from it and never returns it.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrConsistencyFault means the vote counters disagree with the ledger.
	ErrConsistencyFault = errors.New("consistency fault")
	// ErrUnavailable is a transient store failure; the caller may retry.
	ErrUnavailable = errors.New("temporarily unavailable")
)

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// FromContext maps context expiry onto the taxonomy. Cancellation by the
// caller stays as is, a deadline becomes ErrUnavailable.
func FromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrUnavailable) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

// HTTPStatus picks the response code for err.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show to a client. Internal faults get a
// generic message.
func PublicMessage(err error, fallback string) string {
	switch HTTPStatus(err) {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable, please retry"
	default:
		return fallback
	}
}
