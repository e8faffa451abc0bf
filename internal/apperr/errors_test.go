package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad type", ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("post 1: %w", ErrNotFound), http.StatusNotFound},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("store: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{ErrConsistencyFault, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestFromContext(t *testing.T) {
	err := FromContext(fmt.Errorf("find vote: %w", context.DeadlineExceeded))
	assert.True(t, Retryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	canceled := FromContext(context.Canceled)
	assert.False(t, Retryable(canceled))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "Failed", PublicMessage(fmt.Errorf("%w: upvotes at 0", ErrConsistencyFault), "Failed"))
	assert.Equal(t, "invalid argument: x", PublicMessage(fmt.Errorf("%w: x", ErrInvalidArgument), "Failed"))
}
