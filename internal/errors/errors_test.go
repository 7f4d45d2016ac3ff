package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mytheresa/go-storefront/internal/errors"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := errors.AlreadyExists("email already registered")

	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
	assert.False(t, errors.Is(err, errors.ErrNotFound))

	wrapped := fmt.Errorf("register: %w", err)
	assert.True(t, errors.Is(wrapped, errors.ErrAlreadyExists))
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errors.NotFound("product not found"), http.StatusNotFound},
		{"duplicate", errors.AlreadyExists("dup"), http.StatusConflict},
		{"validation", errors.Validation("bad"), http.StatusBadRequest},
		{"credentials", errors.InvalidCredentials("nope"), http.StatusUnauthorized},
		{"forbidden", errors.Forbidden("nope"), http.StatusForbidden},
		{"throttled", errors.TooManyRequests("slow down"), http.StatusTooManyRequests},
		{"plain error", stderrors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errors.HTTPStatus(tc.err))
		})
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "product not found", errors.PublicMessage(errors.NotFound("product not found")))

	internal := errors.Internal("query failed", stderrors.New("pq: connection refused"))
	assert.NotContains(t, errors.PublicMessage(internal), "pq")
	assert.NotContains(t, errors.PublicMessage(stderrors.New("boom")), "boom")
}

func TestWithCauseKeepsCode(t *testing.T) {
	cause := stderrors.New("smtp timeout")
	err := errors.ErrInternal.WithCause(cause)

	assert.True(t, errors.Is(err, errors.ErrInternal))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "smtp timeout")
}
