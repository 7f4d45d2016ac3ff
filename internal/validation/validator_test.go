package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytheresa/go-storefront/internal/errors"
)

type registerForm struct {
	Username string `form:"username" validate:"required,min=3,max=30,alphanum"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=8,maxbytes=72"`
	Confirm  string `form:"password_confirm" validate:"eqfield=Password"`
}

type tokenRequest struct {
	Code string `json:"code" validate:"token64"`
}

func TestValidate(t *testing.T) {
	v := New()

	testCases := []struct {
		name       string
		input      any
		wantFields map[string]string
	}{
		{
			name:  "valid form",
			input: registerForm{Username: "alice", Email: "alice@example.com", Password: "secret123", Confirm: "secret123"},
		},
		{
			name:  "every field wrong",
			input: registerForm{Username: "a!", Email: "nope", Password: "short", Confirm: "other"},
			wantFields: map[string]string{
				"username":         "must be at least 3 characters",
				"email":            "must be a valid email address",
				"password":         "must be at least 8 characters",
				"password_confirm": "does not match",
			},
		},
		{
			name: "multibyte password over the byte limit",
			input: registerForm{
				Username: "alice",
				Email:    "alice@example.com",
				Password: strings.Repeat("é", 40),
				Confirm:  strings.Repeat("é", 40),
			},
			wantFields: map[string]string{"password": "is too long (at most 72 bytes)"},
		},
		{
			name:  "multibyte password within the byte limit",
			input: registerForm{Username: "alice", Email: "alice@example.com", Password: strings.Repeat("é", 36), Confirm: strings.Repeat("é", 36)},
		},
		{
			name:       "token with uppercase hex",
			input:      tokenRequest{Code: "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"},
			wantFields: map[string]string{"code": "is not a valid token"},
		},
		{
			name:  "token ok",
			input: tokenRequest{Code: "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.input)
			if tc.wantFields == nil {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrValidation)
			assert.Equal(t, tc.wantFields, FieldErrors(err))
		})
	}
}

func TestFieldErrorsOnForeignError(t *testing.T) {
	assert.Nil(t, FieldErrors(errors.New("boom")))
	assert.Nil(t, FieldErrors(errors.NotFound("missing")))
}
