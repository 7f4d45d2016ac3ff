package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/errors"
)

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Error   string      `json:"error"`
	Code    errors.Code `json:"code,omitempty"`
	Details any         `json:"details,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes err as an ErrorBody. Internal errors are logged and replaced by a generic
// message.
func JSONError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := errors.HTTPStatus(err)
	body := ErrorBody{Error: errors.PublicMessage(err)}

	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		body.Code = domainErr.Code
		body.Details = domainErr.Details
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		body.Code = errors.CodeInternal
	}

	JSON(w, status, body)
}

// DecodeJSON reads a JSON request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Validation("invalid JSON body").WithCause(err)
	}
	return nil
}
