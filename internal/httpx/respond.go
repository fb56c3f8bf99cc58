// Package httpx renders the response envelope shared by every endpoint.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
)

// Envelope is the success body: {statusCode, message, data, success}.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	Success    bool   `json:"success"`
}

// ErrorEnvelope is the failure body; HTTP status mirrors StatusCode.
type ErrorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Data       any      `json:"data"`
	Errors     []string `json:"errors"`
	Success    bool     `json:"success"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success writes a success envelope.
func Success(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Envelope{StatusCode: status, Message: message, Data: data, Success: status < 400})
}

// Error writes err as an error envelope. Internal causes stay out of the body.
func Error(w http.ResponseWriter, err error) {
	e := apierr.From(err)
	details := e.Errors
	if details == nil {
		details = []string{}
	}
	JSON(w, e.Status, ErrorEnvelope{
		StatusCode: e.Status,
		Message:    e.Message,
		Data:       nil,
		Errors:     details,
		Success:    false,
	})
}

// DecodeJSON decodes the request body into target. An empty body is an error
// unless allowEmpty is set.
func DecodeJSON(r *http.Request, target any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return apierr.BadRequest("request body is required")
	}
	err := json.NewDecoder(r.Body).Decode(target)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if allowEmpty {
			return nil
		}
		return apierr.BadRequest("request body is required")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.BadRequest("request body too large")
	}
	return apierr.BadRequest("invalid request payload")
}
