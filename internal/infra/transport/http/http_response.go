package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
)

//nolint:gochecknoglobals
var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidAuthToken, http.StatusUnauthorized},
	{domain.ErrUnauthenticated, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrInvalidCredentials, http.StatusUnprocessableEntity},
	{domain.ErrDuplicateUsername, http.StatusUnprocessableEntity},
	{domain.ErrAccountNotFound, http.StatusNotFound},
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
}

// StatusFromError maps a domain error onto an HTTP status code and a client-safe message.
// Unknown errors map to 500 and never expose their text.
func StatusFromError(err error) (int, string) {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			return es.status, es.err.Error()
		}
	}

	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// WriteJSON writes body as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	return nil
}

// WriteError answers the request with the status and message mapped from err.
func WriteError(ctx context.Context, w http.ResponseWriter, err error, log logging.Logger) {
	status, message := StatusFromError(err)

	if werr := WriteJSON(w, status, domain.Error(message)); werr != nil {
		log.ErrorContext(ctx, "write error response failed", "error", werr)
	}
}
