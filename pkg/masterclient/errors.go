package masterclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

var ErrNotConfigured = errors.New("master_not_configured")

type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("master api error (%d): %s", e.Status, e.Message)
}

// IsRetryable reports whether a delivery failure may succeed later.
// Client errors other than 408 and 429 are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusRequestTimeout, apiErr.Status == http.StatusTooManyRequests:
			return true
		case apiErr.Status >= 500:
			return true
		default:
			return false
		}
	}
	return true
}
