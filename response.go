package openpush

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// APIError is a request the relay refused. The HTTP code distinguishes
// credential problems (401, 412) from transient server conditions.
type APIError struct {
	// Code is the HTTP status code of the response.
	Code int `json:"-"`

	Status    int      `json:"status"`
	RequestID string   `json:"request"`
	Errors    []string `json:"errors"`
}

func (err *APIError) Error() string {
	if len(err.Errors) == 0 {
		return fmt.Sprintf("relay error (request %s)", err.RequestID)
	}

	return strings.Join(err.Errors, "; ")
}

// ErrTwoFARequired is returned by login when the account has a second factor
// enabled and the request did not include a code.
var ErrTwoFARequired = errors.New("two-factor code required")

// IsAuthError reports whether err is the relay rejecting the current
// credentials. Auth errors are never retried automatically; they require the
// external credential flow to run again.
func IsAuthError(err error) bool {
	var apiErr *APIError

	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
}

func catchAPIError(_ *resty.Client, res *resty.Response) error {
	if !res.IsError() {
		return nil
	}

	var err error

	if apiErr, ok := res.Error().(*APIError); ok {
		apiErr.Code = res.StatusCode()
		err = apiErr
	} else {
		err = fmt.Errorf("%v", res.Status())
	}

	return fmt.Errorf("%v: %w", res.StatusCode(), err)
}

func catchDialError(res *resty.Response, err error) bool {
	return res.RawResponse == nil
}
