package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/types"
)

// StatusDetails is attached to errors produced from HTTP responses.
type StatusDetails struct {
	Status     int    `json:"status"`
	ServerCode string `json:"server_code,omitempty"`
	ExistingID string `json:"existing_id,omitempty"`
}

func mapTransportError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, op+" timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, op+" timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" failed")
}

func mapStatusError(status int, body []byte, op string) error {
	details := StatusDetails{Status: status}
	message := strings.TrimSpace(string(body))

	if apiErr, ok := types.DecodeError(body); ok {
		details.ServerCode = apiErr.Code
		if apiErr.Message != "" {
			message = apiErr.Message
		}
		details.ExistingID = apiErr.ExistingID()
	}
	if message == "" {
		message = http.StatusText(status)
	}
	cause := fmt.Errorf("status %d: %s", status, message)

	code := codeForStatus(status, details.ServerCode)
	return pkgerrors.Wrap(code, cause, fmt.Sprintf("%s rejected: %s", op, message)).WithDetails(details)
}

func codeForStatus(status int, serverCode string) pkgerrors.Code {
	switch {
	case status == http.StatusConflict && pkgerrors.Code(serverCode) == pkgerrors.CodeIdempotency:
		return pkgerrors.CodeIdempotency
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return pkgerrors.CodeTimeout
	case status >= 500:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeValidation
	}
}

// ExistingID returns the remote id carried by a duplicate-client-id error.
func ExistingID(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	if details, ok := typed.Details().(StatusDetails); ok {
		return details.ExistingID
	}
	return ""
}

// HTTPStatus returns the response status behind err, or 0 for transport
// failures.
func HTTPStatus(err error) int {
	typed := pkgerrors.As(err)
	if typed == nil {
		return 0
	}
	if details, ok := typed.Details().(StatusDetails); ok {
		return details.Status
	}
	return 0
}
