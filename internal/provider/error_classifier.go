package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sungwon/notification-pipeline/internal/errclass"
)

// ProviderError wraps a transport error with the HTTP or SMTP status that
// produced it.
type ProviderError struct {
	// Provider is the name of the transport that returned the error.
	Provider string
	// StatusCode is the HTTP status code, or the SMTP reply code for SMTP.
	StatusCode int
	// Message is the error description returned by the transport.
	Message string
	// Kind is the failure variant derived from StatusCode.
	Kind errclass.Kind
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// ErrorKind implements errclass.Kinded.
func (e *ProviderError) ErrorKind() errclass.Kind { return e.Kind }

// IsPermanent returns true if the error will not succeed on retry.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !errclass.PolicyFor(pe.Kind).Retryable
	}
	return false
}

// ClassifyHTTPError creates a ProviderError from an HTTP status code and
// response body. It returns nil for 2xx statuses.
func ClassifyHTTPError(providerName string, statusCode int, body string) *ProviderError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return &ProviderError{
		Provider:   providerName,
		StatusCode: statusCode,
		Message:    body,
		Kind:       kindForHTTPStatus(statusCode),
	}
}

func kindForHTTPStatus(code int) errclass.Kind {
	switch {
	case code == 429:
		return errclass.KindRateLimit
	case code == 401, code == 403:
		return errclass.KindAuthentication
	case code >= 500:
		return errclass.KindExternalService
	case code >= 400:
		return errclass.KindValidation
	default:
		return errclass.KindUnknown
	}
}

// kindForSMTPCode maps an SMTP reply code onto a failure kind. 4yz replies
// are transient; 5yz replies are permanent.
func kindForSMTPCode(code int) errclass.Kind {
	switch {
	case code == 421 || code == 451 || code == 452:
		return errclass.KindExternalService
	case code == 454 || code == 530 || code == 534 || code == 535:
		return errclass.KindAuthentication
	case code >= 400 && code < 500:
		return errclass.KindExternalService
	case code >= 500:
		return errclass.KindValidation
	default:
		return errclass.KindUnknown
	}
}

// networkError tags a transport-level failure as a network error. Context
// cancellation is passed through untagged.
func networkError(providerName string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", providerName, err)
	}
	return errclass.Wrap(errclass.KindNetwork, err, providerName+": send request")
}
