package adapter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrUnsupportedProvider is returned by the registry for an unknown vendor name.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrNotConnected is returned when a targeted operation names a vendor the user has no account for.
	ErrNotConnected = errors.New("provider not connected")

	// ErrNoAccounts is returned when the user has no connected accounts at all.
	ErrNoAccounts = errors.New("no connected cloud accounts")

	// ErrThumbnailUnavailable is returned when no thumbnail source yields bytes.
	ErrThumbnailUnavailable = errors.New("thumbnail unavailable")
)

// ProviderError is the only error shape adapters return to their callers.
type ProviderError struct {
	Provider   ProviderName
	Operation  string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is makes a 404 ProviderError match ErrNotFound.
func (e *ProviderError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

var log logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the logger used by WrapError.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		log = l
	}
}

// WrapError logs a failed vendor call and converts it into a ProviderError.
// A status of 0 becomes 500. An err that already is a ProviderError is returned as is.
func WrapError(provider ProviderName, operation string, err error, status int) error {
	if err == nil {
		return nil
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr
	}
	if status == 0 {
		status = http.StatusInternalServerError
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
	}

	log.WithFields(logrus.Fields{
		"provider":  provider,
		"operation": operation,
		"status":    status,
	}).Errorf("[%s] %s failed: %v", provider, operation, err)

	return &ProviderError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: status,
		Err:        err,
	}
}

// StatusCode extracts the status carried by a ProviderError, or 500.
func StatusCode(err error) int {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.StatusCode
	}
	return http.StatusInternalServerError
}
