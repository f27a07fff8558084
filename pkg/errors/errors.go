package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrTransientStore     = errors.New("transient store failure")
	ErrProvisioningFailed = errors.New("chat provisioning failed")
	ErrTransportLost      = errors.New("subscription transport lost")
	ErrNotReady           = errors.New("session not ready")
)

func HTTPStatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, ErrTransientStore), errors.Is(err, ErrProvisioningFailed), errors.Is(err, ErrTransportLost):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsTransient reports whether a retry of the failed operation may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
