package momo

import (
	"errors"
	"net/http"
)

var (
	ErrTimeout       = errors.New("momo: timeout")
	ErrRejected      = errors.New("momo: payment request rejected")
	ErrBadRequest    = errors.New("momo: bad request")
	ErrUnauthorized  = errors.New("momo: unauthorized")
	ErrServerError   = errors.New("momo: server error")
	ErrNotConfigured = errors.New("momo: not configured")
)

var statusErrorMap = map[int]error{
	http.StatusBadRequest:   ErrBadRequest,
	http.StatusUnauthorized: ErrUnauthorized,
	http.StatusForbidden:    ErrUnauthorized,
}

func mapStatusToError(statusCode int) error {
	if err, ok := statusErrorMap[statusCode]; ok {
		return err
	}
	return ErrServerError
}
