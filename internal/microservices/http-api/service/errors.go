package service

import (
	"errors"
	"fmt"

	"notifyhub/internal/microservices/http-api/repository"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = repository.ErrNotFound
	ErrVersionConflict = repository.ErrVersionConflict
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
