package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Column widths of the postgres schema.
const (
	maxNameLength     = 80
	maxUsernameLength = 60
	maxEmailLength    = 255
	maxURLLength      = 2048
)

var (
	// ErrValidation is returned when a required field is missing or empty.
	ErrValidation = errors.New("validation failed")

	// ErrBadRequest is returned for malformed field values.
	ErrBadRequest = errors.New("bad request")

	// ErrUnacceptableMember is returned when the target of a relation
	// operation does not exist.
	ErrUnacceptableMember = errors.New("unacceptable relation member")

	// ErrImagesDisabled is returned when no object storage is configured.
	ErrImagesDisabled = errors.New("image storage is not configured")
)

func checkLength(field, value string, limit int) error {
	if utf8.RuneCountInString(strings.TrimSpace(value)) > limit {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrValidation, field, limit)
	}
	return nil
}
