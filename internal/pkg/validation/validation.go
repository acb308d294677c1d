package validation

import (
	"fmt"
	"strings"

	"salesquota-backend/internal/domain"
	"salesquota-backend/internal/pkg/bizdate"

	"github.com/google/uuid"
)

// RequiredUUID parses a mandatory UUID field; the error names the field.
func RequiredUUID(value, field string) (uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid UUID format for %s", domain.ErrInvalidInput, field)
	}
	return id, nil
}

// OptionalUUID parses a UUID field that may be absent. Empty means nil.
func OptionalUUID(value *string, field string) (*uuid.UUID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	id, err := RequiredUUID(*value, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// OptionalDate accepts "" (meaning the business today) or a YYYY-MM-DD date.
func OptionalDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || bizdate.Valid(value) {
		return value, nil
	}
	return "", domain.ErrInvalidDate
}
