package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknownFormat = errors.New("unknown serialization format")
	ErrDecode        = errors.New("decode failure")
	ErrNotFound      = errors.New("not found")
	ErrUnimplemented = errors.New("capability not implemented")
	ErrTemporary     = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
