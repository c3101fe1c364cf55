package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks that subject, holding role, may perform action on object.
	Authorize(ctx context.Context, subject string, role string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
