package domain

import (
	"context"
	"errors"
)

// Resolver is the read-only view the evaluator has over homes and devices.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (Resolved, error)
}

var (
	ErrInvalidScope = errors.New("invalid_scope")
	ErrNotFound     = errors.New("scope_not_found")
)
