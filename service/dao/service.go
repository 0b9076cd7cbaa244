package dao

import (
	"context"
)

// Service abstracts keyed persistence for pipeline entities such as approval
// sessions, telemetry records and history entries. Implementations must be
// safe for concurrent use.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
