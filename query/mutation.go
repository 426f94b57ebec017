package query

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Mutation wraps a write call. Errors go through the guard and a success
// drops the cached queries it affects.
type Mutation[In, Out any] struct {
	client      *Client
	do          func(ctx context.Context, in In) (Out, error)
	invalidates []string
}

func NewMutation[In, Out any](c *Client, do func(ctx context.Context, in In) (Out, error), invalidates ...string) *Mutation[In, Out] {
	return &Mutation[In, Out]{client: c, do: do, invalidates: invalidates}
}

func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) Result[Out] {
	out, err := m.do(ctx, in)
	if err != nil {
		err = m.client.guard.Check(ctx, err)
		return Result[Out]{IsError: true, Err: errors.Wrap(err, "mutation")}
	}
	m.client.Invalidate(m.invalidates...)
	return Result[Out]{Data: out, UpdatedAt: time.Now()}
}
