package query

import (
	"context"

	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/PicoHBK/clubnorte/internal/errors"
)

// Getter is the read side of apiclient.Client.
type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

// Poster is the write side of apiclient.Client.
type Poster interface {
	Post(ctx context.Context, path string, in, out any) error
}

// GetJSON fetches path and unwraps the envelope body. A status:false
// answer is an ErrRejected error carrying the server message.
func GetJSON[T any](api Getter, path string) Fetcher[T] {
	return func(ctx context.Context) (T, error) {
		var env apiclient.Envelope[T]
		if err := api.Get(ctx, path, &env); err != nil {
			return env.Body, err
		}
		if !env.Status {
			var zero T
			return zero, errors.Wrapf(errors.ErrRejected, "GET %s: %s", path, env.Message)
		}
		return env.Body, nil
	}
}

// PostJSON builds a mutation call that posts In to path and unwraps Out.
func PostJSON[In, Out any](api Poster, path string) func(ctx context.Context, in In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		var env apiclient.Envelope[Out]
		if err := api.Post(ctx, path, in, &env); err != nil {
			return env.Body, err
		}
		if !env.Status {
			var zero Out
			return zero, errors.Wrapf(errors.ErrRejected, "POST %s: %s", path, env.Message)
		}
		return env.Body, nil
	}
}
