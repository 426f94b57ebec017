package session

import (
	"context"
	"fmt"
)

// Backend performs the wire calls for one identity kind.
type Backend[C, I any] interface {
	// Login authenticates creds. A nil identity with a nil error means the
	// login response carries no profile and the store must fetch it.
	Login(ctx context.Context, creds C) (*I, error)

	// Current validates the session and returns the fresh identity.
	// cached is the identity held before the call, possibly nil.
	Current(ctx context.Context, cached *I) (*I, error)

	// Logout ends the remote session. cached may be nil.
	Logout(ctx context.Context, cached *I) error
}

// Codec encodes the persisted slice of a store.
type Codec[I any] interface {
	// Key is the durable storage key
	Key() string

	Encode(authenticated bool, identity *I) ([]byte, error)

	// Decode returns the persisted flag and identity. Stores only restore
	// a session when both are present.
	Decode(raw []byte) (authenticated bool, identity *I, err error)
}

// PersistEnvelope is the layout written to durable storage:
// {"state": {...}, "version": 0}.
type PersistEnvelope[T any] struct {
	State   T   `json:"state"`
	Version int `json:"version"`
}

// RejectedError is returned by backends when the server answered 2xx
// with status:false.
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: rejected", e.Op)
	}
	return fmt.Sprintf("%s: rejected: %s", e.Op, e.Message)
}
