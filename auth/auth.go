// Package auth wires the generic session store to the ClubNorte API for
// the two identity kinds: staff users and point-of-sale terminals.
package auth

import (
	"context"
	"encoding/json"

	"github.com/PicoHBK/clubnorte/session"
)

// API is the part of apiclient.Client the backends need.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
}

// Persisted slice keys. Both stores write {"state": {...}, "version": 0}.
const (
	UserStorageKey      = "user-storage"
	PointSaleStorageKey = "point-sale-auth"
)

// rejected turns a 2xx status:false answer into a session.RejectedError.
func rejected(op, message string) error {
	return &session.RejectedError{Op: op, Message: message}
}

func encodeState[T any](state T) ([]byte, error) {
	return json.Marshal(session.PersistEnvelope[T]{State: state})
}

func decodeState[T any](raw []byte) (T, error) {
	var env session.PersistEnvelope[T]
	err := json.Unmarshal(raw, &env)
	return env.State, err
}
