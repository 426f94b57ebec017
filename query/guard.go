package query

import (
	"context"
	"sync"

	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/rs/zerolog"
)

// Invalidator is a session that must end when an authenticated endpoint
// answers 401 or 403. session.Store implements it.
type Invalidator interface {
	InvalidateSession(ctx context.Context)
}

// Guard routes query errors through the session-invalidation cascade.
type Guard struct {
	mu           sync.RWMutex
	invalidators []Invalidator
	logger       zerolog.Logger
}

func NewGuard(logger zerolog.Logger, invalidators ...Invalidator) *Guard {
	return &Guard{invalidators: invalidators, logger: logger}
}

// Register adds a session to log out on 401/403.
func (g *Guard) Register(inv Invalidator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invalidators = append(g.invalidators, inv)
}

// Check logs out every registered session when err is a 401 or 403 and
// returns err unchanged.
func (g *Guard) Check(ctx context.Context, err error) error {
	if err == nil || !apiclient.IsUnauthorized(err) {
		return err
	}
	g.mu.RLock()
	invalidators := append([]Invalidator(nil), g.invalidators...)
	g.mu.RUnlock()

	g.logger.Info().Err(err).Int("sessions", len(invalidators)).Msg("Unauthorized response, ending sessions")
	// The logout must finish even if the query's caller gave up.
	ctx = context.WithoutCancel(ctx)
	for _, inv := range invalidators {
		inv.InvalidateSession(ctx)
	}
	return err
}
