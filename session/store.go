// Package session implements the client-side authentication state machine
// shared by the staff user and point-of-sale terminal stores.
//
//	LoggedOut --Login--> LoggingIn --ok--> LoggedIn
//	LoggingIn --failure--> Failed (logged out, message set)
//	LoggedIn  --FetchCurrent ok--> LoggedIn (identity refreshed)
//	LoggedIn  --FetchCurrent 401/403 or status:false--> Failed (after Logout)
//	any       --Logout--> LoggedOut
//
// Every action takes a new generation and cancels the action in flight.
// A superseded action never writes state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/PicoHBK/clubnorte/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const persistTimeout = 5 * time.Second

// Store tracks authentication for one identity kind.
// C is the credentials type, I the identity type.
type Store[C, I any] struct {
	name     string
	backend  Backend[C, I]
	codec    Codec[I]
	storage  storage.Storage
	messages Messages
	logger   zerolog.Logger

	mu          sync.Mutex
	state       Snapshot[I]
	generation  uint64
	settled     uint64
	cancel      context.CancelFunc
	subscribers map[int]func(Snapshot[I])
	nextSubID   int

	// writes serialises storage writes and guards persisted.
	writes    sync.Mutex
	persisted []byte
}

// Option configures a Store.
type Option func(*options)

type options struct {
	name     string
	storage  storage.Storage
	messages *Messages
	logger   zerolog.Logger
}

// WithName sets the store name used in logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithStorage enables persistence of the codec's slice.
func WithStorage(s storage.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithMessages replaces the failure message table.
func WithMessages(m Messages) Option {
	return func(o *options) {
		o.messages = &m
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a store and rehydrates it from storage when configured.
func New[C, I any](ctx context.Context, backend Backend[C, I], codec Codec[I], opts ...Option) (*Store[C, I], error) {
	if backend == nil {
		return nil, errors.New("[session.New] backend is required")
	}
	if codec == nil {
		return nil, errors.New("[session.New] codec is required")
	}

	o := options{name: "session", logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	messages := DefaultMessages()
	if o.messages != nil {
		messages = *o.messages
	}

	s := &Store[C, I]{
		name:        o.name,
		backend:     backend,
		codec:       codec,
		storage:     o.storage,
		messages:    messages,
		logger:      o.logger.With().Str("store", o.name).Logger(),
		state:       loggedOut[I](),
		subscribers: make(map[int]func(Snapshot[I])),
	}
	if err := s.hydrate(ctx); err != nil {
		return nil, errors.Wrap(err, "[session.New] hydrate")
	}
	return s, nil
}

func (s *Store[C, I]) hydrate(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	raw, err := s.storage.Get(ctx, s.codec.Key())
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "storage.Get")
	}

	authenticated, identity, err := s.codec.Decode(raw)
	if err != nil {
		// A corrupt slice is dropped rather than blocking startup.
		s.logger.Warn().Err(err).Str("key", s.codec.Key()).Msg("Discarding unreadable persisted session")
		return nil
	}
	s.persisted = raw
	switch {
	case authenticated && identity != nil:
		s.state = loggedIn(identity)
		s.logger.Debug().Msg("Session restored from storage")
	case authenticated:
		s.logger.Warn().Msg("Persisted session has no identity, starting logged out")
	}
	return nil
}

// Login authenticates and returns the resulting snapshot. Failures are
// reported through Snapshot.Error, never as a returned error.
func (s *Store[C, I]) Login(ctx context.Context, creds C) Snapshot[I] {
	actx, gen, prev, done := s.begin(ctx, ActionLogin, func(Snapshot[I]) Snapshot[I] {
		return loggingIn[I]()
	})
	defer done()

	identity, err := s.backend.Login(actx, creds)
	if err != nil {
		if isCancelled(actx, err) {
			return s.settle(actx, gen, prev)
		}
		msg := s.messages.ForLogin(err)
		s.logger.Info().Err(err).Str("message", msg).Msg("Login failed")
		return s.settle(actx, gen, failed[I](msg))
	}
	if identity != nil {
		s.logger.Info().Msg("Logged in")
		return s.settle(actx, gen, loggedIn(identity))
	}
	// The login answer carried no profile: fetch it inside the same action.
	return s.refresh(actx, gen, prev, nil, true)
}

// FetchCurrent revalidates the session against the current-identity endpoint.
func (s *Store[C, I]) FetchCurrent(ctx context.Context) Snapshot[I] {
	actx, gen, prev, done := s.begin(ctx, ActionRefresh, func(cur Snapshot[I]) Snapshot[I] {
		return cur.withPending(ActionRefresh)
	})
	defer done()

	return s.refresh(actx, gen, prev, prev.identity, false)
}

func (s *Store[C, I]) refresh(actx context.Context, gen uint64, prev Snapshot[I], cached *I, duringLogin bool) Snapshot[I] {
	identity, err := s.backend.Current(actx, cached)
	if err == nil {
		if identity == nil {
			err = &RejectedError{Op: "current", Message: "empty identity"}
		} else {
			return s.settle(actx, gen, loggedIn(identity))
		}
	}
	if isCancelled(actx, err) {
		return s.settle(actx, gen, prev)
	}

	if msg, invalid := s.messages.invalidatesSession(err); invalid {
		s.logger.Info().Err(err).Msg("Session invalidated by server, logging out")
		if lerr := s.backend.Logout(actx, cached); lerr != nil {
			s.logger.Warn().Err(lerr).Msg("Logout after invalid session failed")
		}
		return s.settle(actx, gen, failed[I](msg))
	}

	s.logger.Warn().Err(err).Msg("Fetching current identity failed")
	switch {
	case duringLogin:
		return s.settle(actx, gen, failed[I](s.messages.ForLogin(err)))
	case prev.status == StatusLoggedIn:
		return s.settle(actx, gen, prev.withPending(ActionNone).withWarning(s.messages.RefreshFailed))
	}
	return s.settle(actx, gen, failed[I](s.messages.RefreshFailed))
}

// Logout ends the session. The remote call is best-effort: local state
// is cleared whatever the network outcome.
func (s *Store[C, I]) Logout(ctx context.Context) Snapshot[I] {
	actx, gen, prev, done := s.begin(ctx, ActionLogout, func(cur Snapshot[I]) Snapshot[I] {
		return cur.withPending(ActionLogout)
	})
	defer done()

	if err := s.backend.Logout(actx, prev.identity); err != nil && !isCancelled(actx, err) {
		s.logger.Warn().Err(err).Msg("Remote logout failed, clearing local session anyway")
	}
	s.logger.Info().Msg("Logged out")
	return s.settle(actx, gen, loggedOut[I]())
}

// InvalidateSession logs out after another endpoint rejected the session.
func (s *Store[C, I]) InvalidateSession(ctx context.Context) {
	s.logger.Info().Msg("Session rejected by an authenticated endpoint")
	s.Logout(ctx)
}

// begin starts a new generation, cancels the action in flight and
// publishes the pending state. done must be called when the action returns.
func (s *Store[C, I]) begin(ctx context.Context, action Action, next func(Snapshot[I]) Snapshot[I]) (context.Context, uint64, Snapshot[I], context.CancelFunc) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.logger.Debug().Str("action", action.String()).Msg("Superseding action in flight")
	}
	s.generation++
	gen := s.generation
	actx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	prev := s.state.withPending(ActionNone)
	if prev.status == StatusLoggingIn {
		// The login being superseded never finished.
		prev = loggedOut[I]()
	}
	s.state = next(prev).withPending(action)
	snap := s.state
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, snap)
	return actx, gen, prev, cancel
}

// settle publishes the outcome of generation gen. Outcomes of superseded
// generations are discarded and the current snapshot is returned instead.
func (s *Store[C, I]) settle(actx context.Context, gen uint64, next Snapshot[I]) Snapshot[I] {
	s.mu.Lock()
	if gen != s.generation {
		snap := s.state
		s.mu.Unlock()
		s.logger.Debug().Uint64("generation", gen).Msg("Discarding superseded result")
		return snap
	}
	s.state = next.withPending(ActionNone)
	s.cancel = nil
	s.settled++
	seq := s.settled
	snap := s.state
	subs := s.subscriberList()
	s.mu.Unlock()

	s.persist(actx, seq, snap)
	notify(subs, snap)
	return snap
}

// persist writes the codec slice of snap when it changed. The write runs
// outside s.mu and is skipped once a later settle has happened.
func (s *Store[C, I]) persist(actx context.Context, seq uint64, snap Snapshot[I]) {
	if s.storage == nil {
		return
	}
	raw, err := s.codec.Encode(snap.IsAuthenticated(), snap.identity)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode session")
		return
	}

	s.writes.Lock()
	defer s.writes.Unlock()
	if !s.isLatestSettle(seq) {
		s.logger.Debug().Uint64("settle", seq).Msg("Skipping superseded session write")
		return
	}
	if string(raw) == string(s.persisted) {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(actx), persistTimeout)
	defer cancel()
	if err := s.storage.Set(ctx, s.codec.Key(), raw); err != nil {
		s.logger.Error().Err(err).Str("key", s.codec.Key()).Msg("Failed to persist session")
		return
	}
	s.persisted = raw
}

func (s *Store[C, I]) isLatestSettle(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq == s.settled
}

// Subscribe registers fn to receive every published snapshot and returns
// a function that removes it. fn runs outside the store lock.
func (s *Store[C, I]) Subscribe(fn func(Snapshot[I])) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Store[C, I]) subscriberList() []func(Snapshot[I]) {
	subs := make([]func(Snapshot[I]), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify[I any](subs []func(Snapshot[I]), snap Snapshot[I]) {
	for _, fn := range subs {
		fn(snap)
	}
}

// Snapshot returns the current state.
func (s *Store[C, I]) Snapshot() Snapshot[I] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store[C, I]) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

func (s *Store[C, I]) IsLoading() bool {
	return s.Snapshot().IsLoading()
}

func (s *Store[C, I]) Pending() Action {
	return s.Snapshot().Pending()
}

func (s *Store[C, I]) Error() string {
	return s.Snapshot().Error()
}

// Identity returns a copy of the cached identity, or nil.
func (s *Store[C, I]) Identity() *I {
	return s.Snapshot().Identity()
}

// Name returns the store name.
func (s *Store[C, I]) Name() string {
	return s.name
}
