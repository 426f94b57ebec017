package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/PicoHBK/clubnorte/session"
	"github.com/PicoHBK/clubnorte/storage"
	"github.com/PicoHBK/clubnorte/storage/memstore"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name string `json:"name"`
}

type creds struct {
	User     string
	Password string
}

type fakeBackend struct {
	login   func(ctx context.Context, c creds) (*profile, error)
	current func(ctx context.Context, cached *profile) (*profile, error)
	logout  func(ctx context.Context, cached *profile) error

	logoutCalls  atomic.Int32
	currentCalls atomic.Int32
}

func (b *fakeBackend) Login(ctx context.Context, c creds) (*profile, error) {
	if b.login == nil {
		return &profile{Name: c.User}, nil
	}
	return b.login(ctx, c)
}

func (b *fakeBackend) Current(ctx context.Context, cached *profile) (*profile, error) {
	b.currentCalls.Add(1)
	if b.current == nil {
		return cached, nil
	}
	return b.current(ctx, cached)
}

func (b *fakeBackend) Logout(ctx context.Context, cached *profile) error {
	b.logoutCalls.Add(1)
	if b.logout == nil {
		return nil
	}
	return b.logout(ctx, cached)
}

type persisted struct {
	User            *profile `json:"user"`
	IsAuthenticated bool     `json:"isAuthenticated"`
}

type profileCodec struct{}

func (profileCodec) Key() string { return "test-storage" }

func (profileCodec) Encode(authenticated bool, identity *profile) ([]byte, error) {
	return json.Marshal(session.PersistEnvelope[persisted]{State: persisted{User: identity, IsAuthenticated: authenticated}})
}

func (profileCodec) Decode(raw []byte) (bool, *profile, error) {
	var env session.PersistEnvelope[persisted]
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, nil, err
	}
	return env.State.IsAuthenticated, env.State.User, nil
}

func newStore(t *testing.T, b *fakeBackend, opts ...session.Option) *session.Store[creds, profile] {
	t.Helper()
	s, err := session.New[creds, profile](context.Background(), b, profileCodec{}, opts...)
	require.NoError(t, err)
	return s
}

func statusErr(code int, message string) error {
	return &apiclient.StatusError{Method: http.MethodPost, Path: "/login", StatusCode: code, Message: message}
}

func networkErr() error {
	return &apiclient.NetworkError{Method: http.MethodPost, Path: "/login", Err: errors.New("dial tcp: connection refused")}
}

func TestNew_RequiresBackendAndCodec(t *testing.T) {
	_, err := session.New[creds, profile](context.Background(), nil, profileCodec{})
	require.Error(t, err)

	_, err = session.New[creds, profile](context.Background(), &fakeBackend{}, nil)
	require.Error(t, err)
}

func TestLogin_WithIdentityInResponse(t *testing.T) {
	b := &fakeBackend{}
	s := newStore(t, b)

	snap := s.Login(context.Background(), creds{User: "ana"})

	require.Equal(t, session.StatusLoggedIn, snap.Status())
	require.True(t, snap.IsAuthenticated())
	require.False(t, snap.IsLoading())
	require.Empty(t, snap.Error())
	require.Equal(t, "ana", s.Identity().Name)
	require.Zero(t, b.currentCalls.Load(), "no profile fetch needed")
}

func TestLogin_FetchesIdentityWhenResponseHasNone(t *testing.T) {
	b := &fakeBackend{
		login: func(context.Context, creds) (*profile, error) { return nil, nil },
		current: func(_ context.Context, cached *profile) (*profile, error) {
			require.Nil(t, cached)
			return &profile{Name: "Ana García"}, nil
		},
	}
	s := newStore(t, b)

	snap := s.Login(context.Background(), creds{User: "a@b.com"})

	require.True(t, snap.IsAuthenticated())
	require.Equal(t, "Ana García", snap.Identity().Name)
	require.EqualValues(t, 1, b.currentCalls.Load())
}

func TestLogin_ProfileFetchFailureLeavesLoggedOut(t *testing.T) {
	b := &fakeBackend{
		login:   func(context.Context, creds) (*profile, error) { return nil, nil },
		current: func(context.Context, *profile) (*profile, error) { return nil, statusErr(http.StatusInternalServerError, "") },
	}
	s := newStore(t, b)

	snap := s.Login(context.Background(), creds{})

	require.Equal(t, session.StatusFailed, snap.Status())
	require.Nil(t, snap.Identity())
	require.Equal(t, session.DefaultMessages().ServerError, snap.Error())
}

func TestLogin_ErrorMessages(t *testing.T) {
	m := session.DefaultMessages()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"401", statusErr(http.StatusUnauthorized, "bad"), "Credenciales incorrectas. Verifica tu email y contraseña."},
		{"422 with server message", statusErr(http.StatusUnprocessableEntity, "El email no es válido"), "El email no es válido"},
		{"422 without message", statusErr(http.StatusUnprocessableEntity, ""), m.InvalidInput},
		{"429", statusErr(http.StatusTooManyRequests, ""), m.RateLimited},
		{"500", statusErr(http.StatusInternalServerError, "stack"), m.ServerError},
		{"network", networkErr(), m.Connection},
		{"other status", statusErr(http.StatusBadGateway, ""), m.Unexpected},
		{"status false with message", &session.RejectedError{Op: "login", Message: "Usuario inactivo"}, "Usuario inactivo"},
		{"status false without message", &session.RejectedError{Op: "login"}, m.InvalidCredentials},
		{"undecodable", errors.New("decode"), m.Unexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, &fakeBackend{
				login: func(context.Context, creds) (*profile, error) { return nil, tt.err },
			})

			snap := s.Login(context.Background(), creds{User: "a@b.com", Password: "wrong"})

			require.Equal(t, tt.want, snap.Error())
			require.False(t, snap.IsAuthenticated())
			require.False(t, snap.IsLoading())
			require.Nil(t, snap.Identity())
		})
	}
}

func TestLogin_NewAttemptClearsError(t *testing.T) {
	fail := true
	s := newStore(t, &fakeBackend{
		login: func(_ context.Context, c creds) (*profile, error) {
			if fail {
				return nil, statusErr(http.StatusUnauthorized, "")
			}
			return &profile{Name: c.User}, nil
		},
	})

	require.NotEmpty(t, s.Login(context.Background(), creds{}).Error())
	fail = false
	snap := s.Login(context.Background(), creds{User: "ana"})
	require.Empty(t, snap.Error())
	require.True(t, snap.IsAuthenticated())
}

func TestLogout_Idempotent(t *testing.T) {
	tests := []struct {
		name      string
		logoutErr error
	}{
		{"reachable", nil},
		{"unreachable", networkErr()},
		{"server error", statusErr(http.StatusInternalServerError, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{logout: func(context.Context, *profile) error { return tt.logoutErr }}
			s := newStore(t, b)

			first := s.Logout(context.Background())
			second := s.Logout(context.Background())

			for _, snap := range []session.Snapshot[profile]{first, second} {
				require.Equal(t, session.StatusLoggedOut, snap.Status())
				require.False(t, snap.IsAuthenticated())
				require.Nil(t, snap.Identity())
				require.Empty(t, snap.Error())
				require.False(t, snap.IsLoading())
			}
		})
	}
}

func TestLogout_ClearsLoggedInSession(t *testing.T) {
	b := &fakeBackend{}
	s := newStore(t, b)
	s.Login(context.Background(), creds{User: "ana"})

	var gotCached *profile
	b.logout = func(_ context.Context, cached *profile) error {
		gotCached = cached
		return networkErr()
	}
	snap := s.Logout(context.Background())

	require.Equal(t, "ana", gotCached.Name)
	require.False(t, snap.IsAuthenticated())
	require.Nil(t, snap.Identity())
}

func TestFetchCurrent_InvalidationCascade(t *testing.T) {
	m := session.DefaultMessages()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"401", statusErr(http.StatusUnauthorized, ""), m.SessionExpired},
		{"403", statusErr(http.StatusForbidden, ""), m.SessionExpired},
		{"status false", &session.RejectedError{Op: "current"}, m.SessionInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			s := newStore(t, b)
			require.True(t, s.Login(context.Background(), creds{User: "ana"}).IsAuthenticated())

			b.current = func(context.Context, *profile) (*profile, error) { return nil, tt.err }
			snap := s.FetchCurrent(context.Background())

			require.EqualValues(t, 1, b.logoutCalls.Load(), "internal logout must fire")
			require.False(t, snap.IsAuthenticated())
			require.Nil(t, snap.Identity())
			require.Equal(t, tt.want, snap.Error())
		})
	}
}

func TestFetchCurrent_RefreshesIdentity(t *testing.T) {
	b := &fakeBackend{}
	s := newStore(t, b)
	s.Login(context.Background(), creds{User: "ana"})

	b.current = func(context.Context, *profile) (*profile, error) { return &profile{Name: "Ana María"}, nil }
	snap := s.FetchCurrent(context.Background())

	require.True(t, snap.IsAuthenticated())
	require.Equal(t, "Ana María", snap.Identity().Name)
}

func TestFetchCurrent_OtherFailureKeepsSession(t *testing.T) {
	b := &fakeBackend{}
	s := newStore(t, b)
	s.Login(context.Background(), creds{User: "ana"})

	b.current = func(context.Context, *profile) (*profile, error) { return nil, networkErr() }
	snap := s.FetchCurrent(context.Background())

	require.True(t, snap.IsAuthenticated())
	require.Equal(t, "ana", snap.Identity().Name)
	require.Empty(t, snap.Error())
	require.Equal(t, session.DefaultMessages().RefreshFailed, snap.Warning())
	require.Zero(t, b.logoutCalls.Load())

	b.current = nil
	require.Empty(t, s.FetchCurrent(context.Background()).Warning(), "a successful refresh clears the warning")
}

func TestFetchCurrent_FromLoggedOutRestoresValidCookieSession(t *testing.T) {
	b := &fakeBackend{
		current: func(context.Context, *profile) (*profile, error) { return &profile{Name: "ana"}, nil },
	}
	s := newStore(t, b)

	snap := s.FetchCurrent(context.Background())
	require.True(t, snap.IsAuthenticated())
}

// blockingBackend parks each call until the test releases it.
type blockingBackend struct {
	fakeBackend
	entered chan struct{}
	release chan error
}

func newBlockingBackend() *blockingBackend {
	b := &blockingBackend{entered: make(chan struct{}, 4), release: make(chan error, 4)}
	b.login = func(_ context.Context, c creds) (*profile, error) {
		b.entered <- struct{}{}
		if err := <-b.release; err != nil {
			return nil, err
		}
		return &profile{Name: c.User}, nil
	}
	b.current = func(_ context.Context, cached *profile) (*profile, error) {
		b.entered <- struct{}{}
		if err := <-b.release; err != nil {
			return nil, err
		}
		return cached, nil
	}
	b.logout = func(context.Context, *profile) error {
		b.entered <- struct{}{}
		return <-b.release
	}
	return b
}

func TestLoadingFlag(t *testing.T) {
	tests := []struct {
		name    string
		action  session.Action
		run     func(s *session.Store[creds, profile]) session.Snapshot[profile]
		outcome error
	}{
		{"login success", session.ActionLogin, func(s *session.Store[creds, profile]) session.Snapshot[profile] {
			return s.Login(context.Background(), creds{User: "ana"})
		}, nil},
		{"login failure", session.ActionLogin, func(s *session.Store[creds, profile]) session.Snapshot[profile] {
			return s.Login(context.Background(), creds{User: "ana"})
		}, statusErr(http.StatusInternalServerError, "")},
		{"refresh success", session.ActionRefresh, func(s *session.Store[creds, profile]) session.Snapshot[profile] {
			return s.FetchCurrent(context.Background())
		}, nil},
		{"refresh failure", session.ActionRefresh, func(s *session.Store[creds, profile]) session.Snapshot[profile] {
			return s.FetchCurrent(context.Background())
		}, networkErr()},
		{"logout success", session.ActionLogout, func(s *session.Store[creds, profile]) session.Snapshot[profile] {
			return s.Logout(context.Background())
		}, nil},
		{"logout failure", session.ActionLogout, func(s *session.Store[creds, profile]) session.Snapshot[profile] {
			return s.Logout(context.Background())
		}, networkErr()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBlockingBackend()
			s := newStore(t, &b.fakeBackend)
			require.False(t, s.IsLoading())

			done := make(chan session.Snapshot[profile], 1)
			go func() { done <- tt.run(s) }()

			<-b.entered
			require.True(t, s.IsLoading())
			require.Equal(t, tt.action, s.Pending())

			b.release <- tt.outcome
			snap := <-done
			require.False(t, snap.IsLoading())
			require.False(t, s.IsLoading())
			require.Equal(t, session.ActionNone, s.Pending())
		})
	}
}

func TestLogin_StatusIsLoggingInWhilePending(t *testing.T) {
	b := newBlockingBackend()
	s := newStore(t, &b.fakeBackend)

	done := make(chan struct{})
	go func() {
		s.Login(context.Background(), creds{User: "ana"})
		close(done)
	}()
	<-b.entered
	require.Equal(t, session.StatusLoggingIn, s.Snapshot().Status())
	require.False(t, s.IsAuthenticated())

	b.release <- nil
	<-done
	require.Equal(t, session.StatusLoggedIn, s.Snapshot().Status())
}

func TestSupersededLoginCannotOverwriteLaterResult(t *testing.T) {
	var calls atomic.Int32
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	var firstCtxErr error
	b := &fakeBackend{
		login: func(ctx context.Context, c creds) (*profile, error) {
			if calls.Add(1) == 1 {
				close(firstEntered)
				<-releaseFirst
				firstCtxErr = ctx.Err()
				// A late answer that ignores cancellation.
				return nil, statusErr(http.StatusUnauthorized, "")
			}
			return &profile{Name: c.User}, nil
		},
	}
	s := newStore(t, b)

	var wg sync.WaitGroup
	wg.Add(1)
	var first session.Snapshot[profile]
	go func() {
		defer wg.Done()
		first = s.Login(context.Background(), creds{User: "old"})
	}()
	<-firstEntered

	second := s.Login(context.Background(), creds{User: "new"})
	require.True(t, second.IsAuthenticated())

	close(releaseFirst)
	wg.Wait()

	require.ErrorIs(t, firstCtxErr, context.Canceled, "superseded call must be cancelled")
	require.True(t, first.IsAuthenticated(), "superseded call reports the current state")
	require.True(t, s.IsAuthenticated())
	require.Empty(t, s.Error())
	require.Equal(t, "new", s.Identity().Name)
}

func TestLogoutSupersedesPendingLogin(t *testing.T) {
	b := newBlockingBackend()
	b.logout = nil
	s := newStore(t, &b.fakeBackend)

	done := make(chan session.Snapshot[profile], 1)
	go func() { done <- s.Login(context.Background(), creds{User: "ana"}) }()
	<-b.entered

	snap := s.Logout(context.Background())
	require.Equal(t, session.StatusLoggedOut, snap.Status())

	b.release <- nil
	late := <-done
	require.False(t, late.IsAuthenticated())
	require.False(t, s.IsAuthenticated())
	require.False(t, s.IsLoading())
}

func TestCallerCancellationRestoresPreviousState(t *testing.T) {
	b := &fakeBackend{}
	s := newStore(t, b)
	s.Login(context.Background(), creds{User: "ana"})

	b.current = func(ctx context.Context, _ *profile) (*profile, error) {
		<-ctx.Done()
		return nil, &apiclient.NetworkError{Err: ctx.Err()}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	snap := s.FetchCurrent(ctx)

	require.True(t, snap.IsAuthenticated())
	require.Empty(t, snap.Warning())
	require.False(t, snap.IsLoading())
	require.Zero(t, b.logoutCalls.Load())
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("restart rehydrates identity", func(t *testing.T) {
		store := memstore.New()
		s := newStore(t, &fakeBackend{}, session.WithStorage(store))
		s.Login(ctx, creds{User: "ana"})

		restarted := newStore(t, &fakeBackend{}, session.WithStorage(store))
		require.True(t, restarted.IsAuthenticated())
		require.Equal(t, "ana", restarted.Identity().Name)
	})

	t.Run("logout persists the cleared slice", func(t *testing.T) {
		store := memstore.New()
		s := newStore(t, &fakeBackend{}, session.WithStorage(store))
		s.Login(ctx, creds{User: "ana"})
		s.Logout(ctx)

		raw, err := store.Get(ctx, "test-storage")
		require.NoError(t, err)
		require.JSONEq(t, `{"state":{"user":null,"isAuthenticated":false},"version":0}`, string(raw))

		restarted := newStore(t, &fakeBackend{}, session.WithStorage(store))
		require.False(t, restarted.IsAuthenticated())
	})

	t.Run("unchanged slice is not rewritten", func(t *testing.T) {
		store := memstore.New()
		s := newStore(t, &fakeBackend{}, session.WithStorage(store))
		s.Logout(ctx)
		writes := store.Writes()
		s.Logout(ctx)
		require.Equal(t, writes, store.Writes())
	})

	t.Run("authenticated without identity starts logged out", func(t *testing.T) {
		store := memstore.New()
		require.NoError(t, store.Set(ctx, "test-storage", []byte(`{"state":{"user":null,"isAuthenticated":true},"version":0}`)))
		s := newStore(t, &fakeBackend{}, session.WithStorage(store))
		require.False(t, s.IsAuthenticated())
	})

	t.Run("corrupt slice is discarded", func(t *testing.T) {
		store := memstore.New()
		require.NoError(t, store.Set(ctx, "test-storage", []byte(`{not json`)))
		s := newStore(t, &fakeBackend{}, session.WithStorage(store))
		require.Equal(t, session.StatusLoggedOut, s.Snapshot().Status())
	})
}

// slowStorage blocks the first Set until release is closed.
type slowStorage struct {
	storage.Storage
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *slowStorage) Set(ctx context.Context, key string, value []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Storage.Set(ctx, key, value)
}

func TestPersistence_WriteRunsOutsideStoreLock(t *testing.T) {
	ctx := context.Background()
	store := &slowStorage{Storage: memstore.New(), entered: make(chan struct{}), release: make(chan struct{})}
	s := newStore(t, &fakeBackend{}, session.WithStorage(store))

	loggedIn := make(chan session.Snapshot[profile], 1)
	go func() { loggedIn <- s.Login(ctx, creds{User: "ana"}) }()
	<-store.entered

	read := make(chan bool, 1)
	go func() { read <- s.IsAuthenticated() }()
	select {
	case ok := <-read:
		require.True(t, ok, "state is published before the write completes")
	case <-time.After(time.Second):
		t.Fatal("getter blocked behind a storage write")
	}

	loggedOut := make(chan session.Snapshot[profile], 1)
	go func() { loggedOut <- s.Logout(ctx) }()
	require.Eventually(t, func() bool { return !s.IsAuthenticated() && !s.IsLoading() }, time.Second, time.Millisecond)

	close(store.release)
	require.True(t, (<-loggedIn).IsAuthenticated())
	require.False(t, (<-loggedOut).IsAuthenticated())

	// The later logout is what storage ends up holding.
	raw, err := store.Get(ctx, "test-storage")
	require.NoError(t, err)
	require.JSONEq(t, `{"state":{"user":null,"isAuthenticated":false},"version":0}`, string(raw))
}

func TestSubscribe(t *testing.T) {
	s := newStore(t, &fakeBackend{})

	var mu sync.Mutex
	var seen []session.Status
	var pending []session.Action
	unsubscribe := s.Subscribe(func(snap session.Snapshot[profile]) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, snap.Status())
		pending = append(pending, snap.Pending())
	})

	s.Login(context.Background(), creds{User: "ana"})
	unsubscribe()
	s.Logout(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []session.Status{session.StatusLoggingIn, session.StatusLoggedIn}, seen)
	require.Equal(t, []session.Action{session.ActionLogin, session.ActionNone}, pending)
}

func TestIdentityIsACopy(t *testing.T) {
	s := newStore(t, &fakeBackend{})
	s.Login(context.Background(), creds{User: "ana"})

	id := s.Identity()
	id.Name = "changed"
	require.Equal(t, "ana", s.Identity().Name)
}

func TestStatusStrings(t *testing.T) {
	require.Equal(t, "logged_in", session.StatusLoggedIn.String())
	require.Equal(t, "failed", session.StatusFailed.String())
	require.Equal(t, "refresh", session.ActionRefresh.String())
	require.Equal(t, "none", session.ActionNone.String())
}
