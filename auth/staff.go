package auth

import (
	"context"

	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/PicoHBK/clubnorte/session"
	"github.com/PicoHBK/clubnorte/users"
	"github.com/pkg/errors"
)

// Credentials are the staff login form fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffBackend talks to the staff auth endpoints.
type StaffBackend struct {
	api API
}

var _ session.Backend[Credentials, users.User] = (*StaffBackend)(nil)

func NewStaffBackend(api API) *StaffBackend {
	return &StaffBackend{api: api}
}

// Login posts the credentials. The login answer carries no profile, so it
// always returns a nil user on success.
func (b *StaffBackend) Login(ctx context.Context, creds Credentials) (*users.User, error) {
	var env apiclient.Envelope[apiclient.Empty]
	if err := b.api.Post(ctx, apiclient.RouteLogin, creds, &env); err != nil {
		return nil, errors.Wrap(err, "[StaffBackend.Login]")
	}
	if !env.Status {
		return nil, rejected("login", env.Message)
	}
	return nil, nil
}

func (b *StaffBackend) Current(ctx context.Context, _ *users.User) (*users.User, error) {
	var env apiclient.Envelope[*users.User]
	if err := b.api.Get(ctx, apiclient.RouteCurrentUser, &env); err != nil {
		return nil, errors.Wrap(err, "[StaffBackend.Current]")
	}
	if !env.Status || env.Body == nil {
		return nil, rejected("current_user", env.Message)
	}
	return env.Body, nil
}

func (b *StaffBackend) Logout(ctx context.Context, _ *users.User) error {
	if err := b.api.Post(ctx, apiclient.RouteLogout, nil, nil); err != nil {
		return errors.Wrap(err, "[StaffBackend.Logout]")
	}
	return nil
}

type staffState struct {
	User            *users.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
}

// staffCodec persists the full profile next to the flag.
type staffCodec struct{}

func (staffCodec) Key() string {
	return UserStorageKey
}

func (staffCodec) Encode(authenticated bool, user *users.User) ([]byte, error) {
	return encodeState(staffState{User: user, IsAuthenticated: authenticated})
}

func (staffCodec) Decode(raw []byte) (bool, *users.User, error) {
	state, err := decodeState[staffState](raw)
	if err != nil {
		return false, nil, err
	}
	return state.IsAuthenticated, state.User, nil
}

// UserStore is the staff session.
type UserStore struct {
	*session.Store[Credentials, users.User]
}

// NewUserStore builds the staff store and restores any persisted session.
func NewUserStore(ctx context.Context, api API, opts ...session.Option) (*UserStore, error) {
	opts = append([]session.Option{session.WithName("user")}, opts...)
	s, err := session.New[Credentials, users.User](ctx, NewStaffBackend(api), staffCodec{}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewUserStore]")
	}
	return &UserStore{Store: s}, nil
}

// FullName returns "first last", or "" when logged out.
func (s *UserStore) FullName() string {
	u := s.Identity()
	if u == nil {
		return ""
	}
	return u.FullName()
}

// RoleName returns the role name, or nil when there is no user or no role.
func (s *UserStore) RoleName() *string {
	u := s.Identity()
	if u == nil {
		return nil
	}
	return u.RoleName()
}

// PointSales returns the user's permitted point-of-sale entries, never nil.
func (s *UserStore) PointSales() []users.PointSale {
	u := s.Identity()
	if u == nil {
		return []users.PointSale{}
	}
	return u.PermittedPointSales()
}

func (s *UserStore) IsAdmin() bool {
	u := s.Identity()
	return u != nil && u.IsAdminOrEquivalent()
}
