package auth

import (
	"context"

	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/PicoHBK/clubnorte/internal/utils"
	"github.com/PicoHBK/clubnorte/session"
	"github.com/pkg/errors"
)

// TerminalCredentials are the point-of-sale login fields. Only the
// password goes in the request body; the ID is part of the path.
type TerminalCredentials struct {
	TerminalID int    `json:"-"`
	Password   string `json:"password"`
}

// Terminal is the identity of an authenticated point of sale. The API
// returns no profile for terminals, so it only holds the ID the login
// was made with.
type Terminal struct {
	ID int `json:"id"`
}

// TerminalMessages returns the message table for terminal logins.
func TerminalMessages() session.Messages {
	m := session.DefaultMessages()
	m.InvalidCredentials = "Contraseña incorrecta para este punto de venta."
	return m
}

// TerminalBackend talks to the point-of-sale auth endpoints.
type TerminalBackend struct {
	api API
}

var _ session.Backend[TerminalCredentials, Terminal] = (*TerminalBackend)(nil)

func NewTerminalBackend(api API) *TerminalBackend {
	return &TerminalBackend{api: api}
}

func (b *TerminalBackend) Login(ctx context.Context, creds TerminalCredentials) (*Terminal, error) {
	var env apiclient.Envelope[apiclient.Empty]
	if err := b.api.Post(ctx, apiclient.LoginPointSalePath(creds.TerminalID), creds, &env); err != nil {
		return nil, errors.Wrap(err, "[TerminalBackend.Login]")
	}
	if !env.Status {
		return nil, rejected("login_point_sale", env.Message)
	}
	return &Terminal{ID: creds.TerminalID}, nil
}

// Current validates the terminal cookie. The answer carries no ID, so the
// cached terminal is returned on success.
func (b *TerminalBackend) Current(ctx context.Context, cached *Terminal) (*Terminal, error) {
	var env apiclient.Envelope[*Terminal]
	if err := b.api.Get(ctx, apiclient.RouteCurrentPointSale, &env); err != nil {
		return nil, errors.Wrap(err, "[TerminalBackend.Current]")
	}
	if !env.Status {
		return nil, rejected("current_point_sale", env.Message)
	}
	if cached != nil {
		return &Terminal{ID: cached.ID}, nil
	}
	if env.Body != nil && env.Body.ID > 0 {
		return env.Body, nil
	}
	return nil, rejected("current_point_sale", "")
}

// Logout re-posts the login path with an empty body. Without a cached
// terminal there is no path to post to and nothing is sent.
func (b *TerminalBackend) Logout(ctx context.Context, cached *Terminal) error {
	if cached == nil {
		return nil
	}
	if err := b.api.Post(ctx, apiclient.LoginPointSalePath(cached.ID), struct{}{}, nil); err != nil {
		return errors.Wrap(err, "[TerminalBackend.Logout]")
	}
	return nil
}

type terminalState struct {
	IsAuthenticated    bool `json:"isAuthenticated"`
	CurrentPointSaleID *int `json:"currentPointSaleId"`
}

// terminalCodec persists only the flag and the terminal ID.
type terminalCodec struct{}

func (terminalCodec) Key() string {
	return PointSaleStorageKey
}

func (terminalCodec) Encode(authenticated bool, t *Terminal) ([]byte, error) {
	state := terminalState{IsAuthenticated: authenticated}
	if t != nil {
		state.CurrentPointSaleID = utils.Ptr(t.ID)
	}
	return encodeState(state)
}

func (terminalCodec) Decode(raw []byte) (bool, *Terminal, error) {
	state, err := decodeState[terminalState](raw)
	if err != nil {
		return false, nil, err
	}
	if state.CurrentPointSaleID == nil {
		return state.IsAuthenticated, nil, nil
	}
	return state.IsAuthenticated, &Terminal{ID: *state.CurrentPointSaleID}, nil
}

// PointSaleStore is the terminal session.
type PointSaleStore struct {
	*session.Store[TerminalCredentials, Terminal]
}

// NewPointSaleStore builds the terminal store with the terminal message
// table and restores any persisted session.
func NewPointSaleStore(ctx context.Context, api API, opts ...session.Option) (*PointSaleStore, error) {
	opts = append([]session.Option{session.WithName("point_sale"), session.WithMessages(TerminalMessages())}, opts...)
	s, err := session.New[TerminalCredentials, Terminal](ctx, NewTerminalBackend(api), terminalCodec{}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewPointSaleStore]")
	}
	return &PointSaleStore{Store: s}, nil
}

// CurrentPointSaleID returns the authenticated terminal ID, or nil.
func (s *PointSaleStore) CurrentPointSaleID() *int {
	t := s.Identity()
	if t == nil {
		return nil
	}
	return utils.Ptr(t.ID)
}
