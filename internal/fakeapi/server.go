// Package fakeapi is an in-process stand-in for the ClubNorte REST API.
// It serves the auth endpoints and one protected resource with the same
// envelopes, status codes and cookie sessions as the real server.
package fakeapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PicoHBK/clubnorte/auth"
	"github.com/PicoHBK/clubnorte/internal/errors"
	"github.com/PicoHBK/clubnorte/users"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Cookie names for the two session kinds.
const (
	UserCookie      = "token"
	PointSaleCookie = "point_sale_token"
)

const (
	defaultTokenTTL     = 8 * time.Hour
	defaultMaxAttempts  = 5
	defaultSecret       = "clubnorte-dev-secret"
	cleanupEveryRevokes = 64
)

type staffRecord struct {
	user users.User
	hash []byte
}

type terminalRecord struct {
	pointSale users.PointSale
	hash      []byte
}

type failure struct {
	status  int
	message string
}

// Server implements http.Handler.
type Server struct {
	router    chi.Router
	tokens    *tokenCreator
	revoked   *revokedTokens
	validator *auth.Validator
	logger    zerolog.Logger
	cost      int

	mu          sync.Mutex
	staff       map[string]*staffRecord // by lower-cased email
	terminals   map[int]*terminalRecord
	failures    map[string]failure
	calls       map[string]int
	attempts    map[string]int
	issued      map[string]time.Time // jti -> expiry
	maxAttempts int
	revokes     int
}

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the HS256 key used to sign session cookies.
func WithSecret(secret string) Option {
	return func(s *Server) {
		s.tokens.secret = []byte(secret)
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.tokens.ttl = ttl
	}
}

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.tokens.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBcryptCost sets the hashing cost for added accounts. Tests use
// bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) {
		s.cost = cost
	}
}

// WithMaxAttempts sets how many failed logins per account are answered
// before the server starts returning 429.
func WithMaxAttempts(n int) Option {
	return func(s *Server) {
		s.maxAttempts = n
	}
}

// New creates an empty server. Add accounts with AddStaff, AddTerminal or Seed.
func New(opts ...Option) *Server {
	s := &Server{
		tokens:      &tokenCreator{secret: []byte(defaultSecret), ttl: defaultTokenTTL, nowTime: time.Now},
		revoked:     newRevokedTokens(),
		validator:   auth.NewValidator(),
		logger:      zerolog.Nop(),
		cost:        bcrypt.DefaultCost,
		staff:       make(map[string]*staffRecord),
		terminals:   make(map[int]*terminalRecord),
		failures:    make(map[string]failure),
		calls:       make(map[string]int),
		attempts:    make(map[string]int),
		issued:      make(map[string]time.Time),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddStaff registers a staff account. The password is stored as a bcrypt hash.
func (s *Server) AddStaff(user users.User, password string) error {
	email := normaliseEmail(user.Email)
	if email == "" {
		return errors.Wrapf(errors.ErrInvalidInput, "[AddStaff] email is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return errors.Wrapf(err, "[AddStaff] hash password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff[email] = &staffRecord{user: *user.Clone(), hash: hash}
	return nil
}

// AddTerminal registers a point of sale and its terminal password.
func (s *Server) AddTerminal(pointSale users.PointSale, password string) error {
	if pointSale.ID <= 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "[AddTerminal] id must be positive")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return errors.Wrapf(err, "[AddTerminal] hash password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminals[pointSale.ID] = &terminalRecord{pointSale: pointSale, hash: hash}
	return nil
}

// Fail makes every later request to path answer status with message until
// ClearFailures. A 2xx status answers {"status": false} instead.
func (s *Server) Fail(path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, message: message}
}

func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// RevokeSessions invalidates every session issued so far, as a server
// restart or an admin kick would.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	issued := s.issued
	s.issued = make(map[string]time.Time)
	s.mu.Unlock()

	for jti, exp := range issued {
		s.revoked.add(jti, exp)
	}
	s.logger.Info().Int("sessions", len(issued)).Msg("Revoked all sessions")
}

func (s *Server) failureFor(path string) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[path]++
	f, ok := s.failures[path]
	return f, ok
}

func (s *Server) trackIssued(claims *sessionClaims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[claims.ID] = claims.ExpiresAt.Time
}

func (s *Server) revoke(claims *sessionClaims) {
	s.revoked.add(claims.ID, claims.ExpiresAt.Time)

	s.mu.Lock()
	delete(s.issued, claims.ID)
	s.revokes++
	cleanup := s.revokes%cleanupEveryRevokes == 0
	s.mu.Unlock()

	if cleanup {
		s.revoked.cleanup(s.tokens.nowTime())
	}
}

// throttled reports whether key has used up its failed login attempts.
func (s *Server) throttled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[key] >= s.maxAttempts
}

func (s *Server) recordFailedAttempt(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[key]++
}

func (s *Server) resetAttempts(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, key)
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
