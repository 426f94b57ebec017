package session

import "github.com/PicoHBK/clubnorte/internal/utils"

// Status is the authentication phase of a store.
type Status int

const (
	StatusLoggedOut Status = iota
	StatusLoggingIn
	StatusLoggedIn
	StatusFailed // logged out with a failure message
)

func (s Status) String() string {
	switch s {
	case StatusLoggedOut:
		return "logged_out"
	case StatusLoggingIn:
		return "logging_in"
	case StatusLoggedIn:
		return "logged_in"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Action is the verb a store is currently waiting on.
type Action int

const (
	ActionNone Action = iota
	ActionLogin
	ActionLogout
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionLogin:
		return "login"
	case ActionLogout:
		return "logout"
	case ActionRefresh:
		return "refresh"
	}
	return "unknown"
}

// Snapshot is an immutable view of a store. Fields are private and only
// the constructors below build snapshots, so a logged-in snapshot always
// carries an identity and a failed one always carries a message.
type Snapshot[I any] struct {
	status   Status
	identity *I
	message  string
	warning  string
	pending  Action
}

func loggedOut[I any]() Snapshot[I] {
	return Snapshot[I]{status: StatusLoggedOut}
}

func loggingIn[I any]() Snapshot[I] {
	return Snapshot[I]{status: StatusLoggingIn, pending: ActionLogin}
}

func loggedIn[I any](identity *I) Snapshot[I] {
	if identity == nil {
		return loggedOut[I]()
	}
	return Snapshot[I]{status: StatusLoggedIn, identity: identity}
}

func failed[I any](message string) Snapshot[I] {
	return Snapshot[I]{status: StatusFailed, message: message}
}

// withWarning keeps a logged-in snapshot and notes a non-fatal refresh failure.
func (s Snapshot[I]) withWarning(warning string) Snapshot[I] {
	if s.status != StatusLoggedIn {
		return s
	}
	s.warning = warning
	return s
}

func (s Snapshot[I]) withPending(a Action) Snapshot[I] {
	s.pending = a
	return s
}

func (s Snapshot[I]) Status() Status {
	return s.status
}

// IsAuthenticated is true only in StatusLoggedIn.
func (s Snapshot[I]) IsAuthenticated() bool {
	return s.status == StatusLoggedIn
}

// IsLoading is true while any action is waiting on the network.
func (s Snapshot[I]) IsLoading() bool {
	return s.pending != ActionNone
}

// Pending tells which action is in flight.
func (s Snapshot[I]) Pending() Action {
	return s.pending
}

// Error returns the failure message, empty unless StatusFailed.
func (s Snapshot[I]) Error() string {
	return s.message
}

// Warning returns the last non-fatal refresh failure while logged in.
func (s Snapshot[I]) Warning() string {
	return s.warning
}

// Identity returns a copy of the cached identity, or nil.
func (s Snapshot[I]) Identity() *I {
	return cloneIdentity(s.identity)
}

func cloneIdentity[I any](identity *I) *I {
	if identity == nil {
		return nil
	}
	if c, ok := any(identity).(interface{ Clone() *I }); ok {
		return c.Clone()
	}
	return utils.Clone(identity)
}
