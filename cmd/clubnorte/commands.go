package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/PicoHBK/clubnorte/auth"
	"github.com/PicoHBK/clubnorte/internal/config"
	"github.com/PicoHBK/clubnorte/internal/utils"
	"github.com/PicoHBK/clubnorte/query"
	"github.com/PicoHBK/clubnorte/session"
	"github.com/PicoHBK/clubnorte/storage"
	"github.com/PicoHBK/clubnorte/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// app holds everything a command needs. Both stores share one cookie jar
// and one storage backend, so a later invocation picks up where the
// previous one left off.
type app struct {
	cfg      config.Config
	store    storage.Storage
	api      *apiclient.Client
	staff    *auth.UserStore
	terminal *auth.PointSaleStore
	logger   zerolog.Logger
	out      io.Writer
}

func newApp(ctx context.Context, c config.Config, logger zerolog.Logger) (*app, error) {
	store, err := storage.Open(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	a, err := newAppWithStorage(ctx, c, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func newAppWithStorage(ctx context.Context, c config.Config, store storage.Storage, logger zerolog.Logger) (*app, error) {
	jar, err := apiclient.NewPersistentJar(ctx, c.GetAPIBaseURL(), store, apiclient.DefaultCookieKey, logger)
	if err != nil {
		return nil, err
	}
	api, err := apiclient.New(c.GetAPIBaseURL(),
		apiclient.WithJar(jar),
		apiclient.WithTimeout(c.GetHTTPTimeout()),
		apiclient.WithUserAgent(c.GetUserAgent()),
		apiclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	staff, err := auth.NewUserStore(ctx, api, session.WithStorage(store), session.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	terminal, err := auth.NewPointSaleStore(ctx, api, session.WithStorage(store), session.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      c,
		store:    store,
		api:      api,
		staff:    staff,
		terminal: terminal,
		logger:   logger,
		out:      os.Stdout,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

type command struct {
	name string
	help string
	run  func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{name: "login", help: "log a staff user in (-email, -password)", run: loginCmd},
	{name: "logout", help: "end the staff session", run: logoutCmd},
	{name: "whoami", help: "show the stored staff session", run: whoamiCmd},
	{name: "refresh", help: "re-fetch the staff profile from the server", run: refreshCmd},
	{name: "terminal-login", help: "open a point-of-sale session (-id, -password)", run: terminalLoginCmd},
	{name: "terminal-logout", help: "close the point-of-sale session", run: terminalLogoutCmd},
	{name: "terminal-status", help: "show the point-of-sale session (-refresh to check the server)", run: terminalStatusCmd},
	{name: "point-sales", help: "list point-of-sale locations", run: pointSalesCmd},
	{name: "serve-fake", help: "run the in-memory API with seed data (-addr)"},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name && c.run != nil {
			return c, true
		}
	}
	return command{}, false
}

var errSessionFailed = errors.New("session action failed")

// report prints the outcome of a store action and turns a failed one into
// an error for the exit code.
func report[I any](a *app, name string, snap session.Snapshot[I]) error {
	if w := snap.Warning(); w != "" {
		fmt.Fprintf(a.out, "warning: %s\n", w)
	}
	if msg := snap.Error(); msg != "" {
		fmt.Fprintf(a.out, "%s: %s\n", name, msg)
		return errors.Wrap(errSessionFailed, msg)
	}
	fmt.Fprintf(a.out, "%s: %s\n", name, snap.Status())
	return nil
}

func loginCmd(ctx context.Context, a *app, args []string) error {
	flags := flag.NewFlagSet("login", flag.ContinueOnError)
	var creds auth.Credentials
	flags.StringVar(&creds.Email, "email", "", "staff email")
	flags.StringVar(&creds.Password, "password", "", "staff password")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := auth.NewValidator().ValidateCredentials(creds); err != nil {
		fmt.Fprintf(a.out, "login: %s\n", err)
		return err
	}

	snap := a.staff.Login(ctx, creds)
	if err := report(a, "login", snap); err != nil {
		return err
	}
	printUser(a.out, snap.Identity())
	return nil
}

func logoutCmd(ctx context.Context, a *app, _ []string) error {
	return report(a, "logout", a.staff.Logout(ctx))
}

func whoamiCmd(_ context.Context, a *app, _ []string) error {
	if !a.staff.IsAuthenticated() {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}
	printUser(a.out, a.staff.Identity())
	return nil
}

func refreshCmd(ctx context.Context, a *app, _ []string) error {
	snap := a.staff.FetchCurrent(ctx)
	if err := report(a, "refresh", snap); err != nil {
		return err
	}
	printUser(a.out, snap.Identity())
	return nil
}

func terminalLoginCmd(ctx context.Context, a *app, args []string) error {
	flags := flag.NewFlagSet("terminal-login", flag.ContinueOnError)
	var creds auth.TerminalCredentials
	flags.IntVar(&creds.TerminalID, "id", 0, "point-of-sale id")
	flags.StringVar(&creds.Password, "password", "", "point-of-sale password")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := auth.NewValidator().ValidateTerminalCredentials(creds); err != nil {
		fmt.Fprintf(a.out, "terminal-login: %s\n", err)
		return err
	}
	return report(a, "terminal-login", a.terminal.Login(ctx, creds))
}

func terminalLogoutCmd(ctx context.Context, a *app, _ []string) error {
	return report(a, "terminal-logout", a.terminal.Logout(ctx))
}

func terminalStatusCmd(ctx context.Context, a *app, args []string) error {
	flags := flag.NewFlagSet("terminal-status", flag.ContinueOnError)
	refresh := flags.Bool("refresh", false, "check the session with the server")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *refresh {
		if err := report(a, "terminal-status", a.terminal.FetchCurrent(ctx)); err != nil {
			return err
		}
	}
	id := a.terminal.CurrentPointSaleID()
	if !a.terminal.IsAuthenticated() || id == nil {
		fmt.Fprintln(a.out, "no point of sale open")
		return nil
	}
	fmt.Fprintf(a.out, "point of sale %d open\n", utils.Value(id))
	return nil
}

func pointSalesCmd(ctx context.Context, a *app, _ []string) error {
	guard := query.NewGuard(a.logger, a.staff)
	client := query.NewClient(
		query.WithGuard(guard),
		query.WithDefaultStaleTime(a.cfg.GetQueryStaleTime()),
		query.WithLogger(a.logger),
	)
	q := query.New(client, "point-sales",
		query.GetJSON[[]users.PointSale](a.api, apiclient.RoutePointSales),
		query.WithEnabled(a.staff.IsAuthenticated))

	res := q.Fetch(ctx)
	switch {
	case res.IsError:
		if apiclient.IsUnauthorized(res.Err) {
			fmt.Fprintln(a.out, "session expired, logged out")
		}
		return res.Err
	case !res.IsSuccess():
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}
	for _, ps := range res.Data {
		fmt.Fprintf(a.out, "%3d  %-20s %s\n", ps.ID, ps.Name, ps.Description)
	}
	return nil
}

func printUser(w io.Writer, u *users.User) {
	if u == nil {
		return
	}
	fmt.Fprintf(w, "%s <%s>\n", u.FullName(), u.Email)
	fmt.Fprintf(w, "role: %s\n", utils.Value(u.RoleName()))
	if u.IsAdminOrEquivalent() {
		fmt.Fprintln(w, "admin: yes")
	}
	names := make([]string, 0, len(u.PermittedPointSales()))
	for _, ps := range u.PermittedPointSales() {
		names = append(names, ps.Name)
	}
	if len(names) > 0 {
		fmt.Fprintf(w, "point sales: %s\n", strings.Join(names, ", "))
	}
}
