package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/PicoHBK/clubnorte/internal/config"
	"github.com/PicoHBK/clubnorte/internal/fakeapi"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Error().Err(err).Msg("clubnorte failed")
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	flags := flag.NewFlagSet("clubnorte", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	quiet := flags.Bool("quiet", false, "do not print the banner")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "usage: clubnorte [-config file] <command> [flags]\n\ncommands:\n")
		for _, c := range commands {
			fmt.Fprintf(flags.Output(), "  %-16s %s\n", c.name, c.help)
		}
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("missing command")
	}

	c, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	setupLogger(c)
	if !*quiet {
		displayAppname(c.GetAppName())
	}

	name, rest := flags.Arg(0), flags.Args()[1:]
	if name == "serve-fake" {
		return serveFake(c, rest)
	}
	cmd, ok := lookup(name)
	if !ok {
		flags.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c, log.Logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return cmd.run(ctx, a, rest)
}

func setupLogger(c config.EnvConfig) {
	zerolog.SetGlobalLevel(c.GetLogLevel())
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// serveFake runs the in-memory API with the seeded directory until a stop
// signal arrives.
func serveFake(c config.Config, args []string) error {
	flags := flag.NewFlagSet("serve-fake", flag.ContinueOnError)
	addr := flags.String("addr", c.GetFakeAPIAddr(), "listen address")
	if err := flags.Parse(args); err != nil {
		return err
	}

	fake := fakeapi.New(fakeapi.WithSecret(c.GetFakeAPISecret()), fakeapi.WithLogger(log.Logger))
	if err := fake.Seed(); err != nil {
		return err
	}
	server := &http.Server{Addr: *addr, Handler: fake, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(server)
	}()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Fake API listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Fake API stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
