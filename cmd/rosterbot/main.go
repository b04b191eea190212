package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rosterbot/internal/app"
	"rosterbot/internal/config"
	"rosterbot/internal/console"
	"rosterbot/internal/roster"
	"rosterbot/internal/storage"
	"rosterbot/internal/whatsapp"
)

func main() {
	root := &cobra.Command{
		Use:           "rosterbot",
		Short:         "Volunteer roster chat bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect the configured transport and answer messages",
		RunE:  runServe,
	}

	volunteersCmd := &cobra.Command{
		Use:   "volunteers",
		Short: "Inspect the roster",
	}
	volunteersCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered volunteers",
			RunE:  runVolunteersList,
		},
		&cobra.Command{
			Use:   "deleted",
			Short: "List deleted registrations",
			RunE:  runVolunteersDeleted,
		},
	)

	commandsCmd := &cobra.Command{
		Use:   "commands",
		Short: "List registered chat commands after applying the overlay",
		RunE:  runCommands,
	}

	root.AddCommand(serveCmd, volunteersCmd, commandsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg), nil
}

// newLogger writes to stderr so the console transport owns stdout
func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(cfg.Level()).With().Timestamp().Logger()
}

type transport interface {
	Run(ctx context.Context) error
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var t transport
	switch cfg.Transport {
	case config.TransportConsole:
		t = console.New(os.Stdin, os.Stdout, a.Bot, log)
	default:
		t, err = whatsapp.NewService(ctx, whatsapp.Config{
			DataDir:            cfg.DataDir,
			DefaultCountryCode: cfg.DefaultCountryCode,
		}, a.Bot, log)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// the console transport ends with its input; take the rest down with it
		defer cancel()
		return t.Run(ctx)
	})
	g.Go(func() error {
		return a.WatchOverlay(ctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return a.Metrics.Serve(ctx, cfg.MetricsAddr, log)
		})
	}

	log.Info().Str("transport", cfg.Transport).Msg("Bot running")
	err = g.Wait()
	log.Info().Msg("Shutting down")
	return err
}

func openRoster(log zerolog.Logger, cfg *config.Config) (*roster.Service, func(), error) {
	store, err := storage.Open(cfg.DBDriver, cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}
	return roster.NewService(store, nil, log), func() { store.Close() }, nil
}

func runVolunteersList(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	svc, closeFn, err := openRoster(log, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	volunteers, err := svc.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list volunteers: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tNAME\tSKILLS\tAVAILABLE\tROLE\tPREFERRED")
	for _, v := range volunteers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
			v.Phone, v.Name, strings.Join(v.Skills, ", "), v.Available, dash(v.CurrentRole), dash(v.PreferredRole))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d volunteers\n", len(volunteers))
	return nil
}

func runVolunteersDeleted(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	svc, closeFn, err := openRoster(log, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	deleted, err := svc.ListDeleted(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list deleted volunteers: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tNAME\tSKILLS\tDELETED AT")
	for _, v := range deleted {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			v.Phone, v.Name, strings.Join(v.Skills, ", "), v.DeletedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runCommands(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	all := a.Registry.ListAll()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tENABLED\tROLE\tCATEGORY\tALIASES")
	for _, name := range names {
		d := all[name]
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			d.Name, d.Enabled, dash(string(d.RequiredRole)), d.Category, strings.Join(d.Aliases[1:], ", "))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
