// Package app wires the bot together and owns its lifecycle: New opens
// storage and loads plugins, Reload re-runs plugin registration, Close
// releases everything.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"rosterbot/internal/commands"
	"rosterbot/internal/config"
	"rosterbot/internal/dispatch"
	"rosterbot/internal/flow"
	"rosterbot/internal/handler"
	"rosterbot/internal/message"
	"rosterbot/internal/metrics"
	"rosterbot/internal/models"
	"rosterbot/internal/plugin"
	"rosterbot/internal/roster"
	"rosterbot/internal/storage"
	"rosterbot/internal/whatsapp"
)

type App struct {
	Config     *config.Config
	Store      *storage.Storage
	Registry   *plugin.Registry
	Roster     *roster.Service
	Flows      *flow.Engine
	Dispatcher *dispatch.Dispatcher
	Bot        *handler.Bot
	Metrics    *metrics.Metrics

	log     zerolog.Logger
	admins  map[string]struct{}
	modules []commands.Module

	reloadMu sync.Mutex
	overlay  config.Overlay
}

// New opens the database and registers every command module. A duplicate
// alias is fatal here.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := storage.Open(cfg.DBDriver, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Store:    store,
		Registry: plugin.NewRegistry(),
		Metrics:  metrics.New(),
		log:      log.With().Str("component", "app").Logger(),
		admins:   make(map[string]struct{}),
	}
	for _, phone := range cfg.Admins {
		if phone = whatsapp.NormalizePhoneNumber(phone, cfg.DefaultCountryCode); phone != "" {
			a.admins[phone] = struct{}{}
		}
	}

	a.Roster = roster.NewService(store, nil, log)
	a.Flows = flow.NewEngine(store.Flows(), a.Roster, a.Metrics, log)
	a.Dispatcher = dispatch.New(a.Registry, log,
		dispatch.WithFuzzyCutoff(cfg.FuzzyCutoff),
		dispatch.WithAuthorizer(a.Authorize),
		dispatch.WithMetrics(a.Metrics),
	)
	a.Bot = handler.NewBot(a.Registry, message.NewExtractor(a.Registry, cfg.Prefixes), a.Dispatcher, a.Flows, a.Metrics, log)
	a.modules = commands.Modules(commands.Deps{
		Registry: a.Registry,
		Roster:   a.Roster,
		Flows:    a.Flows,
		Reloader: a,
	})

	overlay, err := config.LoadOverlay(cfg.CommandsFile)
	if err == nil {
		err = a.populate(overlay)
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}
	a.overlay = overlay

	a.log.Info().
		Int("commands", len(a.Registry.ListAll())).
		Int("admins", len(a.admins)).
		Str("driver", cfg.DBDriver).
		Msg("Application initialized")
	return a, nil
}

// Authorize maps configured admin phones to models.RoleAdmin
func (a *App) Authorize(sender string) models.Role {
	if _, ok := a.admins[sender]; ok {
		return models.RoleAdmin
	}
	return models.RoleUser
}

// Reload clears the registry and registers every module again with a fresh
// overlay. If the new overlay cannot be applied the previous one is restored.
func (a *App) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	overlay, err := config.LoadOverlay(a.Config.CommandsFile)
	if err != nil {
		return err
	}

	if err := a.populate(overlay); err != nil {
		a.log.Error().Err(err).Msg("Reload failed, restoring previous commands")
		if restoreErr := a.populate(a.overlay); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		return err
	}
	a.overlay = overlay

	a.log.Info().Int("commands", len(a.Registry.ListAll())).Msg("Plugins reloaded")
	return nil
}

func (a *App) populate(overlay config.Overlay) error {
	a.Registry.Clear()
	if err := commands.RegisterAll(a.Registry, a.modules); err != nil {
		return err
	}
	return a.applyOverlay(overlay)
}

func (a *App) applyOverlay(overlay config.Overlay) error {
	all := a.Registry.ListAll()
	for name, extra := range overlay.Aliases {
		canonical, ok := a.Registry.Canonical(name)
		if !ok {
			a.log.Warn().Str("command", name).Msg("Overlay aliases an unknown command")
			continue
		}
		desc := all[canonical]
		err := a.Registry.Register(plugin.Command{
			Name:         desc.Name,
			Aliases:      append(append([]string{}, desc.Aliases...), extra...),
			Handler:      desc.Handler,
			Help:         desc.Help,
			HelpVisible:  desc.HelpVisible,
			Category:     desc.Category,
			RequiredRole: desc.RequiredRole,
		})
		if err != nil {
			return err
		}
	}

	for _, name := range overlay.Disabled {
		if err := a.Registry.Disable(name); err != nil {
			a.log.Warn().Err(err).Str("command", name).Msg("Overlay disables an unknown command")
		}
	}
	return nil
}

// Close releases the database
func (a *App) Close() error {
	return a.Store.Close()
}
