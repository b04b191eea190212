// Package commands contains the built-in command modules. Each module
// registers its commands explicitly against a plugin.Registry.
package commands

import (
	"context"
	"fmt"

	"rosterbot/internal/flow"
	"rosterbot/internal/plugin"
	"rosterbot/internal/roster"
)

// Categories used in help output
const (
	CategoryGeneral = "general"
	CategoryRoster  = "roster"
	CategoryFlow    = "conversation"
	CategoryAdmin   = "admin"
)

// Reloader re-runs plugin registration
type Reloader interface {
	Reload(ctx context.Context) error
}

// Module is a group of commands that registers itself
type Module interface {
	Register(reg *plugin.Registry) error
}

// Deps are the collaborators command handlers write through
type Deps struct {
	Registry *plugin.Registry
	Roster   *roster.Service
	Flows    *flow.Engine
	Reloader Reloader
}

// Modules returns the built-in modules in registration order
func Modules(deps Deps) []Module {
	return []Module{
		&General{registry: deps.Registry},
		&Roster{roster: deps.Roster, flows: deps.Flows},
		&Conversation{flows: deps.Flows},
		&Admin{registry: deps.Registry, reloader: deps.Reloader},
	}
}

// RegisterAll registers every module and stops at the first failure
func RegisterAll(reg *plugin.Registry, modules []Module) error {
	for _, m := range modules {
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("failed to register %T: %w", m, err)
		}
	}
	return nil
}

func registerEach(reg *plugin.Registry, cmds []plugin.Command) error {
	for _, c := range cmds {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
