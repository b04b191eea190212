package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"rosterbot/internal/models"
	"rosterbot/internal/plugin"
)

// Admin holds the role-gated registry maintenance commands
type Admin struct {
	registry *plugin.Registry
	reloader Reloader
}

func (a *Admin) Register(reg *plugin.Registry) error {
	return registerEach(reg, []plugin.Command{
		{
			Name:         "commands",
			Handler:      a.list,
			Help:         "commands: list every registered command and whether it is enabled",
			Category:     CategoryAdmin,
			RequiredRole: models.RoleAdmin,
		},
		{
			Name:         "enable",
			Handler:      a.toggle(true),
			Help:         "enable <command>: turn a command back on",
			Category:     CategoryAdmin,
			RequiredRole: models.RoleAdmin,
		},
		{
			Name:         "disable",
			Handler:      a.toggle(false),
			Help:         "disable <command>: turn a command off",
			Category:     CategoryAdmin,
			RequiredRole: models.RoleAdmin,
		},
		{
			Name:         "reload",
			Handler:      a.reload,
			Help:         "reload: re-register all commands and re-read the command overlay",
			Category:     CategoryAdmin,
			RequiredRole: models.RoleAdmin,
		},
	})
}

func (a *Admin) list(_ context.Context, _ plugin.Request) (string, error) {
	all := a.registry.ListAll()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%d commands:", len(names))
	for _, name := range names {
		desc := all[name]
		state := "on"
		if !desc.Enabled {
			state = "off"
		}
		fmt.Fprintf(&b, "\n- %s [%s]", name, state)
		if len(desc.Aliases) > 1 {
			fmt.Fprintf(&b, " (%s)", strings.Join(desc.Aliases[1:], ", "))
		}
	}
	return b.String(), nil
}

func (a *Admin) toggle(enable bool) plugin.Handler {
	verb := "disable"
	if enable {
		verb = "enable"
	}
	return func(_ context.Context, req plugin.Request) (string, error) {
		target := strings.TrimSpace(req.Args)
		if target == "" {
			return "", plugin.Usagef("Usage: %s <command>", verb)
		}
		name, ok := a.registry.Canonical(target)
		if !ok {
			return "", plugin.Usagef("There is no command called %q.", target)
		}
		if !enable && a.protected(name) {
			return "", plugin.Domainf("%s can't be disabled.", name)
		}

		var err error
		if enable {
			err = a.registry.Enable(name)
		} else {
			err = a.registry.Disable(name)
		}
		if errors.Is(err, plugin.ErrUnknownCommand) {
			return "", plugin.Usagef("There is no command called %q.", target)
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s is now %sd.", name, verb), nil
	}
}

// protected commands would lock admins out if disabled
func (a *Admin) protected(name string) bool {
	switch name {
	case "enable", "reload", "commands":
		return true
	}
	return false
}

func (a *Admin) reload(ctx context.Context, _ plugin.Request) (string, error) {
	if a.reloader == nil {
		return "", plugin.Domainf("Reloading isn't available here.")
	}
	if err := a.reloader.Reload(ctx); err != nil {
		var dup *plugin.DuplicateAliasError
		if errors.As(err, &dup) {
			return "", &plugin.DomainError{Text: fmt.Sprintf("Reload failed: %s. The previous commands are still active.", dup.Error()), Err: err}
		}
		return "", err
	}
	return fmt.Sprintf("Reloaded %d commands.", len(a.registry.ListAll())), nil
}
