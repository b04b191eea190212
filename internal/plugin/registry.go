// Package plugin holds the command registry. Command modules register
// explicitly at startup; the dispatcher and the command extractor only read.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"rosterbot/internal/models"
)

// Request is what a handler receives for one inbound command
type Request struct {
	Command   string
	Args      string
	Sender    string
	GroupID   string
	Timestamp int64
}

// Handler executes a command. It returns reply text, a *UsageError or
// *DomainError carrying text for the user, or any other error.
type Handler func(ctx context.Context, req Request) (string, error)

// Command is a registration request
type Command struct {
	Name         string
	Aliases      []string
	Handler      Handler
	Help         string
	HelpVisible  bool
	Category     string
	RequiredRole models.Role
}

// Descriptor is a registered command
type Descriptor struct {
	Name         string
	Aliases      []string
	Handler      Handler
	Help         string
	HelpVisible  bool
	Category     string
	RequiredRole models.Role
	Enabled      bool
}

type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Descriptor
	aliases  map[string]string
	sorted   []string
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Descriptor),
		aliases:  make(map[string]string),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Register binds cmd and its aliases. Binding an alias that already points
// at a different command fails with *DuplicateAliasError and leaves the
// registry unchanged. Registering the same command again replaces it and
// keeps its enabled flag.
func (r *Registry) Register(cmd Command) error {
	name := normalize(cmd.Name)
	if name == "" {
		return fmt.Errorf("command name must not be empty")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %q has no handler", name)
	}

	aliases := []string{name}
	seen := map[string]bool{name: true}
	for _, a := range cmd.Aliases {
		a = normalize(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		aliases = append(aliases, a)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range aliases {
		if existing, ok := r.aliases[a]; ok && existing != name {
			return &DuplicateAliasError{Alias: a, Existing: existing, Requested: name}
		}
	}

	enabled := true
	if prev, ok := r.commands[name]; ok {
		enabled = prev.Enabled
		for _, a := range prev.Aliases {
			delete(r.aliases, a)
		}
	}

	for _, a := range aliases {
		r.aliases[a] = name
	}
	r.commands[name] = &Descriptor{
		Name:         name,
		Aliases:      aliases,
		Handler:      cmd.Handler,
		Help:         cmd.Help,
		HelpVisible:  cmd.HelpVisible,
		Category:     cmd.Category,
		RequiredRole: cmd.RequiredRole,
		Enabled:      enabled,
	}
	r.sorted = nil
	return nil
}

// Resolve maps an alias to its enabled command
func (r *Registry) Resolve(alias string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.aliases[normalize(alias)]
	if !ok {
		return Descriptor{}, false
	}
	d := r.commands[name]
	if d == nil || !d.Enabled {
		return Descriptor{}, false
	}
	return *d, true
}

// Canonical maps an alias to its command name regardless of enabled state
func (r *Registry) Canonical(alias string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.aliases[normalize(alias)]
	return name, ok
}

// ListAll returns a snapshot of every registered command
func (r *Registry) ListAll() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Descriptor, len(r.commands))
	for name, d := range r.commands {
		out[name] = *d
	}
	return out
}

// Enable makes a command resolvable again
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable hides a command from Resolve without dropping its registration
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	canonical, ok := r.aliases[normalize(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	r.commands[canonical].Enabled = enabled
	return nil
}

// Clear drops all commands and aliases
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = make(map[string]*Descriptor)
	r.aliases = make(map[string]string)
	r.sorted = nil
}

// Aliases returns a copy of every alias, longest first. Multi-word aliases
// such as "plan event" therefore win over "plan".
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	if r.sorted != nil {
		defer r.mu.RUnlock()
		return append([]string(nil), r.sorted...)
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sorted == nil {
		sorted := make([]string, 0, len(r.aliases))
		for a := range r.aliases {
			sorted = append(sorted, a)
		}
		sort.Slice(sorted, func(i, j int) bool {
			if len(sorted[i]) != len(sorted[j]) {
				return len(sorted[i]) > len(sorted[j])
			}
			return sorted[i] < sorted[j]
		})
		r.sorted = sorted
	}
	return append([]string(nil), r.sorted...)
}

// Canonicals returns the sorted names of enabled commands
func (r *Registry) Canonicals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name, d := range r.commands {
		if d.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
