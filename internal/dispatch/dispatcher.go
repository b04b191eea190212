package dispatch

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"rosterbot/internal/message"
	"rosterbot/internal/metrics"
	"rosterbot/internal/models"
	"rosterbot/internal/plugin"
)

// DefaultFuzzyCutoff is the minimum normalized similarity for a fuzzy match
const DefaultFuzzyCutoff = 0.75

const (
	// InternalErrorText is the only thing users see of unexpected failures
	InternalErrorText = "Sorry, something went wrong while handling that. Please try again later."
	// PermissionDeniedText answers commands the sender may not run
	PermissionDeniedText = "You don't have permission to use that command."
)

// Authorizer reports the role of a sender
type Authorizer func(sender string) models.Role

type Dispatcher struct {
	registry   *plugin.Registry
	cutoff     float64
	authorizer Authorizer
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithFuzzyCutoff overrides DefaultFuzzyCutoff
func WithFuzzyCutoff(cutoff float64) Option {
	return func(d *Dispatcher) {
		if cutoff > 0 && cutoff <= 1 {
			d.cutoff = cutoff
		}
	}
}

// WithAuthorizer enables role checks for commands that require one
func WithAuthorizer(a Authorizer) Option {
	return func(d *Dispatcher) { d.authorizer = a }
}

// WithMetrics records dispatch outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher over registry
func New(registry *plugin.Registry, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		cutoff:   DefaultFuzzyCutoff,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Lookup resolves name exactly, then by fuzzy match. A registered but
// disabled alias never falls through to a similar command.
func (d *Dispatcher) Lookup(name string) (plugin.Descriptor, bool) {
	if name == "" {
		return plugin.Descriptor{}, false
	}
	if desc, ok := d.registry.Resolve(name); ok {
		return desc, true
	}
	if _, registered := d.registry.Canonical(name); registered {
		return plugin.Descriptor{}, false
	}
	candidate, ok := BestMatch(name, d.registry.Canonicals(), d.cutoff)
	if !ok {
		return plugin.Descriptor{}, false
	}
	desc, ok := d.registry.Resolve(candidate)
	if ok {
		d.metrics.FuzzyMatch()
		d.log.Debug().Str("typed", name).Str("command", desc.Name).Msg("Fuzzy matched command")
	}
	return desc, ok
}

// Dispatch runs the command in parsed and returns the reply text. An empty
// reply means nothing should be sent.
func (d *Dispatcher) Dispatch(ctx context.Context, parsed message.Parsed) string {
	if parsed.Command == "" {
		return ""
	}

	desc, ok := d.Lookup(parsed.Command)
	if !ok {
		d.metrics.Command(parsed.Command, metrics.OutcomeUnresolved)
		return ""
	}

	if desc.RequiredRole != "" && d.authorizer != nil && !hasRole(d.authorizer(parsed.Sender), desc.RequiredRole) {
		d.metrics.Command(desc.Name, metrics.OutcomeDenied)
		d.log.Warn().Str("command", desc.Name).Str("sender", parsed.Sender).Msg("Permission denied")
		return PermissionDeniedText
	}

	req := plugin.Request{
		Command:   desc.Name,
		Args:      parsed.Args,
		Sender:    parsed.Sender,
		GroupID:   parsed.GroupID,
		Timestamp: parsed.Timestamp,
	}

	reply, err := d.invoke(ctx, desc, req)
	if err != nil {
		if text, ok := plugin.UserText(err); ok {
			d.metrics.Command(desc.Name, outcomeFor(err))
			return text
		}
		d.metrics.Command(desc.Name, metrics.OutcomeInternal)
		d.log.Error().Err(err).
			Str("command", desc.Name).
			Str("args", parsed.Args).
			Str("sender", parsed.Sender).
			Msg("Command failed")
		return InternalErrorText
	}

	if !utf8.ValidString(reply) {
		d.metrics.Command(desc.Name, metrics.OutcomeMalformed)
		d.log.Warn().Str("command", desc.Name).Msg("Handler returned malformed reply")
		return ""
	}

	d.metrics.Command(desc.Name, metrics.OutcomeOK)
	return reply
}

// invoke turns handler panics into errors
func (d *Dispatcher) invoke(ctx context.Context, desc plugin.Descriptor, req plugin.Request) (reply string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return desc.Handler(ctx, req)
}

func outcomeFor(err error) string {
	var usage *plugin.UsageError
	if errors.As(err, &usage) {
		return metrics.OutcomeUsage
	}
	return metrics.OutcomeDomain
}

func hasRole(have, need models.Role) bool {
	if need == "" || need == models.RoleUser {
		return true
	}
	return have == need || have == models.RoleAdmin
}

// BestMatch returns the candidate most similar to name, if it clears
// cutoff. Ties go to the alphabetically first candidate.
func BestMatch(name string, candidates []string, cutoff float64) (string, bool) {
	best, bestScore := "", 0.0
	for _, c := range candidates {
		score := Similarity(name, c)
		if score > bestScore || (score == bestScore && best != "" && c < best) {
			best, bestScore = c, score
		}
	}
	if best == "" || bestScore < cutoff {
		return "", false
	}
	return best, true
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), in runes
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
