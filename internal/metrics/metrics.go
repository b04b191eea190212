package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Dispatch outcomes
const (
	OutcomeOK         = "ok"
	OutcomeUsage      = "usage_error"
	OutcomeDomain     = "domain_error"
	OutcomeInternal   = "internal_error"
	OutcomeMalformed  = "malformed"
	OutcomeDenied     = "denied"
	OutcomeUnresolved = "unresolved"
)

// Envelope results
const (
	EnvelopeAccepted = "accepted"
	EnvelopeRejected = "rejected"
	EnvelopeIgnored  = "ignored"
)

// Metrics groups the bot's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	commands        *prometheus.CounterVec
	fuzzyMatches    prometheus.Counter
	flowTransitions *prometheus.CounterVec
	envelopes       *prometheus.CounterVec
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterbot_commands_total",
			Help: "Dispatched commands by canonical name and outcome.",
		}, []string{"command", "outcome"}),
		fuzzyMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosterbot_fuzzy_matches_total",
			Help: "Commands resolved through fuzzy matching.",
		}),
		flowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterbot_flow_transitions_total",
			Help: "Flow inputs handled by flow and step.",
		}, []string{"flow", "step"}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterbot_envelopes_total",
			Help: "Inbound envelopes by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.commands,
		m.fuzzyMatches,
		m.flowTransitions,
		m.envelopes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Command counts one dispatch outcome
func (m *Metrics) Command(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

// FuzzyMatch counts a command resolved by similarity
func (m *Metrics) FuzzyMatch() {
	if m == nil {
		return
	}
	m.fuzzyMatches.Inc()
}

// FlowTransition counts one flow input
func (m *Metrics) FlowTransition(flow, step string) {
	if m == nil {
		return
	}
	m.flowTransitions.WithLabelValues(flow, step).Inc()
}

// Envelope counts an inbound envelope by result
func (m *Metrics) Envelope(result string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(result).Inc()
}

// EnvelopeCounter returns the counter behind Envelope(result)
func (m *Metrics) EnvelopeCounter(result string) prometheus.Counter {
	return m.envelopes.WithLabelValues(result)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve runs the metrics endpoint on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve metrics on %s: %w", addr, err)
	}
	return nil
}
