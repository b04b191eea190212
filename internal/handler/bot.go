package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rosterbot/internal/dispatch"
	"rosterbot/internal/flow"
	"rosterbot/internal/message"
	"rosterbot/internal/metrics"
	"rosterbot/internal/plugin"
)

// Reply is a message the transport should send back
type Reply struct {
	// To is the sender's phone number
	To      string
	GroupID string
	// QuoteTimestamp identifies the inbound message being answered
	QuoteTimestamp int64
	Text           string
}

// Bot routes inbound envelopes either to the user's active flow or to the
// command dispatcher
type Bot struct {
	registry   *plugin.Registry
	extractor  *message.Extractor
	dispatcher *dispatch.Dispatcher
	flows      *flow.Engine
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewBot creates the message pipeline. m may be nil.
func NewBot(registry *plugin.Registry, extractor *message.Extractor, dispatcher *dispatch.Dispatcher, flows *flow.Engine, m *metrics.Metrics, log zerolog.Logger) *Bot {
	return &Bot{
		registry:   registry,
		extractor:  extractor,
		dispatcher: dispatcher,
		flows:      flows,
		metrics:    m,
		log:        log.With().Str("component", "bot").Logger(),
	}
}

// HandleRaw parses a transport block and handles it
func (b *Bot) HandleRaw(ctx context.Context, raw string) (Reply, bool) {
	return b.Handle(ctx, message.ParseEnvelope(raw))
}

// Handle processes one envelope. It reports false when nothing should be sent.
func (b *Bot) Handle(ctx context.Context, env message.Envelope) (Reply, bool) {
	env.Body = message.Sanitize(env.Body)
	if !env.Valid() {
		b.metrics.Envelope(metrics.EnvelopeRejected)
		b.log.Debug().
			Bool("has_sender", env.Sender != "").
			Bool("has_body", env.Body != "").
			Msg("Dropping envelope without sender or body")
		return Reply{}, false
	}

	log := b.log.With().
		Str("request_id", uuid.NewString()).
		Str("sender", env.Sender).
		Str("group", env.GroupID).
		Logger()
	ctx = log.WithContext(ctx)

	text, addressed := b.extractor.StripPrefix(env.Body)
	if env.IsGroup() && !addressed {
		b.metrics.Envelope(metrics.EnvelopeIgnored)
		return Reply{}, false
	}
	b.metrics.Envelope(metrics.EnvelopeAccepted)

	parsed, cmd, isCommand := b.extractor.Parse(env)

	activeFlow, step, inFlow, err := b.flows.Active(ctx, env.Sender)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load flow state")
		return b.reply(env, flow.ErrorText)
	}

	if inFlow && !b.interrupts(cmd, isCommand) {
		log.Debug().Str("flow", activeFlow).Str("step", step).Msg("Routing to flow")
		return b.reply(env, b.flows.HandleInput(ctx, env.Sender, text))
	}

	if !isCommand {
		log.Debug().Msg("No command found")
		return Reply{}, false
	}

	log.Debug().Str("command", parsed.Command).Str("args", parsed.Args).Msg("Dispatching")
	return b.reply(env, b.dispatcher.Dispatch(ctx, parsed))
}

// interrupts reports whether a message sent during a flow is an explicit
// command rather than an answer to the flow's question
func (b *Bot) interrupts(cmd message.Command, ok bool) bool {
	if !ok || !cmd.Addressed {
		return false
	}
	_, exact := b.registry.Resolve(cmd.Name)
	return exact
}

func (b *Bot) reply(env message.Envelope, text string) (Reply, bool) {
	if text == "" {
		return Reply{}, false
	}
	return Reply{
		To:             env.Sender,
		GroupID:        env.GroupID,
		QuoteTimestamp: env.Timestamp,
		Text:           text,
	}, true
}
