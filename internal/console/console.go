// Package console is a line transport: it reads signal-cli style envelope
// blocks from a reader and writes replies to a writer.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"rosterbot/internal/handler"
	"rosterbot/internal/message"
)

// Handler answers one inbound envelope
type Handler interface {
	Handle(ctx context.Context, env message.Envelope) (handler.Reply, bool)
}

// maxEnvelopeLine bounds a single input line
const maxEnvelopeLine = 1 << 20

type Transport struct {
	in      io.Reader
	out     io.Writer
	handler Handler
	log     zerolog.Logger

	mu sync.Mutex
}

// New creates a console transport
func New(in io.Reader, out io.Writer, h Handler, log zerolog.Logger) *Transport {
	return &Transport{
		in:      in,
		out:     out,
		handler: h,
		log:     log.With().Str("component", "console").Logger(),
	}
}

// Run handles envelopes until the input ends or ctx is cancelled
func (t *Transport) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxEnvelopeLine)
		done <- message.SplitEnvelopes(scanner, func(block string) {
			if ctx.Err() != nil {
				return
			}
			t.handle(ctx, block)
		})
	}()

	t.log.Info().Msg("Reading envelopes")
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to read envelopes: %w", err)
		}
		t.log.Info().Msg("Input closed")
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (t *Transport) handle(ctx context.Context, block string) {
	reply, ok := t.handler.Handle(ctx, message.ParseEnvelope(block))
	if !ok {
		return
	}
	if err := t.Write(reply); err != nil {
		t.log.Error().Err(err).Str("to", reply.To).Msg("Failed to write reply")
	}
}

// Write prints reply in the same block style as the input
func (t *Transport) Write(reply handler.Reply) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	header := "Reply to: " + reply.To
	if reply.GroupID != "" {
		header += "\nGroup: " + reply.GroupID
	}
	if reply.QuoteTimestamp != 0 {
		header += fmt.Sprintf("\nQuote timestamp: %d", reply.QuoteTimestamp)
	}
	_, err := fmt.Fprintf(t.out, "%s\nBody: %s\n\n", header, reply.Text)
	return err
}
