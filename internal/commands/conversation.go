package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"rosterbot/internal/flow"
	"rosterbot/internal/plugin"
)

// Conversation lets users pause and resume their flows
type Conversation struct {
	flows *flow.Engine
}

func (c *Conversation) Register(reg *plugin.Registry) error {
	return registerEach(reg, []plugin.Command{
		{
			Name:        "cancel",
			Aliases:     []string{"stop", "never mind"},
			Handler:     c.cancel,
			Help:        "cancel: pause what we're in the middle of",
			HelpVisible: true,
			Category:    CategoryFlow,
		},
		{
			Name:        "resume",
			Aliases:     []string{"continue"},
			Handler:     c.resume,
			Help:        "resume <registration|edit|deletion>: pick a paused conversation back up",
			HelpVisible: true,
			Category:    CategoryFlow,
		},
	})
}

func (c *Conversation) cancel(ctx context.Context, req plugin.Request) (string, error) {
	paused, err := c.flows.Pause(ctx, req.Sender, "")
	if err != nil {
		return "", err
	}
	if paused == "" {
		return "There's nothing to cancel.", nil
	}
	return fmt.Sprintf("Okay, I've paused your %s. Send 'resume %s' to pick it up again.", paused, paused), nil
}

func (c *Conversation) resume(ctx context.Context, req plugin.Request) (string, error) {
	name := strings.ToLower(strings.TrimSpace(req.Args))
	if name == "" {
		state, err := c.flows.State(ctx, req.Sender)
		if err != nil {
			return "", err
		}
		paused := make([]string, 0, len(state.Paused()))
		for f := range state.Paused() {
			paused = append(paused, f)
		}
		if len(paused) == 0 {
			return "", plugin.Domainf("You have nothing paused to resume.")
		}
		sort.Strings(paused)
		return "", plugin.Usagef("Usage: resume <%s>", strings.Join(paused, "|"))
	}

	step, err := c.flows.Resume(ctx, req.Sender, name)
	if errors.Is(err, flow.ErrNotStarted) {
		return "", &plugin.DomainError{Text: fmt.Sprintf("You have no paused %s to resume.", name), Err: err}
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(fmt.Sprintf("Resuming your %s. %s", name, flow.Prompt(name, step))), nil
}
