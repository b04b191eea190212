package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rosterbot/internal/plugin"
)

// General holds help
type General struct {
	registry *plugin.Registry
}

func (g *General) Register(reg *plugin.Registry) error {
	return registerEach(reg, []plugin.Command{
		{
			Name:        "help",
			Aliases:     []string{"what can you do", "?"},
			Handler:     g.help,
			Help:        "help [command]: list what I can do",
			HelpVisible: true,
			Category:    CategoryGeneral,
		},
	})
}

func (g *General) help(_ context.Context, req plugin.Request) (string, error) {
	if topic := strings.TrimSpace(req.Args); topic != "" {
		desc, ok := g.registry.Resolve(topic)
		if !ok || !desc.HelpVisible {
			return "", plugin.Usagef("I don't know a command called %q. Send 'help' for the list.", topic)
		}
		text := desc.Help
		if len(desc.Aliases) > 1 {
			text += "\nAlso: " + strings.Join(desc.Aliases[1:], ", ")
		}
		return text, nil
	}

	byCategory := make(map[string][]string)
	for _, desc := range g.registry.ListAll() {
		if !desc.Enabled || !desc.HelpVisible {
			continue
		}
		byCategory[desc.Category] = append(byCategory[desc.Category], desc.Help)
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var b strings.Builder
	b.WriteString("Here's what I can do:")
	for _, c := range categories {
		lines := byCategory[c]
		sort.Strings(lines)
		fmt.Fprintf(&b, "\n\n*%s*", title(c))
		for _, l := range lines {
			fmt.Fprintf(&b, "\n- %s", l)
		}
	}
	return b.String(), nil
}

func title(category string) string {
	if category == "" {
		return "Other"
	}
	return strings.ToUpper(category[:1]) + category[1:]
}
