package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rosterbot/internal/flow"
	"rosterbot/internal/models"
	"rosterbot/internal/plugin"
	"rosterbot/internal/roster"
)

const notRegisteredText = "You're not registered yet. Send 'register <first name> <last name>' to join."

// Roster holds the volunteer self-service commands
type Roster struct {
	roster *roster.Service
	flows  *flow.Engine
}

func (r *Roster) Register(reg *plugin.Registry) error {
	return registerEach(reg, []plugin.Command{
		{
			Name:        "register",
			Aliases:     []string{"signup", "sign up", "join"},
			Handler:     r.register,
			Help:        "register <first name> <last name>: join the volunteer roster",
			HelpVisible: true,
			Category:    CategoryRoster,
		},
		{
			Name:        "edit",
			Aliases:     []string{"rename", "change name"},
			Handler:     r.edit,
			Help:        "edit [new name]: change the name on your registration",
			HelpVisible: true,
			Category:    CategoryRoster,
		},
		{
			Name:        "delete",
			Aliases:     []string{"unregister", "remove me", "leave"},
			Handler:     r.delete,
			Help:        "delete: remove yourself from the roster",
			HelpVisible: true,
			Category:    CategoryRoster,
		},
		{
			Name:        "whoami",
			Aliases:     []string{"me", "my info", "profile"},
			Handler:     r.whoami,
			Help:        "whoami: show your registration",
			HelpVisible: true,
			Category:    CategoryRoster,
		},
		{
			Name:        "skills",
			Aliases:     []string{"skill", "add skills"},
			Handler:     r.skills,
			Help:        "skills <skill>, <skill>: add skills to your profile",
			HelpVisible: true,
			Category:    CategoryRoster,
		},
		{
			Name:        "available",
			Handler:     r.availability(true),
			Help:        "available: mark yourself available",
			HelpVisible: true,
			Category:    CategoryRoster,
		},
		{
			Name:        "unavailable",
			Aliases:     []string{"away"},
			Handler:     r.availability(false),
			Help:        "unavailable: mark yourself unavailable",
			HelpVisible: true,
			Category:    CategoryRoster,
		},
	})
}

func (r *Roster) register(ctx context.Context, req plugin.Request) (string, error) {
	if strings.TrimSpace(req.Args) == "" {
		v, found, err := r.roster.Lookup(ctx, req.Sender)
		if err != nil {
			return "", err
		}
		if found {
			return fmt.Sprintf("You're already registered as %s. Send 'edit' to change your name.", v.Name), nil
		}
	}
	return r.flows.Begin(ctx, req.Sender, flow.Registration, req.Args)
}

func (r *Roster) edit(ctx context.Context, req plugin.Request) (string, error) {
	return r.flows.Begin(ctx, req.Sender, flow.Edit, req.Args)
}

func (r *Roster) delete(ctx context.Context, req plugin.Request) (string, error) {
	return r.flows.Begin(ctx, req.Sender, flow.Deletion, req.Args)
}

func (r *Roster) whoami(ctx context.Context, req plugin.Request) (string, error) {
	v, found, err := r.roster.Lookup(ctx, req.Sender)
	if err != nil {
		return "", err
	}
	if !found {
		return "", plugin.Domainf(notRegisteredText)
	}
	return FormatVolunteer(v), nil
}

func (r *Roster) skills(ctx context.Context, req plugin.Request) (string, error) {
	skills := models.ParseSkillInput(req.Args)
	if len(skills) == 0 {
		return "", plugin.Usagef("Usage: skills <skill>, <skill>, ... (for example: skills first aid, driving)")
	}
	v, err := r.roster.AddSkills(ctx, req.Sender, skills)
	if errors.Is(err, roster.ErrNotFound) {
		return "", &plugin.DomainError{Text: notRegisteredText, Err: err}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Got it. Your skills: %s", strings.Join(v.Skills, ", ")), nil
}

func (r *Roster) availability(available bool) plugin.Handler {
	return func(ctx context.Context, req plugin.Request) (string, error) {
		_, err := r.roster.SetAvailability(ctx, req.Sender, available)
		if errors.Is(err, roster.ErrNotFound) {
			return "", &plugin.DomainError{Text: notRegisteredText, Err: err}
		}
		if err != nil {
			return "", err
		}
		if available {
			return "You're marked as available. Thank you!", nil
		}
		return "You're marked as unavailable. Send 'available' when you're back.", nil
	}
}

// FormatVolunteer renders a record for chat
func FormatVolunteer(v models.Volunteer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", v.Name)
	fmt.Fprintf(&b, "Phone: %s\n", v.Phone)
	skills := "none yet"
	if len(v.Skills) > 0 {
		skills = strings.Join(v.Skills, ", ")
	}
	fmt.Fprintf(&b, "Skills: %s\n", skills)
	status := "available"
	if !v.Available {
		status = "unavailable"
	}
	fmt.Fprintf(&b, "Status: %s", status)
	if v.CurrentRole != "" {
		fmt.Fprintf(&b, "\nCurrent role: %s", v.CurrentRole)
	}
	if v.PreferredRole != "" {
		fmt.Fprintf(&b, "\nPreferred role: %s", v.PreferredRole)
	}
	return b.String()
}
