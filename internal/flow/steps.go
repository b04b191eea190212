package flow

import (
	"errors"
	"fmt"
	"strings"

	"rosterbot/internal/roster"
)

// ConfirmToken must be sent verbatim to finish a deletion
const ConfirmToken = "CONFIRM"

const (
	registrationPrompt = "Please reply with your first and last name (for example: Jane Doe), or 'skip' to register anonymously."
	confirmPrompt      = "This removes you from the volunteer roster. Reply " + ConfirmToken + " to delete your registration, or anything else to cancel."
)

var (
	skipTokens   = tokenSet("skip", "cancel", "none", "-", "n/a")
	affirmTokens = tokenSet("yes", "y", "yeah", "yep", "sure", "ok", "okay")
)

func tokenSet(tokens ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func isToken(set map[string]struct{}, input string) bool {
	_, ok := set[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

// IsSkip reports whether input is one of the skip/cancel tokens
func IsSkip(input string) bool { return isToken(skipTokens, input) }

// IsAffirm reports whether input agrees to continue
func IsAffirm(input string) bool { return isToken(affirmTokens, input) }

func enterRegistration(_ *session, _ string) (string, error) {
	return "Welcome! " + registrationPrompt, nil
}

func registrationInitial(s *session, input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" || IsSkip(input) {
		// an empty name keeps an existing one and defaults new records to models.AnonymousName
		res, err := s.engine.roster.Register(s.ctx, roster.RegisterInput{Phone: s.user})
		if err != nil {
			return "", err
		}
		s.pause()
		return fmt.Sprintf("You're registered as %s. Send 'edit' any time to change your name.", res.Volunteer.Name), nil
	}

	tokens := strings.Fields(input)
	if len(tokens) < 2 {
		return fmt.Sprintf("Thanks, %s! I need your last name too. %s", tokens[0], registrationPrompt), nil
	}

	name := strings.Join(tokens, " ")
	res, err := s.engine.roster.Register(s.ctx, roster.RegisterInput{Phone: s.user, Name: name})
	if err != nil {
		return "", err
	}
	s.pause()
	if res.Created {
		return fmt.Sprintf("Welcome, %s! You're now registered as a volunteer.", res.Volunteer.Name), nil
	}
	return fmt.Sprintf("Thanks, %s! Your registration has been updated.", res.Volunteer.Name), nil
}

func enterEdit(s *session, _ string) (string, error) {
	v, found, err := s.lookup()
	if err != nil {
		return "", err
	}
	if !found {
		return editAskName(s, "")
	}
	s.set("previous_name", v.Name)
	return fmt.Sprintf("Your current name is %s. %s", v.Name, Prompt(Edit, StepAskName)), nil
}

func editAskName(s *session, input string) (string, error) {
	v, found, err := s.lookup()
	if err != nil {
		return "", err
	}
	if !found {
		s.drop(Edit)
		s.start(Registration)
		if strings.TrimSpace(input) == "" {
			return "You're not registered yet. " + registrationPrompt, nil
		}
		return registrationInitial(s, input)
	}

	if strings.TrimSpace(input) == "" || IsSkip(input) {
		s.pause()
		return fmt.Sprintf("No changes made. Your name is still %s.", v.Name), nil
	}

	updated, err := s.engine.roster.UpdateName(s.ctx, s.user, strings.Join(strings.Fields(input), " "))
	if err != nil {
		return "", err
	}
	s.pause()
	return fmt.Sprintf("Done! Your name is now %s.", updated.Name), nil
}

func enterDeletion(s *session, _ string) (string, error) {
	v, found, err := s.lookup()
	if err != nil {
		return "", err
	}
	if !found {
		return deletionInitial(s, "")
	}
	return fmt.Sprintf("Are you sure you want to delete your registration, %s? Reply 'yes' or 'no'.", v.Name), nil
}

func deletionInitial(s *session, input string) (string, error) {
	_, found, err := s.lookup()
	if err != nil {
		return "", err
	}
	if !found {
		s.pause()
		return "You're not registered, so there is nothing to delete.", nil
	}
	if IsAffirm(input) {
		s.advance(StepConfirm)
		return confirmPrompt, nil
	}
	s.pause()
	return "Okay, your registration was not deleted.", nil
}

func deletionConfirm(s *session, input string) (string, error) {
	if strings.TrimSpace(input) != ConfirmToken {
		s.pause()
		return "Deletion cancelled. Your registration is unchanged.", nil
	}
	_, err := s.engine.roster.Delete(s.ctx, s.user)
	if errors.Is(err, roster.ErrNotFound) {
		s.pause()
		return "You're not registered, so there is nothing to delete.", nil
	}
	if err != nil {
		return "", err
	}
	s.pause()
	return "Your registration has been deleted. You can register again any time.", nil
}
