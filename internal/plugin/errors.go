package plugin

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned by Enable/Disable for unregistered names
var ErrUnknownCommand = errors.New("unknown command")

// UsageError means the caller supplied malformed or incomplete arguments.
// Text is shown to the user verbatim.
type UsageError struct {
	Text string
}

func (e *UsageError) Error() string { return e.Text }

// Usagef builds a UsageError
func Usagef(format string, args ...any) error {
	return &UsageError{Text: fmt.Sprintf(format, args...)}
}

// DomainError means the request was well formed but broke a business rule
type DomainError struct {
	Text string
	Err  error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Text + ": " + e.Err.Error()
	}
	return e.Text
}

func (e *DomainError) Unwrap() error { return e.Err }

// Domainf builds a DomainError
func Domainf(format string, args ...any) error {
	return &DomainError{Text: fmt.Sprintf(format, args...)}
}

// DuplicateAliasError reports an alias already bound to another command.
// It is a configuration bug and aborts plugin loading.
type DuplicateAliasError struct {
	Alias     string
	Existing  string
	Requested string
}

func (e *DuplicateAliasError) Error() string {
	return fmt.Sprintf("alias %q is already bound to %q, cannot bind it to %q", e.Alias, e.Existing, e.Requested)
}

// UserText returns the text to show for usage and domain errors
func UserText(err error) (string, bool) {
	var usage *UsageError
	if errors.As(err, &usage) {
		return usage.Text, true
	}
	var domain *DomainError
	if errors.As(err, &domain) {
		return domain.Text, true
	}
	return "", false
}
