package message

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MentionPlaceholder is the object replacement character transports put
// where an @-mention of the bot was.
const MentionPlaceholder = "￼"

// MentionPrefix replaces a leading MentionPlaceholder
const MentionPrefix = "@bot"

// DefaultPrefixes address a message to the bot
var DefaultPrefixes = []string{"@bot", "bot", "!"}

var commandNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// AliasSource supplies aliases (longest first) and their command names
type AliasSource interface {
	Aliases() []string
	Canonical(alias string) (string, bool)
}

// Command is the result of a successful extraction
type Command struct {
	Name string
	Args string
	// Text is the body with whitespace collapsed and the prefix removed
	Text string
	// Addressed is true when the body started with an addressing prefix
	Addressed bool
}

// Parsed is an envelope with its resolved command
type Parsed struct {
	Envelope
	Command string
	Args    string
}

type Extractor struct {
	aliases  AliasSource
	prefixes []string
}

// NewExtractor creates an extractor. Empty prefixes fall back to DefaultPrefixes.
func NewExtractor(aliases AliasSource, prefixes []string) *Extractor {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, strings.ToLower(p))
		}
	}
	if len(cleaned) == 0 {
		cleaned = DefaultPrefixes
	}
	// longest first so "@bot" is tried before "bot"
	for i := 1; i < len(cleaned); i++ {
		for j := i; j > 0 && len(cleaned[j]) > len(cleaned[j-1]); j-- {
			cleaned[j], cleaned[j-1] = cleaned[j-1], cleaned[j]
		}
	}
	return &Extractor{aliases: aliases, prefixes: cleaned}
}

// StripPrefix normalizes body and removes a leading addressing prefix.
// It reports whether a prefix was found.
func (x *Extractor) StripPrefix(body string) (string, bool) {
	body = strings.Join(strings.Fields(body), " ")
	if strings.HasPrefix(body, MentionPlaceholder) {
		body = MentionPrefix + strings.TrimPrefix(body, MentionPlaceholder)
	}

	for _, p := range x.prefixes {
		if len(body) < len(p) || !strings.EqualFold(body[:len(p)], p) {
			continue
		}
		rest := body[len(p):]
		if endsWord(p) && rest != "" {
			next, _ := utf8.DecodeRuneInString(rest)
			if unicode.IsLetter(next) || unicode.IsDigit(next) {
				continue
			}
		}
		rest = strings.TrimLeft(rest, " ,:")
		return rest, true
	}
	return body, false
}

func endsWord(prefix string) bool {
	last, _ := utf8.DecodeLastRuneInString(prefix)
	return unicode.IsLetter(last) || unicode.IsDigit(last)
}

// Extract splits body into a command name and arguments. Group messages
// must be addressed to the bot; private messages may omit the prefix.
func (x *Extractor) Extract(body string, isGroup bool) (Command, bool) {
	text, addressed := x.StripPrefix(body)
	if isGroup && !addressed {
		return Command{}, false
	}
	if text == "" {
		return Command{}, false
	}

	if x.aliases != nil {
		for _, alias := range x.aliases.Aliases() {
			if len(text) < len(alias) || !strings.EqualFold(text[:len(alias)], alias) {
				continue
			}
			if len(text) > len(alias) && text[len(alias)] != ' ' {
				continue
			}
			name, ok := x.aliases.Canonical(alias)
			if !ok {
				continue
			}
			return Command{
				Name:      name,
				Args:      strings.TrimSpace(text[len(alias):]),
				Text:      text,
				Addressed: addressed,
			}, true
		}
	}

	name, args, _ := strings.Cut(text, " ")
	name = strings.ToLower(name)
	if !commandNamePattern.MatchString(name) {
		return Command{}, false
	}
	return Command{Name: name, Args: strings.TrimSpace(args), Text: text, Addressed: addressed}, true
}

// Parse runs Extract on an envelope
func (x *Extractor) Parse(env Envelope) (Parsed, Command, bool) {
	parsed := Parsed{Envelope: env}
	cmd, ok := x.Extract(env.Body, env.IsGroup())
	if ok {
		parsed.Command = cmd.Name
		parsed.Args = cmd.Args
	}
	return parsed, cmd, ok
}
