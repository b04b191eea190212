// Package message turns raw transport text into structured messages:
// envelope fields first, then the command name and arguments.
package message

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Envelope holds the fields extracted from one transport message.
// Empty strings and zero timestamps mean the field was absent.
type Envelope struct {
	Sender           string
	Body             string
	Timestamp        int64
	GroupID          string
	ReplyID          string
	MessageTimestamp int64
}

// IsGroup reports whether the message arrived in a group chat
func (e Envelope) IsGroup() bool {
	return e.GroupID != ""
}

// Valid reports whether the envelope can be processed at all
func (e Envelope) Valid() bool {
	return e.Sender != "" && e.Body != ""
}

var (
	senderPattern    = regexp.MustCompile(`(?i)\bfrom:[ \t]*(?:["“][^"”\n]*["”][ \t]*)?(\+\d{1,15})\b`)
	bodyPattern      = regexp.MustCompile(`(?m)^[ \t]*Body:[ \t]*(.*)$`)
	timestampPattern = regexp.MustCompile(`(?m)^[ \t]*Timestamp:[ \t]*(\d+)`)
	groupLabel       = regexp.MustCompile(`(?m)^([ \t]*)Group info:[^\n]*`)
	quoteLabel       = regexp.MustCompile(`(?m)^([ \t]*)Quote:[^\n]*`)
	idPattern        = regexp.MustCompile(`(?m)^[ \t]*Id:[ \t]*(\S+)`)
	msgTimePattern   = regexp.MustCompile(`Message timestamp:[ \t]*(\d+)`)
)

// ParseEnvelope extracts what it can from raw. Fields that do not match
// are left empty; parsing itself never fails.
func ParseEnvelope(raw string) Envelope {
	var env Envelope
	env.Sender = firstMatch(senderPattern, raw)
	env.Body = firstMatch(bodyPattern, raw)
	env.Timestamp = parseDigits(firstMatch(timestampPattern, raw))
	env.GroupID = firstMatch(idPattern, section(groupLabel, raw))
	env.ReplyID = firstMatch(idPattern, section(quoteLabel, raw))
	env.MessageTimestamp = parseDigits(firstMatch(msgTimePattern, raw))
	return env
}

func firstMatch(re *regexp.Regexp, raw string) string {
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return Sanitize(m[1])
}

// section returns the lines nested under the first line matching label:
// those indented deeper than the label itself, up to the next line that is not.
func section(label *regexp.Regexp, raw string) string {
	loc := label.FindStringSubmatchIndex(raw)
	if loc == nil {
		return ""
	}
	indent := loc[3] - loc[2]

	var b strings.Builder
	for _, line := range strings.Split(raw[loc[1]:], "\n")[1:] {
		if len(line)-len(strings.TrimLeft(line, " \t")) <= indent || strings.TrimSpace(line) == "" {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func parseDigits(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Sanitize strips control characters and surrounding whitespace
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// SplitEnvelopes reads transport output and calls fn once per envelope
// block. A block starts at a line beginning with "Envelope".
func SplitEnvelopes(scanner *bufio.Scanner, fn func(block string)) error {
	var block strings.Builder
	flush := func() {
		if block.Len() > 0 {
			fn(block.String())
			block.Reset()
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "Envelope") {
			flush()
		}
		block.WriteString(line)
		block.WriteByte('\n')
	}
	flush()
	return scanner.Err()
}
