package at

import (
	"errors"
	"strings"
)

var (
	// ErrNoQuotedPayload is returned when a response line does not contain
	// a field enclosed in a pair of double quotes.
	ErrNoQuotedPayload = errors.New("no quoted payload")

	// ErrNoResponseTag is returned when a command keyword has no "+" and
	// therefore no response tag can be derived from it.
	ErrNoResponseTag = errors.New("keyword has no response tag")

	// ErrEmptyKeyword is returned when a command has no keyword.
	ErrEmptyKeyword = errors.New("empty command keyword")
)

// Command is an AT command with a single quoted argument.
type Command struct {
	// Keyword is the command up to and including "=", e.g. "AT+CUSD=1".
	Keyword string
	// Argument is sent between double quotes. It is not escaped.
	Argument string
	// Trailer is an optional parameter appended after the argument.
	Trailer string
}

// NewCommand builds a command for keyword. Commands of the CUSD family get
// the CusdDCS trailer, other commands get none.
func NewCommand(keyword, argument string) Command {
	c := Command{Keyword: keyword, Argument: argument}
	if ExpectedTag(keyword) == CusdTag {
		c.Trailer = CusdDCS
	}
	return c
}

// CUSD builds the default USSD request command for an encoded argument.
func CUSD(argument string) Command {
	return NewCommand(DefaultKeyword, argument)
}

// Line renders the command as written to the modem, CRLF included.
func (c Command) Line() string {
	var sb strings.Builder
	sb.WriteString(c.Keyword)
	sb.WriteString(`,"`)
	sb.WriteString(c.Argument)
	sb.WriteString(`"`)
	if c.Trailer != "" {
		sb.WriteString(",")
		sb.WriteString(c.Trailer)
	}
	sb.WriteString(CRLF)
	return sb.String()
}

// Echo is the line a modem with echo enabled sends back for c.
func (c Command) Echo() string {
	return strings.TrimRight(c.Line(), CRLF)
}

// Tag is the prefix of the response line that answers c.
func (c Command) Tag() string {
	return ExpectedTag(c.Keyword)
}

// Validate reports whether a response to c can be recognized.
func (c Command) Validate() error {
	if c.Keyword == "" {
		return ErrEmptyKeyword
	}
	if !strings.Contains(c.Keyword, "+") {
		return ErrNoResponseTag
	}
	return nil
}

func (c Command) String() string {
	return c.Echo()
}

// Format renders keyword and argument in the AT+CUSD layout,
// `keyword,"argument",15` followed by CRLF, whatever the keyword.
func Format(keyword, argument string) string {
	return keyword + `,"` + argument + `",` + CusdDCS + CRLF
}

// ExpectedTag derives the response prefix from a command keyword: the
// characters after the first "+" up to the first "=", "," or ":", framed
// as "+NAME:". A keyword without "+" yields ":".
func ExpectedTag(keyword string) string {
	i := strings.IndexByte(keyword, '+')
	if i < 0 {
		return ":"
	}
	name := keyword[i+1:]
	if j := strings.IndexAny(name, "=,:"); j >= 0 {
		name = name[:j]
	}
	return "+" + name + ":"
}

// ExtractQuoted returns the text strictly between the first two double
// quotes of line.
func ExtractQuoted(line string) (string, error) {
	start := strings.IndexByte(line, '"')
	if start < 0 {
		return "", ErrNoQuotedPayload
	}
	end := strings.IndexByte(line[start+1:], '"')
	if end < 0 {
		return "", ErrNoQuotedPayload
	}
	return line[start+1 : start+1+end], nil
}
