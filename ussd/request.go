// Package ussd models a single USSD request and the report produced once
// the modem has answered it.
package ussd

import (
	"errors"
	"time"

	"i4.energy/across/ussd/at"
	"i4.energy/across/ussd/septet"
)

var (
	// ErrArgumentConflict is returned when mutually exclusive inputs are
	// supplied together, such as request text and a pre-encoded argument.
	ErrArgumentConflict = errors.New("conflicting arguments")

	// ErrMissingRequest is returned when neither request text nor a
	// pre-encoded argument is supplied.
	ErrMissingRequest = errors.New("missing request")
)

// Request is what gets dialed: either plain text such as "*100#" that is
// 7-bit packed before sending, or an argument that is sent as is.
type Request struct {
	text     string
	argument string
}

// NewRequest returns a Request for exactly one of text and argument.
func NewRequest(text, argument string) (Request, error) {
	switch {
	case text != "" && argument != "":
		return Request{}, ErrArgumentConflict
	case text == "" && argument == "":
		return Request{}, ErrMissingRequest
	}
	return Request{text: text, argument: argument}, nil
}

// Text returns the plain request text, empty for pre-encoded requests.
func (r Request) Text() string { return r.text }

// Encoded reports whether the request carries a pre-encoded argument.
func (r Request) Encoded() bool { return r.argument != "" }

// Encode returns the argument to place in the AT command.
func (r Request) Encode(mode septet.Mode) string {
	if r.Encoded() {
		return r.argument
	}
	return septet.PackMode(r.text, mode)
}

// Command builds the AT command for the request. An empty keyword selects
// at.DefaultKeyword.
func (r Request) Command(keyword string, mode septet.Mode) at.Command {
	if keyword == "" {
		keyword = at.DefaultKeyword
	}
	return at.NewCommand(keyword, r.Encode(mode))
}

// String returns the text as typed, or the raw argument.
func (r Request) String() string {
	if r.Encoded() {
		return r.argument
	}
	return r.text
}

// Report is the outcome of an answered request.
type Report struct {
	Request    string    `json:"request"`
	Command    string    `json:"command"`
	Result     string    `json:"result"`
	Line       string    `json:"line"`
	ReceivedAt time.Time `json:"received_at"`
}
