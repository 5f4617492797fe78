// Package codec decodes the quoted payload of a USSD response: a hex
// string carrying UTF-16BE (UCS2) code units.
package codec

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/warthog618/sms/encoding/ucs2"
)

// DecodeHex decodes a base16 string into bytes. Both letter cases are
// accepted.
func DecodeHex(text string) ([]byte, error) {
	if len(text)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedPayload, len(text))
	}
	if i := strings.IndexFunc(text, func(r rune) bool { return !isHexDigit(r) }); i >= 0 {
		return nil, &SequenceError{Offset: i, Err: ErrMalformedPayload}
	}

	b, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return b, nil
}

// UTF16BEToUTF8 interprets b as big-endian UTF-16 code units and returns
// the equivalent UTF-8 text. Surrogate pairs are combined into a single
// code point. Every input code unit is covered by the output, or a
// *SequenceError is returned.
func UTF16BEToUTF8(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", &SequenceError{Offset: len(b) - 1, Err: ErrIncompleteSequence}
	}

	for i := 0; i < len(b); i += 2 {
		unit := rune(b[i])<<8 | rune(b[i+1])
		if !utf16.IsSurrogate(unit) {
			continue
		}
		if unit >= 0xDC00 {
			return "", &SequenceError{Offset: i, Err: ErrInvalidSequence}
		}
		if i+2 >= len(b) {
			return "", &SequenceError{Offset: i, Err: ErrIncompleteSequence}
		}
		next := rune(b[i+2])<<8 | rune(b[i+3])
		if next < 0xDC00 || next > 0xDFFF {
			return "", &SequenceError{Offset: i + 2, Err: ErrInvalidSequence}
		}
		i += 2
	}

	runes, err := ucs2.Decode(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSequence, err)
	}
	return string(runes), nil
}

// DecodePayload hex-decodes text and transcodes the result from UTF-16BE
// to UTF-8.
func DecodePayload(text string) (string, error) {
	b, err := DecodeHex(text)
	if err != nil {
		return "", err
	}
	return UTF16BEToUTF8(b)
}

func isHexDigit(r rune) bool {
	return ('0' <= r && r <= '9') || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}
