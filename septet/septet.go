// Package septet packs USSD request strings into the GSM 7-bit
// representation that modems expect as the AT+CUSD argument.
package septet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/warthog618/sms/encoding/gsm7"
)

// Mode selects how the carry bits of the final character are handled.
type Mode int

const (
	// ModeFlush emits the carry bits left over from the last character as
	// a final packed byte. This is the default.
	ModeFlush Mode = iota
	// ModeTruncate drops the carry bits of the last character. Kept for
	// compatibility with modems tuned to that output. It under-encodes the
	// final byte whenever len(text) is not a multiple of 8.
	ModeTruncate
)

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFlush:
		return "flush"
	case ModeTruncate:
		return "truncate"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Pack packs text in ModeFlush. See PackMode.
func Pack(text string) string {
	return PackMode(text, ModeFlush)
}

// PackMode packs each byte of text into 7 bits and returns the packed
// octets as uppercase hex.
//
// The packing uses a rolling bit window. Character i is shifted left by
// 8-(i%8) bits. Every character except the first of each group of eight
// produces one octet: the carry of the previous character combined with
// the low byte of the current one. Bytes above 0x7F are masked to their
// low 7 bits.
func PackMode(text string, mode Mode) string {
	if text == "" {
		return ""
	}

	packed := make([]byte, 0, len(text))
	var last, offset int
	for i := 0; i < len(text); i++ {
		current := int(text[i]&0x7F) << (8 - offset)
		if offset != 0 {
			packed = append(packed, byte(last>>8|current&0xFF))
		}
		offset = (offset + 1) % 8
		last = current
	}
	// offset == 0 means the last character sat at bit offset 7 and carries
	// nothing.
	if mode == ModeFlush && offset != 0 {
		packed = append(packed, byte(last>>8))
	}

	return strings.ToUpper(hex.EncodeToString(packed))
}

// Unpack reverses Pack. Zero septets produced by padding at the end of
// the final octet are removed.
func Unpack(hexText string) (string, error) {
	packed, err := hex.DecodeString(hexText)
	if err != nil {
		return "", fmt.Errorf("septet: %w", err)
	}
	if len(packed) == 0 {
		return "", nil
	}
	septets := gsm7.Unpack7Bit(packed, 0)
	return strings.TrimRight(string(septets), "\x00"), nil
}
