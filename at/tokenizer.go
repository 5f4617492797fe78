package at

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Splitter is used for tokenizing modem output into lines. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// A line ends at LF. The LF and one preceding CR are stripped from the
// token. Echoed commands are returned like any other line; filtering them
// is up to the caller.
//
// When atEOF is true and the remaining data holds no LF, the partial line
// is rejected with io.ErrUnexpectedEOF: the channel closed mid-line.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte(CR)), nil
	}

	if atEOF {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	// Direct matches for final results
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg), strings.HasPrefix(line, UrcMessageReport), line == UrcCall:
		return TypeURC
	default:
		return TypeData
	}
}
