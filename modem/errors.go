package modem

import "errors"

var (
	// ErrNoDialer is returned when Run is called with a Config that has
	// no Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an exchange is attempted on a
	// Session that has no transport.
	//
	// This can occur if a Dialer returned neither a transport nor an error.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when a Session is used or closed after
	// its transport has already been released.
	//
	// A Session serves exactly one exchange.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrChannelOpen is returned when the Dialer cannot open the channel
	// to the modem, for example because the device is missing or access
	// is denied. The dialer's error is wrapped alongside it.
	ErrChannelOpen = errors.New("cannot open modem channel")

	// ErrIO is returned when writing the command or reading a response
	// line fails, including when the channel is closed before the
	// expected response arrives.
	ErrIO = errors.New("modem I/O error")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")

	// ErrTimeout is returned when no matching response arrives within
	// Config.Timeout.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrRetriesExhausted is returned when more than Config.MaxRetries
	// non-matching lines arrive before the expected response.
	ErrRetriesExhausted = errors.New("retries exhausted waiting for response")
)
