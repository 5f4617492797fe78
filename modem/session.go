package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"i4.energy/across/ussd/at"
	"i4.energy/across/ussd/codec"
)

// State is the position of a Session in the request/response exchange.
type State int

const (
	StateIdle State = iota
	StateSent
	StateAwaitingLine
	StateMatched
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateAwaitingLine:
		return "awaiting-line"
	case StateMatched:
		return "matched"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the outcome of a successful exchange.
type Result struct {
	// Text is the decoded payload of the matched line.
	Text string
	// Line is the matched response line as received.
	Line string
	// Chatter counts the distinct non-matching lines seen while waiting.
	Chatter int
	// Elapsed is the time from sending the command to the match.
	Elapsed time.Duration
}

// Session drives a single request/response exchange with the modem. It
// owns its Transport and closes it when the exchange ends, whatever the
// outcome.
//
// Reads happen one line at a time on demand. Each read runs in its own
// goroutine so that the wait honours the context, but two reads never
// overlap.
type Session struct {
	transport Transport
	config    Config
	logger    *slog.Logger
	scanner   *bufio.Scanner

	state State
	// sent is the command as echoed back by the modem.
	sent string
	// last is the previous line read, for one-line-lookback de-duplication.
	last   string
	closed bool
}

type scanResult struct {
	line string
	err  error
}

// NewSession wraps an open transport. Zero fields of config take their
// defaults. config.Dialer is not used.
func NewSession(transport Transport, config Config) *Session {
	config.setDefaults()
	s := &Session{
		transport: transport,
		config:    config,
		logger:    config.Logger,
	}
	if transport != nil {
		s.scanner = bufio.NewScanner(transport)
		s.scanner.Buffer(nil, config.MaxLineLength+len(at.CRLF))
		s.scanner.Split(at.Splitter)
	}
	return s
}

// Run dials the modem with config.Dialer and performs one exchange of cmd.
func Run(ctx context.Context, config Config, cmd at.Command) (Result, error) {
	if err := config.validate(); err != nil {
		return Result{}, err
	}
	if err := cmd.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid command %q: %w", cmd.Keyword, err)
	}

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrChannelOpen, err)
	}
	if transport == nil {
		return Result{}, ErrNotInitialized
	}

	return NewSession(transport, config).Exchange(ctx, cmd)
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// Exchange sends cmd and waits for the line starting with the command's
// response tag, then decodes its quoted payload.
//
// While waiting, a line identical to the one before it is dropped, as is
// the modem's echo of cmd. Blank lines are dropped. Any other line is
// logged as chatter and followed by a pause of Config.PollInterval. The
// one-line lookback only collapses immediate repeats; it is a heuristic
// against echoing modems, not a history.
//
// The transport is closed before Exchange returns.
func (s *Session) Exchange(ctx context.Context, cmd at.Command) (Result, error) {
	if s.closed {
		return Result{}, ErrAlreadyClosed
	}
	if s.transport == nil {
		return Result{}, ErrNotInitialized
	}
	defer func() {
		if err := s.Close(); err != nil && !errors.Is(err, ErrAlreadyClosed) {
			s.logger.Warn("Failed to close transport", "error", err)
		}
	}()

	if err := cmd.Validate(); err != nil {
		return Result{}, s.fail(fmt.Errorf("invalid command %q: %w", cmd.Keyword, err))
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	tag := cmd.Tag()
	s.logger.Info("Sending command", "command", cmd.Echo())
	if _, err := s.transport.Write([]byte(cmd.Line())); err != nil {
		return Result{}, s.fail(fmt.Errorf("%w: write command %q: %w", ErrIO, cmd.Echo(), err))
	}
	s.state = StateSent
	s.sent = cmd.Echo()
	s.logger.Info("Command sent, waiting for answer", "expecting", tag)

	var result Result
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return result, s.fail(err)
		}
		s.state = StateAwaitingLine
		s.logger.Debug("Read line", "bytes", len(line))

		if line == s.last {
			continue
		}
		s.last = line

		if line == s.sent {
			s.logger.Debug("Skipping command echo")
			continue
		}

		if strings.HasPrefix(line, tag) {
			s.logger.Debug("Modem answers", "line", line)
			text, err := decodeResponse(line)
			if err != nil {
				return result, s.fail(fmt.Errorf("decode response %q: %w", line, err))
			}
			s.state = StateMatched
			result.Text = text
			result.Line = line
			result.Elapsed = time.Since(start)
			return result, nil
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		result.Chatter++
		kind := at.Classify(line)
		level := slog.LevelDebug
		if kind == at.TypeFinal && line != at.OK {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "Modem says", "line", line, "kind", kind.String())

		if s.config.MaxRetries >= 0 && result.Chatter > s.config.MaxRetries {
			return result, s.fail(fmt.Errorf("%w: %d lines without %s", ErrRetriesExhausted, result.Chatter, tag))
		}
		if err := s.pause(ctx); err != nil {
			return result, s.fail(err)
		}
	}
}

// Close releases the transport. It returns ErrAlreadyClosed if the
// transport was released before.
func (s *Session) Close() error {
	if s.closed {
		return ErrAlreadyClosed
	}
	s.closed = true
	if s.transport == nil {
		return nil
	}
	return s.transport.Close()
}

func (s *Session) fail(err error) error {
	s.state = StateFailed
	return err
}

// readLine returns the next line from the transport. A read still pending
// when ctx ends is abandoned; closing the transport unblocks it.
func (s *Session) readLine(ctx context.Context) (string, error) {
	done := make(chan scanResult, 1)
	go func() {
		if s.scanner.Scan() {
			// The buffer also admits a bare-LF line one byte longer than
			// the limit.
			if line := s.scanner.Text(); len(line) > s.config.MaxLineLength {
				done <- scanResult{err: fmt.Errorf("%w: %d bytes, limit %d", ErrLineTooLong, len(line), s.config.MaxLineLength)}
			} else {
				done <- scanResult{line: line}
			}
			return
		}
		err := s.scanner.Err()
		switch {
		case err == nil:
			err = fmt.Errorf("%w: channel closed: %w", ErrIO, io.ErrUnexpectedEOF)
		case errors.Is(err, bufio.ErrTooLong):
			err = fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, s.config.MaxLineLength)
		default:
			err = fmt.Errorf("%w: read: %w", ErrIO, err)
		}
		done <- scanResult{err: err}
	}()

	select {
	case <-ctx.Done():
		return "", s.contextError(ctx)
	case r := <-done:
		return r.line, r.err
	}
}

func (s *Session) pause(ctx context.Context) error {
	if s.config.PollInterval <= 0 {
		return nil
	}
	timer := time.NewTimer(s.config.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return s.contextError(ctx)
	case <-timer.C:
		return nil
	}
}

func (s *Session) contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, s.config.Timeout, ctx.Err())
	}
	return fmt.Errorf("exchange cancelled: %w", ctx.Err())
}

func decodeResponse(line string) (string, error) {
	payload, err := at.ExtractQuoted(line)
	if err != nil {
		return "", err
	}
	return codec.DecodePayload(payload)
}
