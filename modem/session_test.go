package modem_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/ussd/at"
	"i4.energy/across/ussd/codec"
	"i4.energy/across/ussd/modem"
)

const helloResponse = `+CUSD: 0,"00480065006C006C006F",15`

// testConfig returns a config with the chatter pause disabled so tests
// do not sleep.
func testConfig() modem.Config {
	return modem.Config{
		PollInterval: -1,
		Timeout:      5 * time.Second,
	}
}

func newLogBuffer() (*bytes.Buffer, *slog.Logger) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return buf, logger
}

func TestSessionExchange(t *testing.T) {
	t.Run("Decodes the response after skipping the echo", func(t *testing.T) {
		cmd := at.CUSD("AA180C3602")
		transport := modem.NewTestTransport()
		transport.SetEcho(true)
		transport.ReplyOnWrite(helloResponse + at.CRLF)

		session := modem.NewSession(transport, testConfig())
		result, err := session.Exchange(context.Background(), cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Text != "Hello" {
			t.Errorf("expected Hello, got %q", result.Text)
		}
		if result.Line != helloResponse {
			t.Errorf("expected matched line %q, got %q", helloResponse, result.Line)
		}
		if result.Chatter != 0 {
			t.Errorf("expected no chatter, got %d", result.Chatter)
		}
		if got := transport.Written(); got != `AT+CUSD=1,"AA180C3602",15`+at.CRLF {
			t.Errorf("unexpected command written: %q", got)
		}
		if !transport.Closed() {
			t.Error("transport should be closed after the exchange")
		}
		if session.State() != modem.StateMatched {
			t.Errorf("expected state %v, got %v", modem.StateMatched, session.State())
		}
	})

	t.Run("Follows the expected write read close sequence", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		cmd := at.CUSD("AA180C3602")
		mockTransport := modem.NewMockTransport(ctrl)
		gomock.InOrder(NewMockSequence(mockTransport).
			Send(cmd).
			Lines(cmd.Echo(), at.OK).
			Lines(helloResponse).
			Close().
			Build()...)

		result, err := modem.NewSession(mockTransport, testConfig()).Exchange(context.Background(), cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text != "Hello" {
			t.Errorf("expected Hello, got %q", result.Text)
		}
		if result.Chatter != 1 {
			t.Errorf("expected OK to count as chatter, got %d", result.Chatter)
		}
	})

	t.Run("Drops a line identical to the one before it", func(t *testing.T) {
		buf, logger := newLogBuffer()
		config := testConfig()
		config.Logger = logger

		transport := modem.NewTestTransport()
		transport.ReplyOnWrite("OK\r\nOK\r\n" + helloResponse + at.CRLF)

		result, err := modem.NewSession(transport, config).Exchange(context.Background(), at.CUSD("AA180C3602"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Chatter != 1 {
			t.Errorf("expected 1 chatter line, got %d", result.Chatter)
		}
		if n := strings.Count(buf.String(), `"msg":"Modem says"`); n != 1 {
			t.Errorf("expected the repeated line to be logged once, got %d:\n%s", n, buf.String())
		}
	})

	t.Run("Only collapses immediate repeats", func(t *testing.T) {
		transport := modem.NewTestTransport()
		transport.ReplyOnWrite("A\r\nB\r\nA\r\n" + helloResponse + at.CRLF)

		result, err := modem.NewSession(transport, testConfig()).Exchange(context.Background(), at.CUSD("AA"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Chatter != 3 {
			t.Errorf("expected 3 chatter lines, got %d", result.Chatter)
		}
	})

	t.Run("Skips blank lines without counting them", func(t *testing.T) {
		transport := modem.NewTestTransport()
		transport.ReplyOnWrite("\r\n\r\n  \r\n" + helloResponse + at.CRLF)

		result, err := modem.NewSession(transport, testConfig()).Exchange(context.Background(), at.CUSD("AA"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Chatter != 0 {
			t.Errorf("expected blank lines to be ignored, got %d chatter", result.Chatter)
		}
	})

	t.Run("Accepts a bare LF terminator", func(t *testing.T) {
		transport := modem.NewTestTransport()
		transport.ReplyOnWrite(helloResponse + at.LF)

		result, err := modem.NewSession(transport, testConfig()).Exchange(context.Background(), at.CUSD("AA"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text != "Hello" {
			t.Errorf("expected Hello, got %q", result.Text)
		}
	})

	t.Run("Logs final errors as warnings", func(t *testing.T) {
		buf, logger := newLogBuffer()
		config := testConfig()
		config.Logger = logger

		transport := modem.NewTestTransport()
		transport.ReplyOnWrite("+CME ERROR: 30\r\n" + helloResponse + at.CRLF)

		if _, err := modem.NewSession(transport, config).Exchange(context.Background(), at.CUSD("AA")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"level":"WARN","msg":"Modem says"`) {
			t.Errorf("expected a warning for the error line, got:\n%s", buf.String())
		}
	})

	t.Run("Pauses after each chatter line", func(t *testing.T) {
		config := testConfig()
		config.PollInterval = 20 * time.Millisecond

		transport := modem.NewTestTransport()
		transport.ReplyOnWrite("A\r\nB\r\n" + helloResponse + at.CRLF)

		result, err := modem.NewSession(transport, config).Exchange(context.Background(), at.CUSD("AA"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Elapsed < 40*time.Millisecond {
			t.Errorf("expected at least two pauses, elapsed %v", result.Elapsed)
		}
	})

	t.Run("Matches the tag of a custom keyword", func(t *testing.T) {
		cmd := at.NewCommand("AT+CMGS=1", "0041")
		transport := modem.NewTestTransport()
		transport.ReplyOnWrite("+CUSD: 0,\"0042\",15\r\n+CMGS: \"0041\"\r\n")

		result, err := modem.NewSession(transport, testConfig()).Exchange(context.Background(), cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text != "A" {
			t.Errorf("expected A, got %q", result.Text)
		}
		if result.Chatter != 1 {
			t.Errorf("expected the +CUSD line to be chatter, got %d", result.Chatter)
		}
	})
}

func TestSessionExchangeErrors(t *testing.T) {
	t.Run("ErrIO when the channel closes before the response", func(t *testing.T) {
		transport := modem.NewTestTransport()
		transport.SendData("OK\r\n")
		transport.Hangup()

		session := modem.NewSession(transport, testConfig())
		result, err := session.Exchange(context.Background(), at.CUSD("AA"))
		if !errors.Is(err, modem.ErrIO) {
			t.Fatalf("expected ErrIO, got: %v", err)
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("expected io.ErrUnexpectedEOF in chain, got: %v", err)
		}
		if result.Chatter != 1 {
			t.Errorf("expected 1 chatter line before the hangup, got %d", result.Chatter)
		}
		if session.State() != modem.StateFailed {
			t.Errorf("expected state %v, got %v", modem.StateFailed, session.State())
		}
		if !transport.Closed() {
			t.Error("transport should be closed after a failure")
		}
	})

	t.Run("ErrIO on a partial line at end of input", func(t *testing.T) {
		transport := modem.NewTestTransport()
		transport.SendData(`+CUSD: 0,"0048`)
		transport.Hangup()

		_, err := modem.NewSession(transport, testConfig()).Exchange(context.Background(), at.CUSD("AA"))
		if !errors.Is(err, modem.ErrIO) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("expected ErrIO wrapping io.ErrUnexpectedEOF, got: %v", err)
		}
	})

	t.Run("ErrIO when the read fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		cmd := at.CUSD("AA")
		readErr := errors.New("device unplugged")
		mockTransport := modem.NewMockTransport(ctrl)
		gomock.InOrder(NewMockSequence(mockTransport).
			Send(cmd).
			Read(readErr).
			Close().
			Build()...)

		_, err := modem.NewSession(mockTransport, testConfig()).Exchange(context.Background(), cmd)
		if !errors.Is(err, modem.ErrIO) {
			t.Errorf("expected ErrIO, got: %v", err)
		}
		if !errors.Is(err, readErr) {
			t.Errorf("expected the read error in chain, got: %v", err)
		}
	})

	t.Run("ErrIO when the write fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		cmd := at.CUSD("AA")
		writeErr := errors.New("write failed")
		mockTransport := modem.NewMockTransport(ctrl)
		gomock.InOrder(
			mockTransport.EXPECT().Write([]byte(cmd.Line())).Return(0, writeErr),
			mockTransport.EXPECT().Close().Return(nil),
		)

		session := modem.NewSession(mockTransport, testConfig())
		_, err := session.Exchange(context.Background(), cmd)
		if !errors.Is(err, modem.ErrIO) {
			t.Errorf("expected ErrIO, got: %v", err)
		}
		if !errors.Is(err, writeErr) {
			t.Errorf("expected the write error in chain, got: %v", err)
		}
		if session.State() != modem.StateFailed {
			t.Errorf("expected state %v, got %v", modem.StateFailed, session.State())
		}
	})

	t.Run("ErrLineTooLong when a line exceeds the limit", func(t *testing.T) {
		config := testConfig()
		config.MaxLineLength = 16

		transport := modem.NewTestTransport()
		transport.ReplyOnWrite(strings.Repeat("A", 100) + at.CRLF)

		_, err := modem.NewSession(transport, config).Exchange(context.Background(), at.CUSD("AA"))
		if !errors.Is(err, modem.ErrLineTooLong) {
			t.Errorf("expected ErrLineTooLong, got: %v", err)
		}
	})

	lengthBounds := []struct {
		name       string
		length     int
		terminator string
		wantErr    error
	}{
		{"Line at the limit with CRLF is accepted", 20, at.CRLF, nil},
		{"Line at the limit with LF is accepted", 20, at.LF, nil},
		{"ErrLineTooLong one byte over the limit with CRLF", 21, at.CRLF, modem.ErrLineTooLong},
		{"ErrLineTooLong one byte over the limit with LF", 21, at.LF, modem.ErrLineTooLong},
	}
	for _, tt := range lengthBounds {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			config.MaxLineLength = 20

			transport := modem.NewTestTransport()
			transport.ReplyOnWrite(strings.Repeat("A", tt.length) + tt.terminator + `+CUSD: 0,"0048",15` + at.CRLF)

			result, err := modem.NewSession(transport, config).Exchange(context.Background(), at.CUSD("AA"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got: %v", tt.wantErr, err)
			}
			if err == nil && result.Chatter != 1 {
				t.Errorf("expected the long line as chatter, got %d", result.Chatter)
			}
		})
	}

	t.Run("ErrTimeout when nothing arrives in time", func(t *testing.T) {
		config := testConfig()
		config.Timeout = 50 * time.Millisecond

		transport := modem.NewTestTransport()
		session := modem.NewSession(transport, config)

		start := time.Now()
		_, err := session.Exchange(context.Background(), at.CUSD("AA"))
		if !errors.Is(err, modem.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded in chain, got: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("timeout took too long: %v", elapsed)
		}
		if !transport.Closed() {
			t.Error("transport should be closed after a timeout")
		}
	})

	t.Run("ErrTimeout while pausing between chatter lines", func(t *testing.T) {
		config := testConfig()
		config.Timeout = 50 * time.Millisecond
		config.PollInterval = time.Hour

		transport := modem.NewTestTransport()
		transport.ReplyOnWrite("OK\r\n")

		_, err := modem.NewSession(transport, config).Exchange(context.Background(), at.CUSD("AA"))
		if !errors.Is(err, modem.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got: %v", err)
		}
	})

	t.Run("Cancellation is reported as such", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		transport := modem.NewTestTransport()
		_, err := modem.NewSession(transport, testConfig()).Exchange(ctx, at.CUSD("AA"))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
		if errors.Is(err, modem.ErrTimeout) {
			t.Errorf("cancellation should not be a timeout: %v", err)
		}
	})

	t.Run("ErrRetriesExhausted after too much chatter", func(t *testing.T) {
		config := testConfig()
		config.MaxRetries = 2

		transport := modem.NewTestTransport()
		transport.ReplyOnWrite("A\r\nB\r\nC\r\n" + helloResponse + at.CRLF)

		result, err := modem.NewSession(transport, config).Exchange(context.Background(), at.CUSD("AA"))
		if !errors.Is(err, modem.ErrRetriesExhausted) {
			t.Fatalf("expected ErrRetriesExhausted, got: %v", err)
		}
		if result.Chatter != 3 {
			t.Errorf("expected to give up on the third line, got %d", result.Chatter)
		}
	})

	t.Run("Negative MaxRetries tolerates any chatter", func(t *testing.T) {
		config := testConfig()
		config.MaxRetries = -1

		var sb strings.Builder
		for i := range 100 {
			sb.WriteString(strings.Repeat("x", i%2+1) + at.CRLF)
		}
		transport := modem.NewTestTransport()
		transport.ReplyOnWrite(sb.String() + helloResponse + at.CRLF)

		result, err := modem.NewSession(transport, config).Exchange(context.Background(), at.CUSD("AA"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Chatter != 100 {
			t.Errorf("expected 100 chatter lines, got %d", result.Chatter)
		}
	})

	tests := []struct {
		name     string
		response string
		wantErr  error
	}{
		{
			name:     "ErrNoQuotedPayload when the tagged line has no payload",
			response: "+CUSD: 2",
			wantErr:  at.ErrNoQuotedPayload,
		},
		{
			name:     "ErrMalformedPayload when the payload is not hex",
			response: `+CUSD: 0,"00G8",15`,
			wantErr:  codec.ErrMalformedPayload,
		},
		{
			name:     "ErrIncompleteSequence when the payload is cut short",
			response: `+CUSD: 0,"004800",15`,
			wantErr:  codec.ErrIncompleteSequence,
		},
		{
			name:     "ErrInvalidSequence on a lone surrogate",
			response: `+CUSD: 0,"DC00",15`,
			wantErr:  codec.ErrInvalidSequence,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := modem.NewTestTransport()
			transport.ReplyOnWrite(tt.response + at.CRLF)

			session := modem.NewSession(transport, testConfig())
			_, err := session.Exchange(context.Background(), at.CUSD("AA"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got: %v", tt.wantErr, err)
			}
			if session.State() != modem.StateFailed {
				t.Errorf("expected state %v, got %v", modem.StateFailed, session.State())
			}
		})
	}

	t.Run("ErrNoResponseTag for a keyword without plus", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		mockTransport.EXPECT().Close().Return(nil)

		_, err := modem.NewSession(mockTransport, testConfig()).Exchange(context.Background(), at.NewCommand("ATD", "AA"))
		if !errors.Is(err, at.ErrNoResponseTag) {
			t.Errorf("expected ErrNoResponseTag, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on a second exchange", func(t *testing.T) {
		transport := modem.NewTestTransport()
		transport.ReplyOnWrite(helloResponse + at.CRLF)

		session := modem.NewSession(transport, testConfig())
		if _, err := session.Exchange(context.Background(), at.CUSD("AA")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := session.Exchange(context.Background(), at.CUSD("AA")); !errors.Is(err, modem.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed, got: %v", err)
		}
		if err := session.Close(); !errors.Is(err, modem.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed from Close, got: %v", err)
		}
	})

	t.Run("ErrNotInitialized without a transport", func(t *testing.T) {
		session := modem.NewSession(nil, testConfig())
		if _, err := session.Exchange(context.Background(), at.CUSD("AA")); !errors.Is(err, modem.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized, got: %v", err)
		}
	})
}

func TestRun(t *testing.T) {
	t.Run("Dials and exchanges", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		cmd := at.CUSD("AA180C3602")
		mockTransport := modem.NewMockTransport(ctrl)
		mockDialer := modem.NewMockDialer(ctrl)

		gomock.InOrder(slices.Concat(
			[]any{
				mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil),
			},
			NewMockSequence(mockTransport).
				Send(cmd).
				Echo(cmd).
				Lines(helloResponse).
				Close().
				Build(),
		)...)

		config, err := modem.NewConfigBuilder().
			WithDialer(mockDialer).
			WithPollInterval(-1).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		result, err := modem.Run(context.Background(), config, cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text != "Hello" {
			t.Errorf("expected Hello, got %q", result.Text)
		}
	})

	t.Run("ErrChannelOpen when the dialer fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		dialErr := errors.New("permission denied")
		mockDialer := modem.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any()).Return(nil, dialErr)

		config, err := modem.NewConfigBuilder().WithDialer(mockDialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		_, err = modem.Run(context.Background(), config, at.CUSD("AA"))
		if !errors.Is(err, modem.ErrChannelOpen) {
			t.Errorf("expected ErrChannelOpen, got: %v", err)
		}
		if !errors.Is(err, dialErr) {
			t.Errorf("expected the dial error in chain, got: %v", err)
		}
	})

	t.Run("ErrNotInitialized when the dialer returns nothing", func(t *testing.T) {
		dialer := modem.DialerFunc(func(ctx context.Context) (modem.Transport, error) {
			return nil, nil
		})
		config, err := modem.NewConfigBuilder().WithDialer(dialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		if _, err := modem.Run(context.Background(), config, at.CUSD("AA")); !errors.Is(err, modem.ErrNotInitialized) {
			t.Errorf("expected ErrNotInitialized, got: %v", err)
		}
	})

	t.Run("ErrNoDialer without a dialer", func(t *testing.T) {
		_, err := modem.Run(context.Background(), modem.Config{}, at.CUSD("AA"))
		if !errors.Is(err, modem.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Does not dial for an invalid command", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDialer := modem.NewMockDialer(ctrl)
		config, err := modem.NewConfigBuilder().WithDialer(mockDialer).Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		_, err = modem.Run(context.Background(), config, at.NewCommand("", "AA"))
		if !errors.Is(err, at.ErrEmptyKeyword) {
			t.Errorf("expected ErrEmptyKeyword, got: %v", err)
		}
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state modem.State
		want  string
	}{
		{modem.StateIdle, "idle"},
		{modem.StateSent, "sent"},
		{modem.StateAwaitingLine, "awaiting-line"},
		{modem.StateMatched, "matched"},
		{modem.StateFailed, "failed"},
		{modem.State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
