package modem_test

import (
	"strings"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/ussd/at"
	"i4.energy/across/ussd/modem"
)

type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Send expects cmd to be written in full.
func (b *MockSequenceBuilder) Send(cmd at.Command) *MockSequenceBuilder {
	line := []byte(cmd.Line())
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(line).Return(len(line), nil),
	)
	return b
}

// Lines expects one read that delivers lines, each terminated by CRLF.
func (b *MockSequenceBuilder) Lines(lines ...string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			resp := strings.Join(lines, at.CRLF) + at.CRLF
			return copy(p, resp), nil
		}),
	)
	return b
}

// Echo expects one read that delivers the modem's echo of cmd.
func (b *MockSequenceBuilder) Echo(cmd at.Command) *MockSequenceBuilder {
	return b.Lines(cmd.Echo())
}

// Read expects one read returning err.
func (b *MockSequenceBuilder) Read(err error) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).Return(0, err),
	)
	return b
}

// Close expects the transport to be released.
func (b *MockSequenceBuilder) Close() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Close().Return(nil),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
