package modem

import (
	"bytes"
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport.
// Reads block until data is queued with SendData (like a real serial port would)
// and return io.EOF once Hangup or Close has been called and the queue is drained.
// With echo enabled every write is queued back for reading, like a modem in ATE1.
// The read queue is unbounded, so writers never wait for a reader.
type TestTransport struct {
	mu      sync.Mutex
	ready   *sync.Cond
	pending []byte
	written bytes.Buffer
	echo    bool
	replies []string
	hungUp  bool
	closed  bool
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	t := &TestTransport{}
	t.ready = sync.NewCond(&t.mu)
	return t
}

// SetEcho enables or disables echoing of written data.
func (t *TestTransport) SetEcho(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.echo = on
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	t.written.Write(p)
	if t.echo {
		t.queue(p)
	}
	for _, reply := range t.replies {
		t.queue([]byte(reply))
	}
	t.replies = nil
	return len(p), nil
}

// ReplyOnWrite queues data to be read after the next write, following
// the echo if enabled. This simulates the modem answering a command.
func (t *TestTransport) ReplyOnWrite(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = append(t.replies, data)
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.pending) == 0 && !t.hungUp {
		t.ready.Wait()
	}
	if len(t.pending) == 0 {
		return 0, io.EOF
	}
	n = copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// queue must be called with mu held. Data queued after a hangup is dropped.
func (t *TestTransport) queue(data []byte) {
	if t.hungUp {
		return
	}
	t.pending = append(t.pending, data...)
	t.ready.Broadcast()
}

// Hangup stops the modem side: once queued data is drained, reads
// return io.EOF. Writes still succeed.
func (t *TestTransport) Hangup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hangup()
}

func (t *TestTransport) hangup() {
	if t.hungUp {
		return
	}
	t.hungUp = true
	t.ready.Broadcast()
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.hangup()
	return nil
}

// Closed reports whether Close has been called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Written returns everything written to the transport so far.
func (t *TestTransport) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue([]byte(data))
}
