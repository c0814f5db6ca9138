package serial

import (
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/plcworks/go-plclight-server/internal/transport"
)

const readBufSize = 512

// Conn layers newline framing over a Port. Partial input accumulates in an
// internal buffer, so a line split across port reads survives between
// calls. A Conn owns its port exclusively for the conversation's lifetime;
// it is not safe for concurrent readers.
type Conn struct {
	port Port
	buf  bytes.Buffer
	rbuf []byte
}

var _ transport.LineConn = (*Conn)(nil)

func NewConn(p Port) *Conn {
	return &Conn{port: p, rbuf: make([]byte, readBufSize)}
}

// ReadLine returns the next complete line, trailing '\n' included, waiting
// up to timeout. A nil line with nil error means the timeout elapsed with
// no complete line available: the protocol's "no reply" signal. The wait
// granularity is the port read quantum, so the effective timeout rounds up
// to one quantum.
func (c *Conn) ReadLine(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		if line := c.takeLine(); line != nil {
			return line, nil
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		n, err := c.port.Read(c.rbuf)
		if n > 0 {
			c.buf.Write(c.rbuf[:n])
			continue
		}
		// Zero-byte EOF is the port's quantum timeout, not a link fault.
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
}

// Drain returns every complete line currently available, reading the port
// until one quantum passes without input. An incomplete trailing line
// stays buffered for the next call.
func (c *Conn) Drain() ([][]byte, error) {
	var lines [][]byte
	for {
		for {
			line := c.takeLine()
			if line == nil {
				break
			}
			lines = append(lines, line)
		}
		n, err := c.port.Read(c.rbuf)
		if n > 0 {
			c.buf.Write(c.rbuf[:n])
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return lines, err
		}
		return lines, nil
	}
}

// Write transmits one pre-encoded frame.
func (c *Conn) Write(p []byte) (int, error) { return c.port.Write(p) }

// Close releases the port.
func (c *Conn) Close() error { return c.port.Close() }

// takeLine pops one complete line from the buffer, or nil.
func (c *Conn) takeLine() []byte {
	b := c.buf.Bytes()
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return nil
	}
	line := make([]byte, i+1)
	copy(line, b[:i+1])
	c.buf.Next(i + 1)
	return line
}
