// Package serial provides the line-oriented serial transport to a PLC
// lighting transmitter dongle: port access, newline framing and the
// single-writer TX funnel.
package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens the device with readTimeout as the port read quantum. Reads
// return io.EOF when a quantum elapses without input; Conn relies on that
// to pace its deadline checks.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}

// OpenConn opens the device and wraps it for line-oriented use. The
// readTimeout quantum is not a conversation timeout: Conn.ReadLine takes
// the per-call wait.
func OpenConn(name string, baud int, readTimeout time.Duration) (*Conn, error) {
	p, err := Open(name, baud, readTimeout)
	if err != nil {
		return nil, err
	}
	return NewConn(p), nil
}
