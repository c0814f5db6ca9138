package serial

import (
	"context"
	"errors"

	"github.com/plcworks/go-plclight-server/internal/logging"
	"github.com/plcworks/go-plclight-server/internal/metrics"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

var ErrTxOverflow = errors.New("serial tx overflow")

// TXWriter funnels all writes of a shared link through one goroutine.
// Discovery sessions use it so the trigger task and the forwarding loop
// never interleave bytes on the wire.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a TXWriter over w with a buffered channel of size buf.
func NewTXWriter(parent context.Context, w transport.LineWriter, buf int) *TXWriter {
	send := func(line []byte) error {
		_, err := w.Write(line)
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncSerialTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendLine queues a line for asynchronous write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendLine(line []byte) error { return w.base.SendLine(line) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }
