package engine

import (
	"fmt"
	"time"

	"github.com/plcworks/go-plclight-server/internal/metrics"
	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// send encodes and writes one command frame.
func (e *Engine) send(c transport.LineConn, addr plc.Address, cmd string, data plc.Data) error {
	return e.sendRaw(c, cmd, plc.Encode(addr, cmd, data))
}

// sendRaw writes a pre-built frame. Dimming commands build their binary
// payloads outside Encode and come through here.
func (e *Engine) sendRaw(c transport.LineConn, cmd string, frame []byte) error {
	if _, err := c.Write(frame); err != nil {
		metrics.IncError(metrics.ErrSerialWrite)
		return fmt.Errorf("write %s: %w", cmd, err)
	}
	metrics.IncSerialTx()
	metrics.IncCommand(cmd)
	return nil
}

// expect reads one line within timeout and decodes it against cmd.
func (e *Engine) expect(c transport.LineConn, cmd string, timeout time.Duration) (plc.ResponseFrame, error) {
	line, err := e.readLine(c, cmd, timeout)
	if err != nil {
		return plc.ResponseFrame{}, err
	}
	return plc.Decode(line, cmd)
}

// readLine reads one raw line, mapping an empty read to ErrTimeout. Used
// directly where the device answers outside the regular frame structure.
func (e *Engine) readLine(c transport.LineConn, cmd string, timeout time.Duration) ([]byte, error) {
	line, err := c.ReadLine(timeout)
	if err != nil {
		metrics.IncError(metrics.ErrSerialRead)
		return nil, fmt.Errorf("read %s response: %w", cmd, err)
	}
	if line == nil {
		metrics.IncTimeout()
		return nil, fmt.Errorf("%s: %w", cmd, plc.ErrTimeout)
	}
	metrics.IncSerialRx()
	return line, nil
}

// exchange runs the common one-command one-response transaction.
func (e *Engine) exchange(c transport.LineConn, addr plc.Address, cmd string, data plc.Data, timeout time.Duration) (plc.ResponseFrame, error) {
	if err := e.send(c, addr, cmd, data); err != nil {
		return plc.ResponseFrame{}, err
	}
	return e.expect(c, cmd, timeout)
}
