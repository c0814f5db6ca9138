package engine

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// BroadcastDimming reads the transmitter-wide dimming levels.
func (e *Engine) BroadcastDimming(cco plc.Address, timeout time.Duration) (Dimming, error) {
	var d Dimming
	err := e.withConn(func(c transport.LineConn) error {
		fr, err := e.exchange(c, cco, plc.CmdGetDims, plc.Data{}, e.readTimeout(timeout))
		if err != nil {
			return err
		}
		fields := strings.Fields(fr.Text)
		if len(fields) != 3 {
			return fmt.Errorf("%w: dimming reply %q", plc.ErrInconsistentResponse, fr.Text)
		}
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return fmt.Errorf("%w: dimming level %q", plc.ErrInconsistentResponse, f)
			}
			d[i] = v
		}
		return nil
	})
	return d, err
}

// SetBroadcastDimming pushes levels to every adapter at once. SETDIMS
// separates its data with a space instead of a colon and answers nothing.
func (e *Engine) SetBroadcastDimming(cco plc.Address, d Dimming) error {
	if err := d.validate(); err != nil {
		return err
	}
	frame := plc.Prefix(cco, plc.CmdSetDims)
	frame = append(frame, ' ')
	frame = append(frame, fmt.Sprintf("%d %d %d", d[0], d[1], d[2])...)
	frame = append(frame, '\n')
	return e.withConn(func(c transport.LineConn) error {
		return e.sendRaw(c, plc.CmdSetDims, frame)
	})
}

// DimSingle pins one adapter to the given levels, detaching it from
// broadcast control. Fire-and-forget.
func (e *Engine) DimSingle(cco, sta plc.Address, d Dimming) error {
	return e.dimSingle(cco, sta, d, plc.ModeSingleEnable)
}

// DisableDimSingle returns one adapter to broadcast control. The level
// triple rides along but the firmware ignores it.
func (e *Engine) DisableDimSingle(cco, sta plc.Address, d Dimming) error {
	return e.dimSingle(cco, sta, d, plc.ModeSingleDisable)
}

// dimSingle writes the binary DIMALL3 form: three big-endian level words,
// the 6-byte adapter address, one mode byte. No colon after the command.
func (e *Engine) dimSingle(cco, sta plc.Address, d Dimming, mode byte) error {
	if err := d.validate(); err != nil {
		return err
	}
	raw, err := sta.STABytes()
	if err != nil {
		return err
	}
	frame := plc.Prefix(cco, plc.CmdDimAll3)
	frame = d.appendWire(frame)
	frame = append(frame, raw...)
	frame = append(frame, mode, '\n')
	return e.withConn(func(c transport.LineConn) error {
		return e.sendRaw(c, plc.CmdDimAll3, frame)
	})
}

// DimGroup pins one group to the given levels. Fire-and-forget.
func (e *Engine) DimGroup(cco plc.Address, group int, d Dimming) error {
	return e.dimGroup(cco, group, d, plc.ModeGroupEnable)
}

// DisableDimGroup returns one group to broadcast control.
func (e *Engine) DisableDimGroup(cco plc.Address, group int) error {
	return e.dimGroup(cco, group, Dimming{}, plc.ModeGroupDisable)
}

// dimGroup writes the group DIMALL3 form: the address slot carries 4 zero
// bytes and the big-endian group word instead of an adapter address.
func (e *Engine) dimGroup(cco plc.Address, group int, d Dimming, mode byte) error {
	if err := validateRange("group", group, minGroup, maxGroup); err != nil {
		return err
	}
	if err := d.validate(); err != nil {
		return err
	}
	frame := plc.Prefix(cco, plc.CmdDimAll3)
	frame = d.appendWire(frame)
	frame = append(frame, 0, 0, 0, 0)
	frame = binary.BigEndian.AppendUint16(frame, uint16(group))
	frame = append(frame, mode, '\n')
	return e.withConn(func(c transport.LineConn) error {
		return e.sendRaw(c, plc.CmdDimAll3, frame)
	})
}
