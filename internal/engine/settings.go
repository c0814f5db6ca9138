package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// startupRampField is the third SetStartContral field. Firmware requires
// it on the wire but ignores the value.
const startupRampField = "10"

// ListTransmitter broadcasts CCO_UID and returns the address of the
// transmitter that answered. A link carries one transmitter; with several
// attached the first reply wins.
func (e *Engine) ListTransmitter(timeout time.Duration) (plc.Address, error) {
	var addr plc.Address
	err := e.withConn(func(c transport.LineConn) error {
		fr, err := e.exchange(c, plc.Broadcast, plc.CmdListCCO, plc.Data{}, e.readTimeout(timeout))
		if err != nil {
			return err
		}
		addr = fr.Addr
		return nil
	})
	return addr, err
}

// ControlMode reads the five input-source switches. The reply spaces the
// flags out as "a b m n d" with one character per flag.
func (e *Engine) ControlMode(cco plc.Address, timeout time.Duration) (ControlMode, error) {
	var mode ControlMode
	err := e.withConn(func(c transport.LineConn) error {
		fr, err := e.exchange(c, cco, plc.CmdGetType, plc.Data{}, e.readTimeout(timeout))
		if err != nil {
			return err
		}
		t := fr.Text
		if len(t) < 9 {
			return fmt.Errorf("%w: control mode reply %q too short", plc.ErrInconsistentResponse, t)
		}
		mode = ControlMode{
			Analog: t[0] == '1',
			Button: t[2] == '1',
			Modbus: t[4] == '1',
			BACnet: t[6] == '1',
			Debug:  t[8] == '1',
		}
		return nil
	})
	return mode, err
}

// SetControlMode writes the input-source switches and verifies the echo.
// Firmware flashes the mode before echoing, so the read waits out a settle
// interval first.
func (e *Engine) SetControlMode(cco plc.Address, mode ControlMode, timeout time.Duration) error {
	data := mode.wireFields()
	return e.withConn(func(c transport.LineConn) error {
		if err := e.send(c, cco, plc.CmdSetType, plc.Text(data)); err != nil {
			return err
		}
		sleepFn(controlModeSettle)
		fr, err := e.expect(c, plc.CmdSetType, e.readTimeout(timeout))
		if err != nil {
			return err
		}
		if fr.Text != data {
			return fmt.Errorf("%w: sent %q, echoed %q", plc.ErrSettingMismatch, data, fr.Text)
		}
		return nil
	})
}

// ResetControlMode enables every input source, then pulses the 0-10V
// recalibration. RESET10V answers nothing.
func (e *Engine) ResetControlMode(cco plc.Address, timeout time.Duration) error {
	all := ControlMode{Analog: true, Button: true, Modbus: true, BACnet: true, Debug: true}
	if err := e.SetControlMode(cco, all, timeout); err != nil {
		return err
	}
	return e.withConn(func(c transport.LineConn) error {
		return e.send(c, cco, plc.CmdReset10V, plc.Data{})
	})
}

// TxPower reads the PLC transmit power in dB.
func (e *Engine) TxPower(cco plc.Address, timeout time.Duration) (int, error) {
	return e.getIntSetting(cco, plc.CmdGetTxPower, timeout)
}

// SetTxPower writes the PLC transmit power (0..24 dB).
func (e *Engine) SetTxPower(cco plc.Address, power int, timeout time.Duration) error {
	if err := validateRange("tx power", power, 0, maxTxPower); err != nil {
		return err
	}
	return e.setEchoSetting(cco, plc.CmdSetTxPower, strconv.Itoa(power), timeout)
}

// AccessTime reads how long the transmitter admits adapters after
// commissioning, in minutes.
func (e *Engine) AccessTime(cco plc.Address, timeout time.Duration) (int, error) {
	return e.getIntSetting(cco, plc.CmdGetAccessTime, timeout)
}

// SetAccessTime writes the admission window (1..30 minutes).
func (e *Engine) SetAccessTime(cco plc.Address, minutes int, timeout time.Duration) error {
	if err := validateRange("access time", minutes, minAccessTime, maxAccessTime); err != nil {
		return err
	}
	return e.setEchoSetting(cco, plc.CmdSetAccessTime, strconv.Itoa(minutes), timeout)
}

// Band reads the powerline frequency band index.
func (e *Engine) Band(cco plc.Address, timeout time.Duration) (int, error) {
	return e.getIntSetting(cco, plc.CmdGetBand, timeout)
}

// SetBand writes the powerline frequency band (0..3).
func (e *Engine) SetBand(cco plc.Address, band int, timeout time.Duration) error {
	if err := validateRange("band", band, 0, maxBand); err != nil {
		return err
	}
	return e.setEchoSetting(cco, plc.CmdSetBand, strconv.Itoa(band), timeout)
}

// DimChannel reads the analog dimming channel count.
func (e *Engine) DimChannel(cco plc.Address, timeout time.Duration) (int, error) {
	return e.getIntSetting(cco, plc.CmdGetChannel, timeout)
}

// SetDimChannel writes the analog dimming channel count. One channel ties
// both outputs together with a 15% floor; two run independently from 0%.
func (e *Engine) SetDimChannel(cco plc.Address, channels int, timeout time.Duration) error {
	if err := validateRange("channel count", channels, minChannel, maxChannel); err != nil {
		return err
	}
	return e.setEchoSetting(cco, plc.CmdSetChannel, strconv.Itoa(channels), timeout)
}

// ModbusAddr reads the Modbus RTU node address.
func (e *Engine) ModbusAddr(cco plc.Address, timeout time.Duration) (int, error) {
	return e.getIntSetting(cco, plc.CmdGetModbusAddr, timeout)
}

// SetModbusAddr writes the Modbus RTU node address (1..255).
func (e *Engine) SetModbusAddr(cco plc.Address, addr int, timeout time.Duration) error {
	if err := validateRange("modbus address", addr, minModbusAddr, maxModbusAddr); err != nil {
		return err
	}
	return e.setEchoSetting(cco, plc.CmdSetModbusAddr, strconv.Itoa(addr), timeout)
}

// StartupControl reads the adapters' power-on behavior. The reply's third
// field is the unused ramp duration; it is validated and dropped.
func (e *Engine) StartupControl(cco plc.Address, timeout time.Duration) (StartupControl, error) {
	var sc StartupControl
	err := e.withConn(func(c transport.LineConn) error {
		fr, err := e.exchange(c, cco, plc.CmdGetStartup, plc.Data{}, e.readTimeout(timeout))
		if err != nil {
			return err
		}
		fields := strings.Fields(fr.Text)
		if len(fields) < 3 {
			return fmt.Errorf("%w: startup reply %q", plc.ErrInconsistentResponse, fr.Text)
		}
		dim, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("%w: startup dimming %q", plc.ErrInconsistentResponse, fields[1])
		}
		if _, err := strconv.Atoi(fields[2]); err != nil {
			return fmt.Errorf("%w: startup ramp %q", plc.ErrInconsistentResponse, fields[2])
		}
		sc = StartupControl{Enabled: fields[0] == "1", DefaultDimming: dim}
		return nil
	})
	return sc, err
}

// SetStartupControl writes the power-on behavior.
func (e *Engine) SetStartupControl(cco plc.Address, sc StartupControl, timeout time.Duration) error {
	if err := validateRange("default dimming", sc.DefaultDimming, 0, maxStartupDim); err != nil {
		return err
	}
	data := fmt.Sprintf("%s %d %s", bit(sc.Enabled), sc.DefaultDimming, startupRampField)
	return e.setEchoSetting(cco, plc.CmdSetStartup, data, timeout)
}

// getIntSetting fetches a single integer-valued setting.
func (e *Engine) getIntSetting(cco plc.Address, cmd string, timeout time.Duration) (int, error) {
	var v int
	err := e.withConn(func(c transport.LineConn) error {
		fr, err := e.exchange(c, cco, cmd, plc.Data{}, e.readTimeout(timeout))
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(fr.Text))
		if err != nil {
			return fmt.Errorf("%w: %s value %q", plc.ErrInconsistentResponse, cmd, fr.Text)
		}
		v = n
		return nil
	})
	return v, err
}

// setEchoSetting writes a setting and verifies the transmitter echoed the
// data back verbatim.
func (e *Engine) setEchoSetting(cco plc.Address, cmd, data string, timeout time.Duration) error {
	return e.withConn(func(c transport.LineConn) error {
		fr, err := e.exchange(c, cco, cmd, plc.Text(data), e.readTimeout(timeout))
		if err != nil {
			return err
		}
		if fr.Text != data {
			return fmt.Errorf("%w: %s sent %q, echoed %q", plc.ErrSettingMismatch, cmd, data, fr.Text)
		}
		return nil
	})
}
