package engine

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"github.com/plcworks/go-plclight-server/internal/plc"
)

// Setting ranges enforced before any serial I/O.
const (
	maxDimLevel   = 999
	minGroup      = 1
	maxGroup      = 8
	maxTxPower    = 24
	minAccessTime = 1
	maxAccessTime = 30
	maxBand       = 3
	minChannel    = 1
	maxChannel    = 2
	maxStartupDim = 100
	minModbusAddr = 1
	maxModbusAddr = 255
)

// Dimming holds the level triple for output channels 1..3. Levels are
// 0..999 in tenths of a percent; status reports reuse the type for the
// device-reported raw values.
type Dimming [3]int

func (d Dimming) validate() error {
	for i, lv := range d {
		if lv < 0 || lv > maxDimLevel {
			return fmt.Errorf("%w: channel %d level %d outside [0,%d]", plc.ErrValidation, i+1, lv, maxDimLevel)
		}
	}
	return nil
}

// appendWire appends the three levels as big-endian 16-bit words, the
// layout DIMALL3 payloads start with.
func (d Dimming) appendWire(b []byte) []byte {
	for _, lv := range d {
		b = binary.BigEndian.AppendUint16(b, uint16(lv))
	}
	return b
}

// ControlMode mirrors the transmitter's five input-source switches.
// Button control cannot be switched off: writes force it on so wall
// switches keep working whatever else is misconfigured.
type ControlMode struct {
	Analog bool `json:"analog"`
	Button bool `json:"button"`
	Modbus bool `json:"modbus"`
	BACnet bool `json:"bacnet"`
	Debug  bool `json:"debug"`
}

// wireFields renders the switches in wire order with button forced on.
func (m ControlMode) wireFields() string {
	fields := []string{bit(m.Analog), "1", bit(m.Modbus), bit(m.BACnet), bit(m.Debug)}
	return strings.Join(fields, " ")
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// StartupControl is the adapters' power-on behavior: whether lamps start
// under transmitter control and the default dimming percent applied until
// a controller speaks.
type StartupControl struct {
	Enabled        bool `json:"is_enabled"`
	DefaultDimming int  `json:"default_dimming"`
}

// IPConfig is the transmitter's ethernet configuration. With Dynamic set
// the address fields are ignored on writes.
type IPConfig struct {
	Dynamic bool       `json:"dynamic"`
	Address netip.Addr `json:"address"`
	Netmask netip.Addr `json:"netmask"`
	Gateway netip.Addr `json:"gateway"`
}

// GroupAssignment pairs an adapter with its group slot.
type GroupAssignment struct {
	STA   plc.Address `json:"sta_uid"`
	Group int         `json:"group_id"`
}

// STAStatus is one adapter's status report. The power meter block is
// passed through raw; its layout varies by adapter firmware.
type STAStatus struct {
	STA      plc.Address `json:"serial_number"`
	Firmware string      `json:"firmware_version"`
	Dimming  Dimming     `json:"dimming_levels"`
	Mode     string      `json:"dimming_mode"`
	MeterRaw string      `json:"power_meter_raw"`
}

func validateRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d outside [%d,%d]", plc.ErrValidation, name, v, lo, hi)
	}
	return nil
}
