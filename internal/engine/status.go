package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// Fixed field widths of the STA status report, after the adapter address.
const (
	statusFirmwareLen = 6
	statusDimmingLen  = 6
	statusModeLen     = 2
)

// Status queries one adapter through its transmitter. The transmitter
// first echoes the adapter address, then forwards the adapter's "STA"
// report: firmware revision, per-channel dimming levels as byte-swapped
// hex pairs, the dimming mode and a raw power meter block.
func (e *Engine) Status(cco, sta plc.Address, timeout time.Duration) (STAStatus, error) {
	if _, err := plc.ParseSTA(string(sta)); err != nil {
		return STAStatus{}, err
	}
	var st STAStatus
	err := e.withConn(func(c transport.LineConn) error {
		wait := e.readTimeout(timeout)
		fr, err := e.exchange(c, cco, plc.CmdStatus, plc.Text(string(sta)), wait)
		if err != nil {
			return err
		}
		if fr.Text != string(sta) {
			return fmt.Errorf("%w: asked about %q, transmitter echoed %q", plc.ErrInconsistentResponse, sta, fr.Text)
		}
		rep, err := e.expect(c, plc.CmdSTAReport, wait)
		if err != nil {
			return err
		}
		parsed, err := parseStatusReport(sta, rep.Text)
		if err != nil {
			return err
		}
		st = parsed
		return nil
	})
	return st, err
}

func parseStatusReport(sta plc.Address, text string) (STAStatus, error) {
	if !strings.HasPrefix(text, string(sta)) {
		return STAStatus{}, fmt.Errorf("%w: status report for %q names %q", plc.ErrInconsistentResponse, sta, text)
	}
	rest := text[len(sta):]
	if len(rest) < statusFirmwareLen+statusDimmingLen+statusModeLen {
		return STAStatus{}, fmt.Errorf("%w: status report %q too short", plc.ErrInconsistentResponse, text)
	}
	st := STAStatus{STA: sta, Firmware: rest[:statusFirmwareLen]}

	// Dimming levels arrive low-nibble-first: each channel is a 2-char hex
	// byte with its characters swapped on the wire.
	pairs := rest[statusFirmwareLen : statusFirmwareLen+statusDimmingLen]
	for ch := 0; ch < 3; ch++ {
		swapped := string(pairs[2*ch+1]) + string(pairs[2*ch])
		v, err := strconv.ParseUint(swapped, 16, 8)
		if err != nil {
			return STAStatus{}, fmt.Errorf("%w: dimming hex %q", plc.ErrInconsistentResponse, swapped)
		}
		st.Dimming[ch] = int(v)
	}

	modeStart := statusFirmwareLen + statusDimmingLen
	st.Mode = dimModeName(rest[modeStart : modeStart+statusModeLen])
	// Power meter block, starting 0x55. Layout varies by adapter firmware;
	// passed through for callers to interpret.
	st.MeterRaw = rest[modeStart+statusModeLen:]
	return st, nil
}

// dimModeName maps the status report's mode field to its wire meaning.
// The codes match the DIMALL3 mode bytes.
func dimModeName(code string) string {
	switch code {
	case "00":
		return "broadcast"
	case "04":
		return "single enable"
	case "05":
		return "single disable"
	case "06":
		return "group enable"
	case "07":
		return "group disable"
	}
	return "unknown " + code
}

// Reboot power-cycles the transmitter. No response; the transmitter is
// unreachable for roughly ten seconds afterwards.
func (e *Engine) Reboot(cco plc.Address) error {
	return e.withConn(func(c transport.LineConn) error {
		return e.send(c, cco, plc.CmdReboot, plc.Data{})
	})
}
