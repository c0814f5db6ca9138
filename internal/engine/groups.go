package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// SET_DEVICE_GROUP data is "<sta><12-digit group><mode>" with mode "00"
// for read and "01" for write.
const (
	groupModeRead  = "00"
	groupModeWrite = "01"
)

func groupFieldZero() string { return strings.Repeat("0", 12) }

func groupField(group int) string { return fmt.Sprintf("%012d", group) }

// STAGroup reads one adapter's group slot. The transmitter answers in two
// frames: a GROUPS frame echoing the adapter address, then a
// SET_DEVICE_GROUP frame whose data is the address with the group digits
// appended.
func (e *Engine) STAGroup(cco, sta plc.Address, timeout time.Duration) (int, error) {
	if _, err := plc.ParseSTA(string(sta)); err != nil {
		return 0, err
	}
	var group int
	err := e.withConn(func(c transport.LineConn) error {
		data := string(sta) + groupFieldZero() + groupModeRead
		if err := e.send(c, cco, plc.CmdSetDeviceGroup, plc.Text(data)); err != nil {
			return err
		}
		wait := e.readTimeout(timeout)
		if err := e.expectGroupsEcho(c, sta, wait); err != nil {
			return err
		}
		g, err := e.readGroupReport(c, sta, wait)
		if err != nil {
			return err
		}
		group = g
		return nil
	})
	return group, err
}

// SetSTAGroup writes one adapter's group slot (1..8) and verifies the
// reported slot matches.
func (e *Engine) SetSTAGroup(cco, sta plc.Address, group int, timeout time.Duration) error {
	if _, err := plc.ParseSTA(string(sta)); err != nil {
		return err
	}
	if err := validateRange("group", group, minGroup, maxGroup); err != nil {
		return err
	}
	return e.withConn(func(c transport.LineConn) error {
		data := string(sta) + groupField(group) + groupModeWrite
		if err := e.send(c, cco, plc.CmdSetDeviceGroup, plc.Text(data)); err != nil {
			return err
		}
		wait := e.readTimeout(timeout)
		if err := e.expectGroupsEcho(c, sta, wait); err != nil {
			return err
		}
		got, err := e.readGroupReport(c, sta, wait)
		if err != nil {
			return err
		}
		if got != group {
			return fmt.Errorf("%w: wrote group %d, transmitter reports %d", plc.ErrSettingMismatch, group, got)
		}
		return nil
	})
}

// AllSTAGroups walks the transmitter's group table. Frames arrive in
// GROUPS/SET_DEVICE_GROUP pairs until the transmitter goes quiet; the
// closing timeout is the normal end of the list, not an error. A decode
// failure on the leading frame of a pair, busy markers included, means no
// groups are present and yields an empty result.
func (e *Engine) AllSTAGroups(cco plc.Address, timeout time.Duration) ([]GroupAssignment, error) {
	out := []GroupAssignment{}
	err := e.withConn(func(c transport.LineConn) error {
		if err := e.send(c, cco, plc.CmdGetSTAGroups, plc.Data{}); err != nil {
			return err
		}
		wait := e.readTimeout(timeout)
		for {
			line, err := c.ReadLine(wait)
			if err != nil {
				return fmt.Errorf("read %s response: %w", plc.CmdGroups, err)
			}
			if line == nil {
				return nil
			}
			fr, err := plc.Decode(line, plc.CmdGroups)
			if err != nil {
				out = out[:0]
				return nil
			}
			sta := plc.Address(fr.Text)
			group, err := e.readGroupReport(c, sta, wait)
			if err != nil {
				return err
			}
			out = append(out, GroupAssignment{STA: sta, Group: group})
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// expectGroupsEcho validates the leading GROUPS frame: its data must be
// exactly the adapter address being asked about.
func (e *Engine) expectGroupsEcho(c transport.LineConn, sta plc.Address, timeout time.Duration) error {
	fr, err := e.expect(c, plc.CmdGroups, timeout)
	if err != nil {
		return err
	}
	if fr.Text != string(sta) {
		return fmt.Errorf("%w: asked about %q, transmitter echoed %q", plc.ErrInconsistentResponse, sta, fr.Text)
	}
	return nil
}

// readGroupReport validates the closing SET_DEVICE_GROUP frame and
// extracts the group digits appended to the adapter address.
func (e *Engine) readGroupReport(c transport.LineConn, sta plc.Address, timeout time.Duration) (int, error) {
	fr, err := e.expect(c, plc.CmdSetDeviceGroup, timeout)
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(fr.Text, string(sta)) {
		return 0, fmt.Errorf("%w: group frame for %q names %q", plc.ErrInconsistentResponse, sta, fr.Text)
	}
	group, err := strconv.Atoi(fr.Text[len(sta):])
	if err != nil {
		return 0, fmt.Errorf("%w: group digits %q", plc.ErrInconsistentResponse, fr.Text[len(sta):])
	}
	return group, nil
}
