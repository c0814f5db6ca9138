package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// whitelistPageSize is how many adapter addresses one WHMLIST page carries.
const whitelistPageSize = 4

// Whitelist reads the adapter whitelist. The transmitter answers WHSGET
// with WHMULT pages of "<index> <count> <total> <addr>..."; the page whose
// index+count reaches total is the last one.
func (e *Engine) Whitelist(cco plc.Address, timeout time.Duration) ([]plc.Address, error) {
	list := []plc.Address{}
	err := e.withConn(func(c transport.LineConn) error {
		if err := e.send(c, cco, plc.CmdWhitelistGet, plc.Data{}); err != nil {
			return err
		}
		wait := e.readTimeout(timeout)
		for {
			fr, err := e.expect(c, plc.CmdWhitelistPage, wait)
			if err != nil {
				return err
			}
			fields := strings.Fields(fr.Text)
			if len(fields) < 3 {
				return fmt.Errorf("%w: whitelist page header %q", plc.ErrInconsistentResponse, fr.Text)
			}
			index, err1 := strconv.Atoi(fields[0])
			count, err2 := strconv.Atoi(fields[1])
			total, err3 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil || err3 != nil {
				return fmt.Errorf("%w: whitelist page header %q", plc.ErrInconsistentResponse, fr.Text)
			}
			for _, f := range fields[3:] {
				list = append(list, plc.Address(f))
			}
			if index+count == total {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ClearWhitelist wipes the whitelist. The WHCLR acknowledgement carries no
// data field and is consumed without decoding; only busy markers are
// rejected.
func (e *Engine) ClearWhitelist(cco plc.Address, timeout time.Duration) error {
	return e.withConn(func(c transport.LineConn) error {
		if err := e.send(c, cco, plc.CmdWhitelistClear, plc.Data{}); err != nil {
			return err
		}
		line, err := e.readLine(c, plc.CmdWhitelistClear, e.readTimeout(timeout))
		if err != nil {
			return err
		}
		if plc.IsBusyLine(line) {
			return fmt.Errorf("%w: %s", plc.ErrDeviceBusy, strings.TrimRight(string(line), "\r\n"))
		}
		// TODO: poll the transmitter until its PLC module finishes reloading
		// the whitelist instead of leaving the pacing to callers.
		return nil
	})
}

// SetWhitelist replaces the whitelist: clear, WHSTART, pages of up to 4
// addresses, WHEND. Each page must be echoed back as a prefix of what was
// sent; any failure after WHSTART still closes the sequence with WHEND so
// the transmitter is not left mid-update.
func (e *Engine) SetWhitelist(cco plc.Address, stas []plc.Address, timeout time.Duration) error {
	for _, sta := range stas {
		if _, err := plc.ParseSTA(string(sta)); err != nil {
			return err
		}
	}
	if err := e.ClearWhitelist(cco, timeout); err != nil {
		return err
	}
	return e.withConn(func(c transport.LineConn) error {
		wait := e.readTimeout(timeout)
		// The WHSTART acknowledgement carries no meaningful data; a valid
		// frame is the ack.
		if _, err := e.exchange(c, cco, plc.CmdWhitelistStart, plc.Data{}, wait); err != nil {
			return err
		}
		err := e.writePages(c, cco, stas, wait)
		if werr := e.send(c, cco, plc.CmdWhitelistEnd, plc.Data{}); werr != nil && err == nil {
			err = werr
		}
		return err
	})
}

// writePages streams the paging phase of a whitelist update.
func (e *Engine) writePages(c transport.LineConn, cco plc.Address, stas []plc.Address, wait time.Duration) error {
	total := len(stas)
	for index := 0; index < total; index += whitelistPageSize {
		count := whitelistPageSize
		if rem := total - index; rem < count {
			count = rem
		}
		fields := make([]string, 0, 3+count)
		fields = append(fields, strconv.Itoa(index), strconv.Itoa(count), strconv.Itoa(total))
		for _, sta := range stas[index : index+count] {
			fields = append(fields, string(sta))
		}
		data := strings.Join(fields, " ")
		fr, err := e.exchange(c, cco, plc.CmdWhitelistList, plc.Text(data), wait)
		if err != nil {
			return err
		}
		// The transmitter may truncate the echo; it must match what was
		// sent up to its length.
		if !strings.HasPrefix(data, fr.Text) {
			return fmt.Errorf("%w: page %d sent %q, echoed %q", plc.ErrWriteMismatch, index/whitelistPageSize, data, fr.Text)
		}
	}
	return nil
}
