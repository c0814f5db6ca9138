package engine

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/plcworks/go-plclight-server/internal/plc"
	"github.com/plcworks/go-plclight-server/internal/transport"
)

// dynamicIPData is the SetDeviceIP payload requesting DHCP; zeroed fields
// plus a zero checksum.
const dynamicIPData = "0.0.0.0 0.0.0.0 0.0.0.0 0 0"

// IPConfigGet reads the transmitter's static ethernet configuration.
// The transmitter reports address, netmask and gateway; whether DHCP is
// active is not part of the reply, so Dynamic is always false here.
func (e *Engine) IPConfigGet(cco plc.Address, timeout time.Duration) (IPConfig, error) {
	var cfg IPConfig
	err := e.withConn(func(c transport.LineConn) error {
		fr, err := e.exchange(c, cco, plc.CmdGetDeviceIP, plc.Data{}, e.readTimeout(timeout))
		if err != nil {
			return err
		}
		fields := strings.Fields(fr.Text)
		if len(fields) < 3 {
			return fmt.Errorf("%w: ip reply %q", plc.ErrInconsistentResponse, fr.Text)
		}
		addrs := make([]netip.Addr, 3)
		for i := 0; i < 3; i++ {
			a, err := netip.ParseAddr(fields[i])
			if err != nil {
				return fmt.Errorf("%w: ip field %q", plc.ErrInconsistentResponse, fields[i])
			}
			addrs[i] = a
		}
		cfg = IPConfig{Address: addrs[0], Netmask: addrs[1], Gateway: addrs[2]}
		return nil
	})
	return cfg, err
}

// SetIPConfig writes the ethernet configuration. The dynamic form answers
// one "OK 0" frame. The static form appends a checksum (octet sums of all
// three addresses plus one) and answers in four lines of which only the
// last, "OK 1", is meaningful.
func (e *Engine) SetIPConfig(cco plc.Address, cfg IPConfig, timeout time.Duration) error {
	if !cfg.Dynamic {
		for name, a := range map[string]netip.Addr{
			"address": cfg.Address, "netmask": cfg.Netmask, "gateway": cfg.Gateway,
		} {
			if !a.Is4() {
				return fmt.Errorf("%w: %s must be IPv4, got %q", plc.ErrValidation, name, a)
			}
		}
	}
	return e.withConn(func(c transport.LineConn) error {
		wait := e.readTimeout(timeout)
		if cfg.Dynamic {
			fr, err := e.exchange(c, cco, plc.CmdSetDeviceIP, plc.Text(dynamicIPData), wait)
			if err != nil {
				return err
			}
			if fr.Text != "OK 0" {
				return fmt.Errorf("%w: dynamic ip ack %q", plc.ErrSettingMismatch, fr.Text)
			}
			return nil
		}
		data := fmt.Sprintf("%s %s %s 1 %d", cfg.Address, cfg.Netmask, cfg.Gateway, ipChecksum(cfg))
		if err := e.send(c, cco, plc.CmdSetDeviceIP, plc.Text(data)); err != nil {
			return err
		}
		// Three progress lines precede the acknowledgement; their content
		// is not specified and is discarded.
		for i := 0; i < 3; i++ {
			if _, err := e.readLine(c, plc.CmdSetDeviceIP, wait); err != nil {
				return err
			}
		}
		fr, err := e.expect(c, plc.CmdSetDeviceIP, wait)
		if err != nil {
			return err
		}
		if fr.Text != "OK 1" {
			return fmt.Errorf("%w: static ip ack %q", plc.ErrSettingMismatch, fr.Text)
		}
		return nil
	})
}

// ipChecksum sums the dotted-quad octets of address, netmask and gateway,
// plus one.
func ipChecksum(cfg IPConfig) int {
	sum := 1
	for _, a := range []netip.Addr{cfg.Address, cfg.Netmask, cfg.Gateway} {
		quad := a.As4()
		for _, b := range quad {
			sum += int(b)
		}
	}
	return sum
}
