package engine

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/plcworks/go-plclight-server/internal/plc"
)

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", s, err)
	}
	return a
}

func TestIPChecksum(t *testing.T) {
	// 192.0.0.128 sums to 320, 255.255.255.128 to 893, 192.168.0.1 to 361.
	cfg := IPConfig{
		Address: mustAddr(t, "192.0.0.128"),
		Netmask: mustAddr(t, "255.255.255.128"),
		Gateway: mustAddr(t, "192.168.0.1"),
	}
	if got := ipChecksum(cfg); got != 1575 {
		t.Fatalf("ipChecksum = %d, want 1575", got)
	}
}

func TestIPConfigGet(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		respond(testCCO, plc.CmdGetDeviceIP, "192.168.1.10 255.255.255.0 192.168.1.1"),
	}}
	e := testEngine(conn)
	cfg, err := e.IPConfigGet(testCCO, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(conn.writes[0]) != "@@046DD5BC:GetDeviceIP\n" {
		t.Fatalf("frame = %q", conn.writes[0])
	}
	if cfg.Address != mustAddr(t, "192.168.1.10") || cfg.Netmask != mustAddr(t, "255.255.255.0") || cfg.Gateway != mustAddr(t, "192.168.1.1") {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Dynamic {
		t.Fatal("Dynamic should never be reported")
	}
}

func TestIPConfigGetGarbage(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		respond(testCCO, plc.CmdGetDeviceIP, "not an address at all"),
	}}
	e := testEngine(conn)
	if _, err := e.IPConfigGet(testCCO, 0); !errors.Is(err, plc.ErrInconsistentResponse) {
		t.Fatalf("want ErrInconsistentResponse, got %v", err)
	}
}

func TestSetIPConfigStatic(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		respond(testCCO, plc.CmdSetDeviceIP, "writing flash"),
		respond(testCCO, plc.CmdSetDeviceIP, "writing flash"),
		respond(testCCO, plc.CmdSetDeviceIP, "writing flash"),
		respond(testCCO, plc.CmdSetDeviceIP, "OK 1"),
	}}
	e := testEngine(conn)
	cfg := IPConfig{
		Address: mustAddr(t, "192.0.0.128"),
		Netmask: mustAddr(t, "255.255.255.128"),
		Gateway: mustAddr(t, "192.168.0.1"),
	}
	if err := e.SetIPConfig(testCCO, cfg, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "@@046DD5BC:SetDeviceIP:192.0.0.128 255.255.255.128 192.168.0.1 1 1575\n"
	if string(conn.writes[0]) != want {
		t.Fatalf("frame = %q, want %q", conn.writes[0], want)
	}
}

func TestSetIPConfigStaticBadAck(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		respond(testCCO, plc.CmdSetDeviceIP, "x"),
		respond(testCCO, plc.CmdSetDeviceIP, "x"),
		respond(testCCO, plc.CmdSetDeviceIP, "x"),
		respond(testCCO, plc.CmdSetDeviceIP, "FAIL"),
	}}
	e := testEngine(conn)
	cfg := IPConfig{
		Address: mustAddr(t, "10.0.0.2"),
		Netmask: mustAddr(t, "255.0.0.0"),
		Gateway: mustAddr(t, "10.0.0.1"),
	}
	if err := e.SetIPConfig(testCCO, cfg, 0); !errors.Is(err, plc.ErrSettingMismatch) {
		t.Fatalf("want ErrSettingMismatch, got %v", err)
	}
}

// Progress lines are expected even when they never arrive; the wait for
// them times out like any other read.
func TestSetIPConfigStaticProgressTimeout(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		respond(testCCO, plc.CmdSetDeviceIP, "writing flash"),
	}}
	e := testEngine(conn)
	cfg := IPConfig{
		Address: mustAddr(t, "10.0.0.2"),
		Netmask: mustAddr(t, "255.0.0.0"),
		Gateway: mustAddr(t, "10.0.0.1"),
	}
	if err := e.SetIPConfig(testCCO, cfg, 0); !errors.Is(err, plc.ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
}

func TestSetIPConfigDynamic(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		respond(testCCO, plc.CmdSetDeviceIP, "OK 0"),
	}}
	e := testEngine(conn)
	if err := e.SetIPConfig(testCCO, IPConfig{Dynamic: true}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "@@046DD5BC:SetDeviceIP:0.0.0.0 0.0.0.0 0.0.0.0 0 0\n"
	if string(conn.writes[0]) != want {
		t.Fatalf("frame = %q, want %q", conn.writes[0], want)
	}
}

func TestSetIPConfigDynamicBadAck(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{
		respond(testCCO, plc.CmdSetDeviceIP, "OK 1"),
	}}
	e := testEngine(conn)
	if err := e.SetIPConfig(testCCO, IPConfig{Dynamic: true}, 0); !errors.Is(err, plc.ErrSettingMismatch) {
		t.Fatalf("want ErrSettingMismatch, got %v", err)
	}
}

func TestSetIPConfigRejectsIPv6(t *testing.T) {
	conn := &scriptConn{}
	e := testEngine(conn)
	cfg := IPConfig{
		Address: mustAddr(t, "fd00::1"),
		Netmask: mustAddr(t, "255.255.255.0"),
		Gateway: mustAddr(t, "192.168.1.1"),
	}
	if err := e.SetIPConfig(testCCO, cfg, 0); !errors.Is(err, plc.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if len(conn.writes) != 0 {
		t.Fatalf("rejected input still reached the wire: %q", conn.writes)
	}
}
