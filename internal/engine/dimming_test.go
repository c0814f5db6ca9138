package engine

import (
	"bytes"
	"errors"
	"testing"

	"github.com/plcworks/go-plclight-server/internal/plc"
)

func TestBroadcastDimming(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{respond(testCCO, plc.CmdGetDims, "550 550 0")}}
	e := testEngine(conn)
	d, err := e.BroadcastDimming(testCCO, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != (Dimming{550, 550, 0}) {
		t.Fatalf("dimming = %v", d)
	}
}

func TestBroadcastDimmingWrongFieldCount(t *testing.T) {
	conn := &scriptConn{replies: [][]byte{respond(testCCO, plc.CmdGetDims, "550 550")}}
	e := testEngine(conn)
	if _, err := e.BroadcastDimming(testCCO, 0); !errors.Is(err, plc.ErrInconsistentResponse) {
		t.Fatalf("want ErrInconsistentResponse, got %v", err)
	}
}

func TestSetBroadcastDimming(t *testing.T) {
	conn := &scriptConn{}
	e := testEngine(conn)
	if err := e.SetBroadcastDimming(testCCO, Dimming{550, 550, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Space separator, no colon, no response expected.
	if string(conn.writes[0]) != "@@046DD5BC:SETDIMS 550 550 0\n" {
		t.Fatalf("frame = %q", conn.writes[0])
	}
}

func TestSetBroadcastDimmingValidation(t *testing.T) {
	conn := &scriptConn{}
	e := testEngine(conn)
	if err := e.SetBroadcastDimming(testCCO, Dimming{1000, 0, 0}); !errors.Is(err, plc.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if len(conn.writes) != 0 {
		t.Fatalf("rejected input still reached the wire: %q", conn.writes)
	}
}

func TestDimSingleWireFormat(t *testing.T) {
	conn := &scriptConn{}
	e := testEngine(conn)
	if err := e.DimSingle(testCCO, testSTA, Dimming{550, 550, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := append([]byte("@@046DD5BC:DIMALL3"),
		0x02, 0x26, 0x02, 0x26, 0x00, 0x00, // levels, big-endian
		0x04, 0x6D, 0xD5, 0xBC, 0x12, 0x34, // raw adapter address
		0x04, '\n')
	if !bytes.Equal(conn.writes[0], want) {
		t.Fatalf("frame = %x, want %x", conn.writes[0], want)
	}
}

func TestDisableDimSingleModeByte(t *testing.T) {
	conn := &scriptConn{}
	e := testEngine(conn)
	if err := e.DisableDimSingle(testCCO, testSTA, Dimming{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame := conn.writes[0]
	if frame[len(frame)-2] != plc.ModeSingleDisable {
		t.Fatalf("mode byte = %#x", frame[len(frame)-2])
	}
}

func TestDimGroupWireFormat(t *testing.T) {
	conn := &scriptConn{}
	e := testEngine(conn)
	if err := e.DimGroup(testCCO, 3, Dimming{50, 50, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := append([]byte("@@046DD5BC:DIMALL3"),
		0x00, 0x32, 0x00, 0x32, 0x00, 0x00, // levels
		0x00, 0x00, 0x00, 0x00, // unused address slot
		0x00, 0x03, // group word
		0x06, '\n')
	if !bytes.Equal(conn.writes[0], want) {
		t.Fatalf("frame = %x, want %x", conn.writes[0], want)
	}
}

func TestDisableDimGroup(t *testing.T) {
	conn := &scriptConn{}
	e := testEngine(conn)
	if err := e.DisableDimGroup(testCCO, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := append([]byte("@@046DD5BC:DIMALL3"),
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x08,
		0x07, '\n')
	if !bytes.Equal(conn.writes[0], want) {
		t.Fatalf("frame = %x, want %x", conn.writes[0], want)
	}
}

func TestDimGroupRange(t *testing.T) {
	for _, group := range []int{0, 9} {
		conn := &scriptConn{}
		e := testEngine(conn)
		if err := e.DimGroup(testCCO, group, Dimming{}); !errors.Is(err, plc.ErrValidation) {
			t.Fatalf("group %d: want ErrValidation, got %v", group, err)
		}
		if len(conn.writes) != 0 {
			t.Fatalf("group %d reached the wire", group)
		}
	}
}
