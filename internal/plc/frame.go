// Package plc implements the serial wire protocol spoken by PLC lighting
// transmitters: outbound command frames, inbound response frames and the
// busy markers a transmitter emits while its PLC side is occupied.
//
// Outbound: "@@" + address + ":" + command [ + ":" + data ] + "\n".
// Inbound:  "##" + address + ":" + command + ":" + data + "\r\r\n".
//
// Data fields are either ASCII text or raw bytes; raw payloads (dimming
// levels, group words) are written verbatim, no escaping exists on the wire.
package plc

import (
	"bytes"
	"fmt"

	"github.com/plcworks/go-plclight-server/internal/metrics"
)

const (
	cmdMarker  = "@@"
	respMarker = "##"
)

// busyMarkers are fixed whole-line prefixes a transmitter substitutes for a
// regular response while the corresponding subsystem is occupied. A busy
// line carries no address or command fields.
var busyMarkers = [][]byte{
	[]byte("WHUSEING"),
	[]byte("WHBUSY"),
	[]byte("TOPOBUSY"),
	[]byte("STAGROUPBUSY"),
}

// IsBusyLine reports whether line starts with one of the busy markers.
func IsBusyLine(line []byte) bool {
	for _, m := range busyMarkers {
		if bytes.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

type dataKind uint8

const (
	dataNone dataKind = iota
	dataText
	dataRaw
)

// Data is the optional data field of an outbound frame. The zero value
// means "no data field": the frame ends right after the command token.
type Data struct {
	kind dataKind
	text string
	raw  []byte
}

// Text returns a Data carrying an ASCII text field.
func Text(s string) Data { return Data{kind: dataText, text: s} }

// Raw returns a Data carrying raw bytes, written to the wire verbatim.
func Raw(p []byte) Data { return Data{kind: dataRaw, raw: p} }

// Encode builds one outbound frame. Inputs are validated at the API
// boundary, so Encode never fails.
func Encode(addr Address, cmd string, data Data) []byte {
	b := Prefix(addr, cmd)
	switch data.kind {
	case dataText:
		b = append(b, ':')
		b = append(b, data.text...)
	case dataRaw:
		b = append(b, ':')
		b = append(b, data.raw...)
	}
	return append(b, '\n')
}

// Prefix builds the frame head "@@"+address+":"+command without a trailing
// separator. Dimming commands append their payload after a space (SETDIMS)
// or with no separator at all (DIMALL3), then terminate with '\n'.
func Prefix(addr Address, cmd string) []byte {
	b := make([]byte, 0, len(cmdMarker)+len(addr)+1+len(cmd)+24)
	b = append(b, cmdMarker...)
	b = append(b, addr...)
	b = append(b, ':')
	b = append(b, cmd...)
	return b
}

// ResponseFrame is one decoded inbound frame.
type ResponseFrame struct {
	Addr    Address
	Command string
	// Payload is the data field exactly as received, line terminators
	// included. Binary sub-decoders start from here.
	Payload []byte
	// Text is the data field with trailing CR/LF stripped. Terminators are
	// stripped from the data field only, never from interior bytes.
	Text string
}

// Decode parses one line read from the transport and validates it against
// the command the caller sent. The busy check runs first and short-circuits
// all structural checks.
func Decode(line []byte, wantCmd string) (ResponseFrame, error) {
	for _, m := range busyMarkers {
		if bytes.HasPrefix(line, m) {
			metrics.IncBusy()
			return ResponseFrame{}, fmt.Errorf("%w: %s", ErrDeviceBusy, m)
		}
	}
	fields := bytes.Split(line, []byte{':'})
	// A line ending in ':' splits into a dangling empty fragment; drop it
	// before counting fields.
	if n := len(fields); n > 1 && len(fields[n-1]) == 0 {
		fields = fields[:n-1]
	}
	if len(fields) != 3 {
		metrics.IncMalformed()
		return ResponseFrame{}, fmt.Errorf("%w: want 3 colon fields, got %d", ErrMalformedFrame, len(fields))
	}
	if !bytes.HasPrefix(fields[0], []byte(respMarker)) {
		metrics.IncMalformed()
		return ResponseFrame{}, fmt.Errorf("%w: want leading %q in %q", ErrBadMarker, respMarker, fields[0])
	}
	if string(fields[1]) != wantCmd {
		metrics.IncMalformed()
		return ResponseFrame{}, fmt.Errorf("%w: sent %s, response names %q", ErrCommandMismatch, wantCmd, fields[1])
	}
	payload := fields[2]
	return ResponseFrame{
		Addr:    Address(fields[0][len(respMarker):]),
		Command: wantCmd,
		Payload: payload,
		Text:    string(bytes.TrimRight(payload, "\r\n")),
	}, nil
}
