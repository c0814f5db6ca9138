package plc

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeForms(t *testing.T) {
	cco := Address("046DD5BC")
	cases := []struct {
		name string
		data Data
		want string
	}{
		{"no_data", Data{}, "@@046DD5BC:GETTYPE\n"},
		{"text_data", Text("1 1 0 0 1"), "@@046DD5BC:SETTYPE:1 1 0 0 1\n"},
		{"raw_data", Raw([]byte{0x02, 0x26, 0x00}), "@@046DD5BC:SETTYPE:\x02\x26\x00\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cmd string
			if tc.name == "no_data" {
				cmd = CmdGetType
			} else {
				cmd = CmdSetType
			}
			got := Encode(cco, cmd, tc.data)
			if string(got) != tc.want {
				t.Fatalf("Encode = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPrefixHasNoTrailingSeparator(t *testing.T) {
	got := Prefix("046DD5BC", CmdDimAll3)
	if string(got) != "@@046DD5BC:DIMALL3" {
		t.Fatalf("Prefix = %q", got)
	}
}

func TestDecodeValid(t *testing.T) {
	line := []byte("##046DD5BC:GETTYPE:1 1 0 0 1\r\r\n")
	fr, err := Decode(line, CmdGetType)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Addr != "046DD5BC" {
		t.Fatalf("addr = %q", fr.Addr)
	}
	if fr.Text != "1 1 0 0 1" {
		t.Fatalf("text = %q", fr.Text)
	}
	if !bytes.Equal(fr.Payload, []byte("1 1 0 0 1\r\r\n")) {
		t.Fatalf("payload = %q", fr.Payload)
	}
}

func TestDecodeBusyMarkers(t *testing.T) {
	for _, m := range []string{"WHUSEING", "WHBUSY", "TOPOBUSY", "STAGROUPBUSY"} {
		t.Run(m, func(t *testing.T) {
			_, err := Decode([]byte(m+"\r\r\n"), CmdWhitelistGet)
			if !errors.Is(err, ErrDeviceBusy) {
				t.Fatalf("want ErrDeviceBusy, got %v", err)
			}
		})
	}
	// Busy wins over structural checks even when colons follow.
	if _, err := Decode([]byte("WHBUSY:x:y\r\r\n"), CmdWhitelistGet); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("busy not checked first: %v", err)
	}
}

func TestDecodeStructuralErrors(t *testing.T) {
	cases := []struct {
		name string
		line string
		want error
	}{
		{"two_fields", "##ADDRADDR:GETTYPE\r\r\n", ErrMalformedFrame},
		{"one_data_field_missing", "##ABCDEF01:ONLYONEFIELD", ErrMalformedFrame},
		{"four_fields", "##A:GETTYPE:x:y\r\r\n", ErrMalformedFrame},
		{"empty_line", "", ErrMalformedFrame},
		{"trailing_colon_after_two", "##ADDRADDR:GETTYPE:", ErrMalformedFrame},
		{"wrong_marker", "$$ADDRADDR:GETTYPE:1\r\r\n", ErrBadMarker},
		{"missing_marker", "046DD5BC:GETTYPE:1\r\r\n", ErrBadMarker},
		{"command_mismatch", "##046DD5BC:SETTYPE:1\r\r\n", ErrCommandMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.line), CmdGetType)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

// A trailing empty fragment after the data field is tolerated: some firmware
// revisions close the line with a colon.
func TestDecodeDropsTrailingEmptyFragment(t *testing.T) {
	fr, err := Decode([]byte("##046DD5BC:GETDIMS:550 550 0:"), CmdGetDims)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Text != "550 550 0" {
		t.Fatalf("text = %q", fr.Text)
	}
}

func TestDecodeStripsTerminatorsFromDataOnly(t *testing.T) {
	fr, err := Decode([]byte("##046DD5BC:STA:ab\rcd\r\r\n"), CmdSTAReport)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.Text != "ab\rcd" {
		t.Fatalf("interior CR must survive, text = %q", fr.Text)
	}
}

func TestIsBusyLine(t *testing.T) {
	if !IsBusyLine([]byte("TOPOBUSY\r\r\n")) {
		t.Fatal("TOPOBUSY not recognized")
	}
	if IsBusyLine([]byte("##A:B:C\r\r\n")) {
		t.Fatal("regular frame flagged busy")
	}
}

// FuzzDecode ensures the decoder never panics on arbitrary input.
func FuzzDecode(f *testing.F) {
	f.Add([]byte("##046DD5BC:GETTYPE:1 1 0 0 1\r\r\n"))
	f.Add([]byte("WHBUSY\r\r\n"))
	f.Add([]byte("::::"))
	f.Add([]byte(""))
	f.Fuzz(func(t *testing.T, line []byte) {
		_, _ = Decode(line, CmdGetType)
	})
}
