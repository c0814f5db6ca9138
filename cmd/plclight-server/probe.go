package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// usbIDs lists the vendor:product pairs of supported transmitter dongles:
// the CH340 bridge on the EByte module and the FTDI FT232R cable.
var usbIDs = map[[2]string]bool{
	{"1a86", "7523"}: true,
	{"0403", "6001"}: true,
}

// sysfsUSBSerial is swapped in tests.
var sysfsUSBSerial = "/sys/bus/usb-serial/devices"

// probeSerialDevice resolves "-serial auto" by scanning the USB serial bus
// for a supported dongle. Exactly one match is required: none means no
// hardware, several means the choice is ambiguous.
func probeSerialDevice() (string, error) {
	entries, err := os.ReadDir(sysfsUSBSerial)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", sysfsUSBSerial, err)
	}
	var found []string
	for _, e := range entries {
		devDir, err := filepath.EvalSymlinks(filepath.Join(sysfsUSBSerial, e.Name()))
		if err != nil {
			continue
		}
		// The tty node sits two levels below the USB device that carries
		// the ID attributes.
		vendor := readUSBAttr(filepath.Join(devDir, "..", "..", "idVendor"))
		product := readUSBAttr(filepath.Join(devDir, "..", "..", "idProduct"))
		if usbIDs[[2]string{vendor, product}] {
			found = append(found, "/dev/"+e.Name())
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no supported transmitter dongle found under %s", sysfsUSBSerial)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%d transmitter dongles found (%s), connect exactly one", len(found), strings.Join(found, ", "))
	}
}

func readUSBAttr(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(string(b)))
}
