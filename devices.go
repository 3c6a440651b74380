package sc64

import (
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
)

// USB identity of the SC64 serial interface.
const (
	VendorID     = 0x0403
	ProductID    = 0x6014
	SerialPrefix = "SC64"
)

// LocalDevice is an SC64 attached to this machine.
type LocalDevice struct {
	Port         string
	SerialNumber string
}

// listPorts is replaced in tests.
var listPorts = enumerator.GetDetailedPortsList

// ListLocalDevices returns every attached SC64, or ErrNoDevices.
func ListLocalDevices() ([]LocalDevice, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, newError("SerialPort error", err)
	}
	devices := filterDevices(ports)
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	return devices, nil
}

func filterDevices(ports []*enumerator.PortDetails) []LocalDevice {
	var devices []LocalDevice
	for _, port := range ports {
		if port == nil || !port.IsUSB {
			continue
		}
		if !matchID(port.VID, VendorID) || !matchID(port.PID, ProductID) {
			continue
		}
		if !strings.HasPrefix(port.SerialNumber, SerialPrefix) {
			continue
		}
		devices = append(devices, LocalDevice{
			Port:         port.Name,
			SerialNumber: port.SerialNumber,
		})
	}
	return devices
}

// matchID compares a hex USB id as reported by the enumerator.
func matchID(raw string, want uint16) bool {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(raw), "0x"), 16, 16)
	return err == nil && uint16(v) == want
}
