// Package serial finds the target controller among attached serial ports
// and opens line-oriented connections to it.
package serial

import (
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo holds details about a serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Lister returns the currently attached serial ports.
type Lister func() ([]PortInfo, error)

// ListPorts returns available serial ports.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []PortInfo
	for _, p := range ports {
		result = append(result, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return result, nil
}

// Matches reports whether the port is a USB device with the given vendor
// and product identifiers (hex, case-insensitive).
func (p PortInfo) Matches(vid, pid string) bool {
	return p.IsUSB && strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid)
}

// Present reports whether a port with the given name is attached. A listing
// error counts as absent.
func Present(list Lister, name string) bool {
	ports, err := list()
	if err != nil {
		return false
	}
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}
