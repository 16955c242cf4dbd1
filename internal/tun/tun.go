// Package tun creates and drives the TUN device used by VPN mode, on both
// the client (internal/vpnsession) and the remote agent (cmd/x2ssh-agent).
package tun

import "errors"

// MTUHeadroom pads read buffers above the configured MTU so a slightly
// oversized frame from the kernel doesn't get truncated.
const MTUHeadroom = 64

// ErrUnsupportedPlatform is returned by Create on platforms without a TUN
// backend wired in (anything but Linux, for this build).
var ErrUnsupportedPlatform = errors.New("tun: unsupported platform")

// Config describes how to create a TUN device.
type Config struct {
	// Address is the device's address in ADDR/PREFIX form, e.g. "10.8.0.1/24".
	Address string
	// MTU is the device's maximum transmission unit.
	MTU uint16
	// Name is the requested interface name, e.g. "x2ssh0".
	Name string
}

// Device is a TUN device that reads and writes raw IP packets.
type Device interface {
	// Recv reads one IP packet into buf and returns its length.
	Recv(buf []byte) (int, error)
	// Send writes one IP packet.
	Send(packet []byte) (int, error)
	// Name returns the interface name actually assigned by the kernel.
	Name() string
	// Close releases the device.
	Close() error
}
