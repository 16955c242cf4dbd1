//go:build !linux

package tun

// Create is unimplemented outside Linux, matching spec.md's stated platform
// scope for VPN mode (client root/TUN requirements are Linux-specific here).
func Create(cfg Config) (Device, error) {
	return nil, ErrUnsupportedPlatform
}
