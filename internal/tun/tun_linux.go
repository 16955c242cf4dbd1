//go:build linux

package tun

import (
	"fmt"
	"os/exec"

	"github.com/songgao/water"
)

// linuxDevice wraps a songgao/water TUN interface, grounded on
// other_examples' balookrd-outline-cli-ws tun_native_linux.go device-creation
// idiom. water does not set IP addressing itself on Linux, so Create shells
// out to the `ip` CLI for addressing/MTU/up — the same os/exec idiom C7's
// routing manager uses, and the one original_source/x2ssh/src/vpn/tun.rs's
// own create_linux_tun ultimately bottoms out on via tun_rs.
type linuxDevice struct {
	iface *water.Interface
}

// Create opens a new Linux TUN device, assigns it cfg.Address, sets its MTU,
// and brings it up.
func Create(cfg Config) (Device, error) {
	waterCfg := water.Config{DeviceType: water.TUN}
	waterCfg.Name = cfg.Name

	iface, err := water.New(waterCfg)
	if err != nil {
		return nil, fmt.Errorf("tun: open %q: %w", cfg.Name, err)
	}

	name := iface.Name()

	if err := runIP("addr", "add", cfg.Address, "dev", name); err != nil {
		iface.Close()
		return nil, fmt.Errorf("tun: set address %q on %s: %w", cfg.Address, name, err)
	}
	if err := runIP("link", "set", "dev", name, "mtu", fmt.Sprintf("%d", cfg.MTU)); err != nil {
		iface.Close()
		return nil, fmt.Errorf("tun: set mtu on %s: %w", name, err)
	}
	if err := runIP("link", "set", "dev", name, "up"); err != nil {
		iface.Close()
		return nil, fmt.Errorf("tun: bring up %s: %w", name, err)
	}

	return &linuxDevice{iface: iface}, nil
}

func runIP(args ...string) error {
	cmd := exec.Command("ip", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip %v: %w: %s", args, err, out)
	}
	return nil
}

func (d *linuxDevice) Recv(buf []byte) (int, error) {
	return d.iface.Read(buf)
}

func (d *linuxDevice) Send(packet []byte) (int, error) {
	return d.iface.Write(packet)
}

func (d *linuxDevice) Name() string {
	return d.iface.Name()
}

func (d *linuxDevice) Close() error {
	return d.iface.Close()
}
