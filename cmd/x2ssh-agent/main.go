// Command x2ssh-agent is the remote helper process deployed and started by
// the x2ssh client over its SSH session. It bridges stdio, framed with
// internal/framing, to a TUN device it creates for itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/tokarevart/x2ssh/internal/framing"
	"github.com/tokarevart/x2ssh/internal/tun"
)

const usage = "Usage: x2ssh-agent --ip ADDR/PREFIX"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeForError(err))
	}
}

func run() error {
	ipFlag := pflag.String("ip", "", "TUN address in ADDR/PREFIX form, e.g. 10.8.0.2/24")
	mtuFlag := pflag.Uint16("mtu", 1400, "TUN MTU")
	nameFlag := pflag.String("name", "x2ssh0", "TUN interface name")
	pflag.Parse()

	if *ipFlag == "" {
		fmt.Fprintln(os.Stderr, usage)
		return errUsage
	}

	device, err := tun.Create(tun.Config{
		Address: *ipFlag,
		MTU:     *mtuFlag,
		Name:    *nameFlag,
	})
	if err != nil {
		return fmt.Errorf("agent: create tun: %w (%w)", err, errTunFailure)
	}
	defer device.Close()

	errCh := make(chan error, 2)
	go clientToTun(device, errCh)
	go tunToClient(device, errCh)

	err = <-errCh
	return fmt.Errorf("agent: pump failed: %w (%w)", err, errPumpFailure)
}

func clientToTun(device tun.Device, errCh chan<- error) {
	for {
		packet, err := framing.ReadFramed(os.Stdin)
		if err != nil {
			errCh <- fmt.Errorf("stdin->tun: %w", err)
			return
		}
		if _, err := device.Send(packet); err != nil {
			errCh <- fmt.Errorf("stdin->tun: send: %w", err)
			return
		}
	}
}

func tunToClient(device tun.Device, errCh chan<- error) {
	buf := make([]byte, 2*1024+tun.MTUHeadroom)
	for {
		n, err := device.Recv(buf)
		if err != nil {
			errCh <- fmt.Errorf("tun->stdout: recv: %w", err)
			return
		}
		if err := framing.WriteFramed(os.Stdout, buf[:n]); err != nil {
			errCh <- fmt.Errorf("tun->stdout: %w", err)
			return
		}
	}
}
