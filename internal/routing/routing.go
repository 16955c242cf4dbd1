// Package routing redirects the default route through the VPN's TUN device
// and restores it on teardown, shelling out to the `ip` CLI for every
// mutation — the same approach original_source/x2ssh/src/vpn/routing.rs
// itself takes (despite declaring an unused rtnetlink handle), and the one
// telepresence's iptablesRouter.ipt() helper takes for its own table.
package routing

import (
	"bufio"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// RouteInfo captures one route: destination CIDR, optional gateway, and the
// outbound interface.
type RouteInfo struct {
	Destination string
	Gateway     string // empty if the route has no gateway (on-link)
	Interface   string
}

// State tracks what a Manager must undo on Cleanup.
type State struct {
	OriginalDefaultRoute *RouteInfo
	ExclusionRoutes      []RouteInfo // ordered: Cleanup deletes in reverse insertion order
}

// Manager owns the routing mutations for one VPN session.
type Manager struct {
	state State
}

// NewManager returns an unconfigured Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Setup saves the current default route, pins a host route to the SSH
// server through the original gateway (so the tunnel itself doesn't loop
// through the tunnel), redirects the default route through tunName, and
// adds an exception route for each exclude CIDR.
func (m *Manager) Setup(tunName, tunServerIP, sshServerIP string, excludeCIDRs []string) error {
	orig, err := getDefaultRoute()
	if err != nil {
		return fmt.Errorf("routing: read default route: %w", err)
	}
	m.state.OriginalDefaultRoute = orig
	log.Info().Interface("route", orig).Msg("routing: saved original default route")

	if orig != nil {
		if err := addRouteViaGateway(sshServerIP+"/32", orig.Gateway, orig.Interface); err != nil {
			return fmt.Errorf("routing: pin ssh server route: %w", err)
		}
	}

	if err := deleteDefaultRoute(); err != nil {
		log.Warn().Err(err).Msg("routing: delete default route (may not have existed)")
	}
	if err := addDefaultRoute(tunServerIP, tunName); err != nil {
		return fmt.Errorf("routing: set default route via tun: %w", err)
	}

	for _, cidr := range excludeCIDRs {
		if orig == nil {
			break
		}
		if err := addRouteViaGateway(cidr, orig.Gateway, orig.Interface); err != nil {
			return fmt.Errorf("routing: add exclusion route %s: %w", cidr, err)
		}
		m.state.ExclusionRoutes = append(m.state.ExclusionRoutes, RouteInfo{
			Destination: cidr,
			Gateway:     orig.Gateway,
			Interface:   orig.Interface,
		})
	}

	return nil
}

// Cleanup reverses Setup's mutations, best-effort: every step runs even if
// an earlier one failed. Each failure is logged, and the first one is
// returned.
func (m *Manager) Cleanup() error {
	var firstErr error
	note := func(step string, err error) {
		if err != nil {
			log.Error().Err(err).Str("step", step).Msg("routing: cleanup step failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	note("delete tun default route", deleteDefaultRoute())

	if orig := m.state.OriginalDefaultRoute; orig != nil && orig.Gateway != "" {
		note("restore original default route", addDefaultRoute(orig.Gateway, orig.Interface))
	}

	for i := len(m.state.ExclusionRoutes) - 1; i >= 0; i-- {
		note("delete exclusion route", deleteRoute(m.state.ExclusionRoutes[i].Destination))
	}
	m.state.ExclusionRoutes = nil

	return firstErr
}

func getDefaultRoute() (*RouteInfo, error) {
	out, err := exec.Command("ip", "route", "show", "default").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ip route show default: %w: %s", err, out)
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if !scanner.Scan() {
		return nil, nil // no default route configured
	}
	fields := strings.Fields(scanner.Text())
	info := &RouteInfo{Destination: "0.0.0.0/0"}
	for i, f := range fields {
		switch f {
		case "via":
			if i+1 < len(fields) {
				info.Gateway = fields[i+1]
			}
		case "dev":
			if i+1 < len(fields) {
				info.Interface = fields[i+1]
			}
		}
	}
	if info.Interface == "" {
		return nil, fmt.Errorf("could not parse interface from %q", scanner.Text())
	}
	return info, nil
}

func deleteDefaultRoute() error {
	return run("route", "del", "default")
}

func addDefaultRoute(gateway, iface string) error {
	return run("route", "add", "default", "via", gateway, "dev", iface)
}

func addRouteViaGateway(dest, gateway, iface string) error {
	if gateway == "" {
		return run("route", "add", dest, "dev", iface)
	}
	return run("route", "add", dest, "via", gateway, "dev", iface)
}

func deleteRoute(dest string) error {
	return run("route", "del", dest)
}

func run(args ...string) error {
	out, err := exec.Command("ip", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip %s: %w: %s", strings.Join(args, " "), err, out)
	}
	return nil
}

// ValidateCIDR reports whether s parses as a CIDR. cmd/x2ssh does not call
// it; --vpn-exclude values reach Setup unvalidated.
func ValidateCIDR(s string) error {
	if _, _, err := net.ParseCIDR(s); err != nil {
		return fmt.Errorf("routing: invalid CIDR %q: %w", s, err)
	}
	return nil
}
