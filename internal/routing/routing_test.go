package routing

import (
	"bufio"
	"strings"
	"testing"
)

func TestParseDefaultRouteLine(t *testing.T) {
	line := "default via 192.168.1.1 dev eth0 proto dhcp metric 100"
	scanner := bufio.NewScanner(strings.NewReader(line))
	scanner.Scan()
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

	if info.Gateway != "192.168.1.1" {
		t.Errorf("got gateway %q, want 192.168.1.1", info.Gateway)
	}
	if info.Interface != "eth0" {
		t.Errorf("got interface %q, want eth0", info.Interface)
	}
}

func TestValidateCIDR(t *testing.T) {
	if err := ValidateCIDR("10.0.0.0/8"); err != nil {
		t.Errorf("valid CIDR rejected: %v", err)
	}
	if err := ValidateCIDR("not-a-cidr"); err == nil {
		t.Error("invalid CIDR accepted")
	}
}

func TestCleanupReversesExclusionRoutesInOrder(t *testing.T) {
	m := &Manager{
		state: State{
			OriginalDefaultRoute: nil,
			ExclusionRoutes: []RouteInfo{
				{Destination: "10.0.0.0/8"},
				{Destination: "192.168.0.0/16"},
			},
		},
	}
	// Cleanup iterates ExclusionRoutes in reverse and clears the slice;
	// the underlying `ip` calls will fail in this sandboxed test (no such
	// routes exist) but the bookkeeping invariant — the slice always ends
	// up empty — must hold regardless of command success.
	_ = m.Cleanup()
	if len(m.state.ExclusionRoutes) != 0 {
		t.Errorf("expected exclusion routes cleared, got %d left", len(m.state.ExclusionRoutes))
	}
}
