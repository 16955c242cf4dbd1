package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tokarevart/x2ssh/internal/config"
	"github.com/tokarevart/x2ssh/internal/retry"
	"github.com/tokarevart/x2ssh/internal/vpnsession"
)

// parseUserHost splits a "USER@HOST" destination argument, matching
// original_source/x2ssh/src/main.rs's parse_user_host.
func parseUserHost(s string) (user, host string, err error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected format USER@HOST, got %q", s)
	}
	return parts[0], parts[1], nil
}

// resolveSocksAddr turns the --socks flag value into a listen address. A
// bare port binds to loopback only; anything else is used as-is, matching
// main.rs's socks_socket_addr.
func resolveSocksAddr(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("socks address is required (-D, --socks)")
	}
	if port, err := strconv.ParseUint(raw, 10, 16); err == nil {
		return net.JoinHostPort("127.0.0.1", strconv.FormatUint(port, 10)), nil
	}
	if _, _, err := net.SplitHostPort(raw); err != nil {
		return "", fmt.Errorf("invalid socks address %q: %w", raw, err)
	}
	return raw, nil
}

// buildRetryPolicy assembles a retry.Policy from the CLI's retry-* flags.
// retryMax < 0 means unbounded.
func buildRetryPolicy(retryMax int64, retryDelayMS uint64, retryBackoff float64, retryMaxDelayMS uint64) retry.Policy {
	var maxAttempts *uint32
	if retryMax >= 0 {
		n := uint32(retryMax)
		maxAttempts = &n
	}
	return retry.Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Duration(retryDelayMS) * time.Millisecond,
		Backoff:      retryBackoff,
		MaxDelay:     time.Duration(retryMaxDelayMS) * time.Millisecond,
	}
}

// mergeVPNConfig overlays non-empty CLI VPN flags onto a loaded (or default)
// config.VPN, matching main.rs's vpn_config(): CLI values win field by
// field, and repeatable CLI slices (exclude/post-up/pre-down) fully replace
// the config file's list rather than appending to it.
func mergeVPNConfig(base config.VPN, f vpnFlags) config.VPN {
	merged := base
	if f.clientTUN != "" {
		merged.ClientTUN = f.clientTUN
	}
	if f.mtu != 0 {
		merged.MTU = f.mtu
	}
	if len(f.exclude) > 0 {
		merged.Exclude = f.exclude
	}
	if len(f.postUp) > 0 {
		merged.PostUp = f.postUp
	}
	if len(f.preDown) > 0 {
		merged.PreDown = f.preDown
	}
	return merged
}

// vpnFlags carries the parsed --vpn-* CLI flags.
type vpnFlags struct {
	clientAddress string
	serverAddress string
	clientTUN     string
	mtu           uint16
	exclude       []string
	postUp        []string
	preDown       []string
}

// resolveVPNAddresses picks the client/server TUN addresses: explicit CLI
// overrides win, otherwise the .2/.1 hosts of the config's subnet are used.
func resolveVPNAddresses(subnet string, f vpnFlags) (clientAddress, serverAddress string, err error) {
	clientAddress, serverAddress = f.clientAddress, f.serverAddress
	if clientAddress != "" && serverAddress != "" {
		return clientAddress, serverAddress, nil
	}

	_, network, perr := net.ParseCIDR(subnet)
	if perr != nil {
		return "", "", fmt.Errorf("cannot derive vpn addresses from subnet %q: %w", subnet, perr)
	}
	ones, _ := network.Mask.Size()
	base := network.IP.To4()
	if base == nil {
		return "", "", fmt.Errorf("vpn subnet %q is not IPv4", subnet)
	}

	if serverAddress == "" {
		serverIP := append(net.IP(nil), base...)
		serverIP[3] += 1
		serverAddress = fmt.Sprintf("%s/%d", serverIP.String(), ones)
	}
	if clientAddress == "" {
		clientIP := append(net.IP(nil), base...)
		clientIP[3] += 2
		clientAddress = fmt.Sprintf("%s/%d", clientIP.String(), ones)
	}
	return clientAddress, serverAddress, nil
}

// sessionConfig builds a vpnsession.Config from a merged VPN config and the
// resolved client/server addresses.
func sessionConfig(vpn config.VPN, clientAddress, serverAddress string) vpnsession.Config {
	return vpnsession.Config{
		Subnet:        vpn.Subnet,
		ClientAddress: clientAddress,
		ServerAddress: serverAddress,
		ClientTUNName: vpn.ClientTUN,
		ServerTUNName: vpn.ServerTUN,
		MTU:           vpn.MTU,
		Exclude:       vpn.Exclude,
		PostUp:        vpn.PostUp,
		PreDown:       vpn.PreDown,
	}
}
