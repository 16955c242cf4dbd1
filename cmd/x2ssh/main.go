// Command x2ssh dials a remote host over SSH and exposes it locally as
// either a SOCKS5 proxy or a VPN tunnel, mirroring
// original_source/x2ssh/src/main.rs's Cli/main.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tokarevart/x2ssh/internal/config"
	"github.com/tokarevart/x2ssh/internal/socks"
	"github.com/tokarevart/x2ssh/internal/transport"
	"github.com/tokarevart/x2ssh/internal/vpnsession"
)

var (
	destination string

	vpnMode    bool
	configPath string

	vpnClientAddress string
	vpnServerAddress string
	vpnClientTUN     string
	vpnMTU           uint16
	vpnExclude       []string
	vpnPostUp        []string
	vpnPreDown       []string

	socksAddr string
	sshPort   uint16
	identity  string

	retryMax       int64
	retryDelayMS   uint64
	retryBackoff   float64
	retryMaxDelay  uint64
	healthInterval uint64

	agentBinaryPath string
)

var rootCmd = &cobra.Command{
	Use:   "x2ssh USER@HOST",
	Short: "SOCKS5 proxy and VPN tunnel over SSH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		destination = args[0]
		return run(cmd.Context())
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVar(&vpnMode, "vpn", false, "enable VPN mode (requires root for TUN and routing)")
	flags.StringVar(&configPath, "config", "", "config file path")

	flags.StringVar(&vpnClientAddress, "vpn-client-address", "", "VPN client address with prefix (e.g. 10.8.0.2/24)")
	flags.StringVar(&vpnServerAddress, "vpn-server-address", "", "VPN server address with prefix (e.g. 10.8.0.1/24)")
	flags.StringVar(&vpnClientTUN, "vpn-client-tun", "", "client TUN interface name")
	flags.Uint16Var(&vpnMTU, "vpn-mtu", 0, "TUN MTU in bytes")
	flags.StringArrayVar(&vpnExclude, "vpn-exclude", nil, "CIDR to exclude from VPN (repeatable)")
	flags.StringArrayVar(&vpnPostUp, "vpn-post-up", nil, "PostUp command (repeatable; overrides config)")
	flags.StringArrayVar(&vpnPreDown, "vpn-pre-down", nil, "PreDown command (repeatable; overrides config)")

	flags.StringVarP(&socksAddr, "socks", "D", "", "SOCKS5 listen address: PORT or HOST:PORT")
	flags.Uint16VarP(&sshPort, "port", "p", 22, "SSH port")
	flags.StringVarP(&identity, "identity", "i", "", "private key file")

	flags.Int64Var(&retryMax, "retry-max", -1, "maximum reconnect retries after the first failed attempt (unbounded if negative)")
	flags.Uint64Var(&retryDelayMS, "retry-delay", 1000, "initial retry delay in ms")
	flags.Float64Var(&retryBackoff, "retry-backoff", 2, "retry backoff multiplier")
	flags.Uint64Var(&retryMaxDelay, "retry-max-delay", 30000, "maximum retry delay in ms")
	flags.Uint64Var(&healthInterval, "health-interval", 5000, "health check interval in ms")

	flags.StringVar(&agentBinaryPath, "agent-binary", "", "path to the x2ssh-agent binary (defaults to the build-time path)")
}

func main() {
	setupLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("x2ssh: fatal")
		os.Exit(1)
	}
}

func setupLogger() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

func run(ctx context.Context) error {
	user, host, err := parseUserHost(destination)
	if err != nil {
		return err
	}

	if socksAddr == "" && !vpnMode {
		return fmt.Errorf("either --socks (-D) or --vpn must be specified")
	}
	if socksAddr != "" && vpnMode {
		return fmt.Errorf("--socks and --vpn cannot both be specified")
	}

	policy := buildRetryPolicy(retryMax, retryDelayMS, retryBackoff, retryMaxDelay)
	transportCfg := transport.Config{
		Host:         host,
		Port:         sshPort,
		User:         user,
		IdentityPath: identity,
		Policy:       policy,
	}

	color.Cyan("connecting to %s@%s:%d", user, host, sshPort)
	t, err := transport.Connect(transportCfg)
	if err != nil {
		return fmt.Errorf("x2ssh: connect: %w", err)
	}
	defer t.Close()
	color.Green("ssh session established")

	if vpnMode {
		return runVPN(ctx, t, host)
	}
	return runSOCKS(ctx, t)
}

func runSOCKS(ctx context.Context, t *transport.Transport) error {
	addr, err := resolveSocksAddr(socksAddr)
	if err != nil {
		return err
	}

	monitor := transport.NewHealthMonitor(t, time.Duration(healthInterval)*time.Millisecond)
	go monitor.Run(ctx)

	color.Green("socks5 proxy listening on %s", addr)
	server := socks.NewServer(addr, t)
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("x2ssh: socks: %w", err)
	}
	return nil
}

func runVPN(ctx context.Context, t *transport.Transport, host string) error {
	appCfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("x2ssh: load config: %w", err)
		}
		appCfg = loaded
	}

	flags := vpnFlags{
		clientAddress: vpnClientAddress,
		serverAddress: vpnServerAddress,
		clientTUN:     vpnClientTUN,
		mtu:           vpnMTU,
		exclude:       vpnExclude,
		postUp:        vpnPostUp,
		preDown:       vpnPreDown,
	}
	vpn := mergeVPNConfig(appCfg.VPN, flags)

	clientAddress, serverAddress, err := resolveVPNAddresses(vpn.Subnet, flags)
	if err != nil {
		return fmt.Errorf("x2ssh: %w", err)
	}

	sshServerIP, err := resolveHost(host)
	if err != nil {
		return fmt.Errorf("x2ssh: resolve %s: %w", host, err)
	}

	cfg := sessionConfig(vpn, clientAddress, serverAddress)
	color.Cyan("starting vpn session: client=%s server=%s tun=%s", clientAddress, serverAddress, cfg.ClientTUNName)

	session, err := vpnsession.Start(ctx, t, cfg, sshServerIP, agentBinaryPath)
	if err != nil {
		return fmt.Errorf("x2ssh: start vpn session: %w", err)
	}
	defer session.Cleanup()

	color.Green("vpn tunnel active, press ctrl+c to stop")

	err = session.Forward(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("x2ssh: vpn forward: %w", err)
	}
	return nil
}

// resolveHost resolves host to its first IPv4 address (or, failing that,
// its first address), used as the SSH server IP that routing setup pins to
// the original gateway, matching main.rs's resolve_host.
func resolveHost(host string) (string, error) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0], nil
	}
	return "", fmt.Errorf("no addresses found for %s", host)
}
