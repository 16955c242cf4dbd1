// Package vpnsession orchestrates VPN mode: TUN lifecycle, routing
// redirection, agent deployment, and the bidirectional packet pump, grounded
// on original_source/x2ssh/src/vpn/session.rs's start/forward/cleanup
// sequencing.
package vpnsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tokarevart/x2ssh/internal/agent"
	"github.com/tokarevart/x2ssh/internal/hooks"
	"github.com/tokarevart/x2ssh/internal/routing"
	"github.com/tokarevart/x2ssh/internal/transport"
	"github.com/tokarevart/x2ssh/internal/tun"
)

// Config carries the VPN-specific settings needed to start a session,
// mirroring original_source/x2ssh/src/config.rs's VpnConfig.
type Config struct {
	Subnet        string
	ClientAddress string // ADDR/PREFIX for the client's own TUN
	ServerAddress string // address the remote agent is told to use, e.g. "10.8.0.1/24"
	ClientTUNName string
	ServerTUNName string
	MTU           uint16
	Exclude       []string
	PostUp        []string
	PreDown       []string
}

// Session is the running VPN tunnel: a TUN device, a routing manager, and
// the deployed remote agent channel.
type Session struct {
	transport *transport.Transport
	cfg       Config

	device  tun.Device
	routing *routing.Manager
	agentCh *agent.Channel

	cleanupOnce sync.Once
}

// Start creates the client TUN device, redirects routing through it,
// deploys and starts the remote agent, and runs PostUp hooks, in that
// order — matching session.rs's start() sequence.
func Start(ctx context.Context, t *transport.Transport, cfg Config, sshServerIP string, agentBinaryPath string) (*Session, error) {
	log.Info().Str("name", cfg.ClientTUNName).Msg("vpnsession: creating tun device")
	device, err := tun.Create(tun.Config{
		Address: cfg.ClientAddress,
		MTU:     cfg.MTU,
		Name:    cfg.ClientTUNName,
	})
	if err != nil {
		return nil, fmt.Errorf("vpnsession: create tun: %w", err)
	}

	log.Info().Msg("vpnsession: configuring routing")
	routeMgr := routing.NewManager()
	tunServerIP, _, err := splitAddrPrefix(cfg.ServerAddress)
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("vpnsession: parse server address: %w", err)
	}
	if err := routeMgr.Setup(device.Name(), tunServerIP, sshServerIP, cfg.Exclude); err != nil {
		device.Close()
		return nil, fmt.Errorf("vpnsession: routing setup: %w", err)
	}

	log.Info().Msg("vpnsession: deploying agent")
	binary, err := agent.LoadBinary(agentBinaryPath)
	if err != nil {
		routeMgr.Cleanup()
		device.Close()
		return nil, fmt.Errorf("vpnsession: load agent binary: %w", err)
	}
	if err := agent.Deploy(t, binary); err != nil {
		routeMgr.Cleanup()
		device.Close()
		return nil, fmt.Errorf("vpnsession: deploy agent: %w", err)
	}

	log.Info().Msg("vpnsession: starting agent")
	agentCh, err := agent.Start(t, cfg.ServerAddress)
	if err != nil {
		routeMgr.Cleanup()
		device.Close()
		return nil, fmt.Errorf("vpnsession: start agent: %w", err)
	}

	log.Info().Msg("vpnsession: running post-up hooks")
	if err := hooks.RunPostUp(t, cfg.PostUp); err != nil {
		agentCh.Close()
		routeMgr.Cleanup()
		device.Close()
		return nil, fmt.Errorf("vpnsession: post-up hooks: %w", err)
	}

	log.Info().Msg("vpnsession: vpn session started")
	return &Session{
		transport: t,
		cfg:       cfg,
		device:    device,
		routing:   routeMgr,
		agentCh:   agentCh,
	}, nil
}

// Forward runs the TUN<->agent packet pumps until either one exits, then
// cancels the other and returns the first error encountered.
func (s *Session) Forward(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tunToAgent(gctx, s.device, s.agentCh)
	})
	g.Go(func() error {
		return agentToTUN(gctx, s.device, s.agentCh)
	})

	return g.Wait()
}

// tunToAgent reads packets off the TUN device and forwards them to the
// agent channel. Any error terminates the task. Canceling ctx closes the
// device so that a pending Recv returns; the task then returns nil.
func tunToAgent(ctx context.Context, device tun.Device, agentCh *agent.Channel) error {
	stop := context.AfterFunc(ctx, func() { _ = device.Close() })
	defer stop()

	buf := make([]byte, 2*1024+tun.MTUHeadroom)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := device.Recv(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("vpnsession: tun recv: %w", err)
		}
		log.Debug().Int("bytes", n).Msg("vpnsession: tun->agent")
		if err := agentCh.SendPacket(buf[:n]); err != nil {
			return fmt.Errorf("vpnsession: agent send: %w", err)
		}
	}
}

// agentToTUN reads packets from the agent channel and writes them to the
// TUN device. A TUN send failure is logged and swallowed — the kernel may
// reject a malformed packet without the tunnel needing to die for it.
func agentToTUN(ctx context.Context, device tun.Device, agentCh *agent.Channel) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		packet, err := agentCh.RecvPacket()
		if err != nil {
			return fmt.Errorf("vpnsession: agent recv: %w", err)
		}
		if packet == nil {
			log.Info().Msg("vpnsession: agent channel closed")
			return nil
		}
		log.Debug().Int("bytes", len(packet)).Msg("vpnsession: agent->tun")
		if _, err := device.Send(packet); err != nil {
			log.Debug().Err(err).Msg("vpnsession: tun send failed (continuing)")
		}
	}
}

// Cleanup tears the session down: pre-down hooks, agent close, routing
// rollback. It is idempotent and best-effort — every step runs even if an
// earlier one failed.
func (s *Session) Cleanup() {
	s.cleanupOnce.Do(func() {
		log.Info().Msg("vpnsession: cleaning up")
		hooks.RunPreDown(s.transport, s.cfg.PreDown)

		if err := s.agentCh.Close(); err != nil {
			log.Error().Err(err).Msg("vpnsession: close agent channel")
		}
		if err := s.routing.Cleanup(); err != nil {
			log.Error().Err(err).Msg("vpnsession: routing cleanup")
		}
		if err := s.device.Close(); err != nil {
			log.Error().Err(err).Msg("vpnsession: close tun device")
		}
		log.Info().Msg("vpnsession: cleaned up")
	})
}

func splitAddrPrefix(addrPrefix string) (string, string, error) {
	for i := 0; i < len(addrPrefix); i++ {
		if addrPrefix[i] == '/' {
			return addrPrefix[:i], addrPrefix[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("address %q missing /prefix", addrPrefix)
}
