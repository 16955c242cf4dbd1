package agent

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"

	"github.com/tokarevart/x2ssh/internal/transport"
)

// RemotePath is where the agent binary is pushed to on the remote host,
// matching spec.md §6's /tmp/x2ssh-agent path.
const RemotePath = "/tmp/x2ssh-agent"

// BuildAgentPath is the default location of the cross-built x2ssh-agent
// binary, stamped in at client build time via -ldflags
// "-X github.com/tokarevart/x2ssh/internal/agent.BuildAgentPath=...".
// This replaces original_source/x2ssh/src/vpn/agent.rs's
// include_bytes!(env!("X2SSH_AGENT_PATH")) build.rs step with the Go-idiomatic
// equivalent: a path baked in by the linker instead of bytes baked in by the
// compiler, read from disk once at Deploy time.
var BuildAgentPath = "build/x2ssh-agent"

// LoadBinary reads the agent binary from path, or from BuildAgentPath if
// path is empty.
func LoadBinary(path string) ([]byte, error) {
	if path == "" {
		path = BuildAgentPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agent: read binary %q: %w", path, err)
	}
	return data, nil
}

// Deploy uploads the agent binary to the remote host and marks it
// executable. It reuses the same SSH client that Transport already holds,
// opening a dedicated SFTP subsystem session over it — the teacher's
// internal/terminal/sftp.go pattern — in place of the original's raw
// "cat > file && chmod +x" exec-stream; the outward contract (binary lands
// at RemotePath, executable, or Deploy fails) is unchanged.
func Deploy(t *transport.Transport, binary []byte) error {
	log.Info().Int("bytes", len(binary)).Msg("agent: deploying binary")

	client, err := t.SSHClient()
	if err != nil {
		return fmt.Errorf("agent: deploy: %w", err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("agent: open sftp subsystem: %w", err)
	}
	defer sftpClient.Close()

	f, err := sftpClient.Create(RemotePath)
	if err != nil {
		return fmt.Errorf("agent: create %s: %w", RemotePath, err)
	}
	if _, err := io.Copy(f, bytes.NewReader(binary)); err != nil {
		f.Close()
		return fmt.Errorf("agent: write %s: %w", RemotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("agent: finalize %s: %w", RemotePath, err)
	}

	if err := sftpClient.Chmod(RemotePath, 0o755); err != nil {
		return fmt.Errorf("agent: chmod %s: %w", RemotePath, err)
	}

	log.Info().Msg("agent: deployed")
	return nil
}

// Start launches the agent remotely over a fresh session channel, running
// it with sudo so it can create a TUN device, and returns a Channel wrapping
// the session's stdin/stdout for packet exchange.
func Start(t *transport.Transport, serverAddress string) (*Channel, error) {
	log.Info().Str("server_address", serverAddress).Msg("agent: starting")

	sess, err := t.OpenSessionChannel()
	if err != nil {
		return nil, fmt.Errorf("agent: start: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("agent: stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("agent: stdout pipe: %w", err)
	}

	cmd := fmt.Sprintf("sudo %s --ip %s", RemotePath, serverAddress)
	if err := sess.Start(cmd); err != nil {
		sess.Close()
		return nil, fmt.Errorf("agent: exec %q: %w", cmd, err)
	}

	log.Info().Msg("agent: started, channel ready for packet forwarding")
	return NewChannel(stdout, stdin, sess), nil
}
