// Package hooks runs the user-configured PostUp/PreDown command lists
// against the SSH transport, grounded on
// original_source/x2ssh/src/vpn/hooks.rs's exact abort/continue semantics.
package hooks

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tokarevart/x2ssh/internal/transport"
)

// execer is the subset of *transport.Transport the hooks need; defined here
// so tests can exercise RunPostUp/RunPreDown without a live SSH session.
type execer interface {
	Exec(cmd string) (transport.ExecResult, error)
	ExecSuccess(cmd string) error
}

// RunPostUp runs each command in order, aborting and returning the first
// failure — a broken PostUp command means the VPN session should not be
// considered up.
func RunPostUp(t execer, commands []string) error {
	if len(commands) == 0 {
		log.Debug().Msg("hooks: no post-up commands")
		return nil
	}
	log.Info().Int("count", len(commands)).Msg("hooks: running post-up commands")
	for i, cmd := range commands {
		log.Info().Int("index", i+1).Int("total", len(commands)).Str("cmd", cmd).Msg("hooks: post-up")
		if err := t.ExecSuccess(cmd); err != nil {
			log.Error().Err(err).Str("cmd", cmd).Msg("hooks: post-up command failed")
			return fmt.Errorf("hooks: post-up %q: %w", cmd, err)
		}
	}
	log.Info().Msg("hooks: all post-up commands completed successfully")
	return nil
}

// RunPreDown runs each command in order, logging failures but always
// continuing — teardown must make its best effort regardless of any single
// command's outcome.
func RunPreDown(t execer, commands []string) {
	if len(commands) == 0 {
		log.Debug().Msg("hooks: no pre-down commands")
		return
	}
	log.Info().Int("count", len(commands)).Msg("hooks: running pre-down commands")
	for i, cmd := range commands {
		log.Info().Int("index", i+1).Int("total", len(commands)).Str("cmd", cmd).Msg("hooks: pre-down")
		res, err := t.Exec(cmd)
		switch {
		case err != nil:
			log.Error().Err(err).Str("cmd", cmd).Msg("hooks: pre-down command error")
		case res.ExitCode != 0:
			log.Error().Int("exit_code", res.ExitCode).Str("cmd", cmd).
				Str("stdout", strings.TrimSpace(res.Stdout)).
				Str("stderr", strings.TrimSpace(res.Stderr)).
				Msg("hooks: pre-down command failed")
		default:
			log.Debug().Str("cmd", cmd).Msg("hooks: pre-down command succeeded")
		}
	}
	log.Info().Msg("hooks: pre-down commands completed")
}
