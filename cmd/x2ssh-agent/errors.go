package main

import "errors"

// Exit codes distinguish why the agent tore down, a supplement over
// original_source/x2ssh-agent/src/main.rs (which always exits 1).
const (
	exitUsage       = 1
	exitTunFailure  = 2
	exitPumpFailure = 3
)

var (
	errUsage      = errors.New("usage error")
	errTunFailure = errors.New("tun creation failed")
	errPumpFailure = errors.New("packet pump failed")
)

func exitCodeForError(err error) int {
	switch {
	case errors.Is(err, errTunFailure):
		return exitTunFailure
	case errors.Is(err, errPumpFailure):
		return exitPumpFailure
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		return exitUsage
	}
}
