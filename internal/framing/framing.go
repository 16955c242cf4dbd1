// Package framing implements the length-prefixed packet framing used over
// both the agent's stdio pipe and, conceptually, any other stream that needs
// to carry discrete packets.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLen bounds the accepted payload length so a corrupt or malicious
// length prefix cannot trigger an unbounded allocation.
const MaxFrameLen = 64 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadFramed when the advertised length
// exceeds MaxFrameLen.
var ErrFrameTooLarge = errors.New("framing: frame exceeds maximum length")

// WriteFramed writes payload as a 4-byte big-endian length prefix followed
// by the payload bytes.
func WriteFramed(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("framing: write length: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("framing: write payload: %w", err)
	}
	return nil
}

// ReadFramed reads one length-prefixed packet from r.
func ReadFramed(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("framing: read length: %w", err)
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	if length == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("framing: read payload: %w", err)
	}
	return payload, nil
}
