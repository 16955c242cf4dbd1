// Package agent manages the remote packet-forwarding helper process: its
// deployment over SFTP, its startup over an SSH exec channel, and the framed
// packet channel used to exchange IP packets with it.
package agent

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// readBufferCapacity is the initial size of the re-framing buffer, matching
// original_source/x2ssh/src/vpn/agent.rs's BytesMut::with_capacity(2048).
const readBufferCapacity = 2048

// Channel wraps a split SSH session channel carrying length-prefixed IP
// packets to and from the remote agent. SendPacket and RecvPacket are each
// independently serialized; they do not block each other.
type Channel struct {
	writeMu sync.Mutex
	writer  io.Writer

	readMu sync.Mutex
	reader io.Reader
	buffer []byte

	closer io.Closer
}

// NewChannel wraps an already-started agent session's stdin/stdout.
func NewChannel(reader io.Reader, writer io.Writer, closer io.Closer) *Channel {
	return &Channel{
		reader: reader,
		writer: writer,
		closer: closer,
		buffer: make([]byte, 0, readBufferCapacity),
	}
}

// SendPacket writes one length-prefixed packet. The length prefix and
// payload are written as a single call under the write lock so concurrent
// senders cannot interleave frames.
func (c *Channel) SendPacket(packet []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	framed := make([]byte, 4+len(packet))
	binary.BigEndian.PutUint32(framed[:4], uint32(len(packet)))
	copy(framed[4:], packet)

	if _, err := c.writer.Write(framed); err != nil {
		return fmt.Errorf("agent: send packet: %w", err)
	}
	return nil
}

// RecvPacket reads one length-prefixed packet, returning (nil, nil) when the
// remote end has closed the channel cleanly.
func (c *Channel) RecvPacket() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.buffer) < 4 {
		if err := c.fill(); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("agent: recv packet: %w", err)
		}
	}
	length := binary.BigEndian.Uint32(c.buffer[:4])

	for uint32(len(c.buffer)) < 4+length {
		if err := c.fill(); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("agent: recv packet: %w", err)
		}
	}

	packet := make([]byte, length)
	copy(packet, c.buffer[4:4+length])
	c.buffer = append(c.buffer[:0], c.buffer[4+length:]...)
	return packet, nil
}

func (c *Channel) fill() error {
	chunk := make([]byte, readBufferCapacity)
	n, err := c.reader.Read(chunk)
	if n > 0 {
		c.buffer = append(c.buffer, chunk[:n]...)
	}
	if err != nil {
		return err
	}
	return nil
}

// Close closes the underlying session channel.
func (c *Channel) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// ensure *ssh.Session satisfies io.Closer for NewChannel callers.
var _ io.Closer = (*ssh.Session)(nil)
