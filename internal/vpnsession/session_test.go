package vpnsession

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tokarevart/x2ssh/internal/agent"
)

type fakeDevice struct {
	toSend   chan []byte
	received [][]byte
	closed   bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{toSend: make(chan []byte, 16)}
}

func (d *fakeDevice) Recv(buf []byte) (int, error) {
	packet, ok := <-d.toSend
	if !ok {
		return 0, errors.New("fake device closed")
	}
	return copy(buf, packet), nil
}

func (d *fakeDevice) Send(packet []byte) (int, error) {
	cp := append([]byte(nil), packet...)
	d.received = append(d.received, cp)
	return len(packet), nil
}

func (d *fakeDevice) Name() string { return "fake0" }

func (d *fakeDevice) Close() error {
	if !d.closed {
		d.closed = true
		close(d.toSend)
	}
	return nil
}

func TestTunToAgentForwardsPackets(t *testing.T) {
	device := newFakeDevice()
	var wire bytes.Buffer
	agentCh := agent.NewChannel(nil, &wire, io.NopCloser(nil))

	device.toSend <- []byte("packet-a")
	device.toSend <- []byte("packet-b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- tunToAgent(ctx, device, agentCh) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-errCh

	reader := agent.NewChannel(bytes.NewReader(wire.Bytes()), nil, io.NopCloser(nil))
	p1, err := reader.RecvPacket()
	if err != nil || string(p1) != "packet-a" {
		t.Fatalf("got %q, %v; want packet-a", p1, err)
	}
	p2, err := reader.RecvPacket()
	if err != nil || string(p2) != "packet-b" {
		t.Fatalf("got %q, %v; want packet-b", p2, err)
	}
}

func TestAgentToTUNDeliversPacketAndStopsOnCleanEOF(t *testing.T) {
	device := newFakeDevice()
	var wire bytes.Buffer
	sender := agent.NewChannel(nil, &wire, io.NopCloser(nil))
	if err := sender.SendPacket([]byte("from-agent")); err != nil {
		t.Fatalf("send: %v", err)
	}

	agentCh := agent.NewChannel(bytes.NewReader(wire.Bytes()), nil, io.NopCloser(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := agentToTUN(ctx, device, agentCh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(device.received) != 1 || string(device.received[0]) != "from-agent" {
		t.Fatalf("got %v, want [from-agent]", device.received)
	}
}
