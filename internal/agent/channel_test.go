package agent

import (
	"bytes"
	"io"
	"testing"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func TestSendRecvRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	sender := NewChannel(nil, &wire, nopCloser{})
	if err := sender.SendPacket([]byte("packet one")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sender.SendPacket([]byte("packet two")); err != nil {
		t.Fatalf("send: %v", err)
	}

	receiver := NewChannel(bytes.NewReader(wire.Bytes()), nil, nopCloser{})
	got1, err := receiver.RecvPacket()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got1) != "packet one" {
		t.Errorf("got %q, want %q", got1, "packet one")
	}
	got2, err := receiver.RecvPacket()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got2) != "packet two" {
		t.Errorf("got %q, want %q", got2, "packet two")
	}
}

func TestRecvPacketEOFReturnsNil(t *testing.T) {
	receiver := NewChannel(bytes.NewReader(nil), nil, nopCloser{})
	packet, err := receiver.RecvPacket()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if packet != nil {
		t.Errorf("got %v, want nil on clean close", packet)
	}
}

func TestRecvPacketPartialReads(t *testing.T) {
	var wire bytes.Buffer
	sender := NewChannel(nil, &wire, nopCloser{})
	payload := bytes.Repeat([]byte{0xCD}, 5000)
	if err := sender.SendPacket(payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	receiver := NewChannel(&slowReader{r: bytes.NewReader(wire.Bytes())}, nil, nopCloser{})
	got, err := receiver.RecvPacket()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload mismatch across partial reads")
	}
}

// slowReader returns at most 3 bytes per Read call, forcing RecvPacket's
// accumulation loop to run multiple times per frame.
type slowReader struct {
	r io.Reader
}

func (s *slowReader) Read(p []byte) (int, error) {
	if len(p) > 3 {
		p = p[:3]
	}
	return s.r.Read(p)
}
