package socks

import (
	"bytes"
	"context"
	"net"
	"testing"
)

func TestNegotiateNoAuth(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- negotiateNoAuth(server) }()

	if _, err := client.Write([]byte{socksVersion5, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	reply := make([]byte, 2)
	if _, err := client.Read(reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("negotiateNoAuth: %v", err)
	}
	if !bytes.Equal(reply, []byte{socksVersion5, 0x00}) {
		t.Errorf("got %v, want no-auth selection", reply)
	}
}

func TestReadRequestDomainName(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	type result struct {
		dest string
		cmd  byte
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		dest, cmd, err := readRequest(server)
		resCh <- result{dest, cmd, err}
	}()

	req := []byte{socksVersion5, cmdConnect, 0x00, atypDomainName, 11}
	req = append(req, []byte("example.com")...)
	req = append(req, 0x01, 0xBB) // port 443
	if _, err := client.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	res := <-resCh
	if res.err != nil {
		t.Fatalf("readRequest: %v", res.err)
	}
	if res.cmd != cmdConnect {
		t.Errorf("got cmd %d, want CONNECT", res.cmd)
	}
	if res.dest != "example.com:443" {
		t.Errorf("got dest %q, want example.com:443", res.dest)
	}
}

func TestReadRequestIPv4(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	type result struct {
		dest string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		dest, _, err := readRequest(server)
		resCh <- result{dest, err}
	}()

	req := []byte{socksVersion5, cmdConnect, 0x00, atypIPv4, 127, 0, 0, 1, 0x1F, 0x90} // 8080
	if _, err := client.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	res := <-resCh
	if res.err != nil {
		t.Fatalf("readRequest: %v", res.err)
	}
	if res.dest != "127.0.0.1:8080" {
		t.Errorf("got dest %q, want 127.0.0.1:8080", res.dest)
	}
}

func TestResolveDestinationPassesThroughIP(t *testing.T) {
	got, err := resolveDestination(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("resolveDestination: %v", err)
	}
	if got != "127.0.0.1" {
		t.Errorf("got %q, want 127.0.0.1", got)
	}
}

func TestResolveDestinationFailsForBogusName(t *testing.T) {
	if _, err := resolveDestination(context.Background(), "this-name-should-not-resolve.invalid"); err == nil {
		t.Fatal("expected resolution failure for a bogus hostname")
	}
}

func TestWriteSuccessReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go writeSuccessReply(server)

	reply := make([]byte, 10)
	if _, err := client.Read(reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply[1] != replySucceeded {
		t.Errorf("got reply code %d, want succeeded", reply[1])
	}
}
