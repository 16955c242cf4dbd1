// Package socks implements a minimal SOCKS5 server: no-auth negotiation and
// the CONNECT command only, splicing each accepted client connection onto a
// transport forward.
package socks

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tokarevart/x2ssh/internal/transport"
)

const (
	socksVersion5  = 0x05
	cmdConnect     = 0x01
	cmdBind        = 0x02
	cmdUDPAssoc    = 0x03
	atypIPv4       = 0x01
	atypDomainName = 0x03
	atypIPv6       = 0x04

	replySucceeded         = 0x00
	replyGeneralFailure    = 0x01
	replyCommandNotSupport = 0x07
	replyAddrTypeNotSupp   = 0x08
	replyHostUnreachable   = 0x04
)

// defaultRateLimit caps new SOCKS5 client connections accepted per second,
// grounded on internal/tunnel/server.go's defaultRateLimit for its
// forwarded-tcpip listener.
const defaultRateLimit rate.Limit = 50
const defaultBurst = 100
const defaultMaxPending = 200

// Server accepts SOCKS5 connections on a local listener and forwards each
// one through a Transport's direct-tcpip channel.
type Server struct {
	Addr      string
	Transport *transport.Transport

	limiter *rate.Limiter
	sem     chan struct{}
}

// NewServer builds a Server bound to addr.
func NewServer(addr string, t *transport.Transport) *Server {
	return &Server{
		Addr:      addr,
		Transport: t,
		limiter:   rate.NewLimiter(defaultRateLimit, defaultBurst),
		sem:       make(chan struct{}, defaultMaxPending),
	}
}

// ListenAndServe binds Addr and accepts connections until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("socks: listen %s: %w", s.Addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	log.Info().Str("addr", s.Addr).Msg("socks: listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("socks: accept: %w", err)
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			_ = conn.Close()
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			_ = conn.Close()
			return nil
		}

		go func() {
			defer func() { <-s.sem }()
			defer conn.Close()
			if err := s.serve(ctx, conn); err != nil {
				log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("socks: session ended")
			}
		}()
	}
}

// serve runs the handshake and CONNECT handling for a single client
// connection, matching spec.md's §4.4 step sequence.
func (s *Server) serve(ctx context.Context, conn net.Conn) error {
	if err := negotiateNoAuth(conn); err != nil {
		return err
	}

	dest, cmd, err := readRequest(conn)
	if err != nil {
		writeErrorReply(conn, replyGeneralFailure)
		return err
	}

	if cmd != cmdConnect {
		writeErrorReply(conn, replyCommandNotSupport)
		return fmt.Errorf("socks: unsupported command %d", cmd)
	}

	host, port, err := net.SplitHostPort(dest)
	if err != nil {
		writeErrorReply(conn, replyHostUnreachable)
		return fmt.Errorf("socks: bad destination %q: %w", dest, err)
	}

	resolvedHost, err := resolveDestination(ctx, host)
	if err != nil {
		writeErrorReply(conn, replyHostUnreachable)
		return fmt.Errorf("socks: resolve %q: %w", host, err)
	}
	dest = net.JoinHostPort(resolvedHost, port)

	if err := writeSuccessReply(conn); err != nil {
		return fmt.Errorf("socks: write success reply: %w", err)
	}

	return s.Transport.Forward(ctx, dest, conn)
}

// resolveDestination resolves host to an IP address, matching spec.md's
// §4.4 step 3: the destination is resolved locally before the success reply
// is sent, so an unresolvable name gets the documented error reply instead
// of a silently dropped forward.
func resolveDestination(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	var resolver net.Resolver
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses found for %s", host)
	}
	return addrs[0].IP.String(), nil
}

// negotiateNoAuth reads the SOCKS5 greeting and replies with the no-auth
// method, per spec.md's `05 01 00` -> `05 00` contract.
func negotiateNoAuth(conn net.Conn) error {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return fmt.Errorf("socks: read greeting: %w", err)
	}
	if hdr[0] != socksVersion5 {
		return fmt.Errorf("socks: unsupported version %d", hdr[0])
	}
	nMethods := int(hdr[1])
	methods := make([]byte, nMethods)
	if _, err := io.ReadFull(conn, methods); err != nil {
		return fmt.Errorf("socks: read methods: %w", err)
	}
	if _, err := conn.Write([]byte{socksVersion5, 0x00}); err != nil {
		return fmt.Errorf("socks: write method selection: %w", err)
	}
	return nil
}

// readRequest parses the SOCKS5 request header and returns the requested
// command and destination ("host:port").
func readRequest(conn net.Conn) (dest string, cmd byte, err error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return "", 0, fmt.Errorf("socks: read request header: %w", err)
	}
	if hdr[0] != socksVersion5 {
		return "", 0, fmt.Errorf("socks: unsupported version %d", hdr[0])
	}
	cmd = hdr[1]
	atyp := hdr[3]

	var host string
	switch atyp {
	case atypIPv4:
		addr := make([]byte, 4)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return "", 0, fmt.Errorf("socks: read ipv4 addr: %w", err)
		}
		host = net.IP(addr).String()
	case atypIPv6:
		addr := make([]byte, 16)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return "", 0, fmt.Errorf("socks: read ipv6 addr: %w", err)
		}
		host = net.IP(addr).String()
	case atypDomainName:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return "", 0, fmt.Errorf("socks: read domain length: %w", err)
		}
		name := make([]byte, int(lenBuf[0]))
		if _, err := io.ReadFull(conn, name); err != nil {
			return "", 0, fmt.Errorf("socks: read domain: %w", err)
		}
		host = string(name)
	default:
		return "", 0, fmt.Errorf("socks: unsupported address type %d", atyp)
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return "", 0, fmt.Errorf("socks: read port: %w", err)
	}
	port := binary.BigEndian.Uint16(portBuf)

	return net.JoinHostPort(host, strconv.Itoa(int(port))), cmd, nil
}

// writeSuccessReply sends the post-handshake success reply with a bound
// address of 127.0.0.1:0, matching spec.md's §4.4 step 6.
func writeSuccessReply(conn net.Conn) error {
	reply := []byte{socksVersion5, replySucceeded, 0x00, atypIPv4, 127, 0, 0, 1, 0, 0}
	_, err := conn.Write(reply)
	return err
}

// writeErrorReply makes a best-effort attempt to send a SOCKS5 error reply;
// failures are logged and otherwise ignored, per spec.md's error-reply
// contract.
func writeErrorReply(conn net.Conn, code byte) {
	reply := []byte{socksVersion5, code, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	if _, err := conn.Write(reply); err != nil {
		log.Debug().Err(err).Msg("socks: failed to send error reply")
	}
}
