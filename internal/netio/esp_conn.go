package netio

// esp_conn.go: UDP transport for ESP datagrams (RFC 4303 over UDP
// encapsulation, RFC 3948 style — a single UDP socket, no additional
// framing beyond the ESP header itself).

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/dantte-lp/espd/internal/esp"
)

// espBufSize is the receive buffer size for ESP datagrams. Sized well
// above any realistic MTU so a single oversized read never truncates a
// datagram silently.
const espBufSize = 9000

// ErrConnClosed indicates an operation was attempted on a closed ESPConn.
var ErrConnClosed = errors.New("esp connection closed")

// ESPConn is a UDP socket carrying ESP datagrams to and from peers.
//
// Thread safety: SendTo and RecvFrom may be called concurrently from
// separate goroutines (TX from the encrypt path, RX from the receive
// loop). The underlying net.UDPConn is safe for concurrent use; mu
// guards only the closed flag.
type ESPConn struct {
	conn          *net.UDPConn
	localAddrPort netip.AddrPort
	pool          *esp.BufferPool
	mu            sync.Mutex
	closed        bool
}

// NewESPConn binds a UDP socket at addr (host:port, e.g. ":4500") for
// sending and receiving ESP datagrams. A port of 0 lets the kernel
// choose an ephemeral port, useful for tests.
func NewESPConn(addr string) (*ESPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("esp conn: resolve %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("esp conn: bind %s: %w", addr, err)
	}

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()

	return &ESPConn{
		conn:          conn,
		localAddrPort: local,
		pool:          esp.NewBufferPool(espBufSize),
	}, nil
}

// SendTo writes an ESP datagram to dst. raw is written as-is; the caller
// is responsible for having already run it through esp.Encrypt.
func (c *ESPConn) SendTo(raw []byte, dst netip.AddrPort) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("esp conn send to %s: %w", dst, ErrConnClosed)
	}

	udpDst := net.UDPAddrFromAddrPort(dst)
	if _, err := c.conn.WriteToUDPAddrPort(raw, dst); err != nil {
		return fmt.Errorf("esp conn send to %s: %w", udpDst, err)
	}
	return nil
}

// RecvFrom blocks for the next datagram. The returned slice is drawn
// from an internal buffer pool; the caller must call ReleaseBuffer once
// done with it (decrypt failures and successes alike).
func (c *ESPConn) RecvFrom() ([]byte, netip.AddrPort, error) {
	buf := c.pool.Get()
	buf = buf[:cap(buf)]

	n, src, err := c.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		c.pool.Put(buf)
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, netip.AddrPort{}, fmt.Errorf("esp conn recv: %w", ErrConnClosed)
		}
		return nil, netip.AddrPort{}, fmt.Errorf("esp conn recv: %w", err)
	}

	return buf[:n], src, nil
}

// ReleaseBuffer returns a buffer obtained from RecvFrom to the pool.
func (c *ESPConn) ReleaseBuffer(buf []byte) {
	c.pool.Put(buf)
}

// LocalAddr returns the address the socket is bound to.
func (c *ESPConn) LocalAddr() netip.Addr {
	return c.localAddrPort.Addr()
}

// LocalAddrPort returns the address and port the socket is bound to,
// resolving any ephemeral port the kernel assigned at bind time.
func (c *ESPConn) LocalAddrPort() netip.AddrPort {
	return c.localAddrPort
}

// Close releases the underlying UDP socket.
func (c *ESPConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("esp conn close: %w", err)
	}
	return nil
}
