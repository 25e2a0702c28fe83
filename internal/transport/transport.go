// Package transport owns the stream connection to one gateway device. It
// performs connect, send and receive with explicit timeouts and exposes a
// reconnect operation; retry policy lives a layer up in the session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lanweather/gwclient/internal/log"
	"github.com/lanweather/gwclient/internal/protocol"
)

// Default timeouts, overridable through configuration. Broadcast-adjacent
// operations get a longer window than the periodic poll commands.
const (
	DefaultCommandTimeout   = 2 * time.Second
	DefaultBroadcastTimeout = 5 * time.Second
	DefaultConnectTimeout   = 5 * time.Second
)

// Transport failures. ErrTimeout covers an incomplete frame within the
// receive window; ErrConnection covers refusals, resets and broken pipes.
var (
	ErrTimeout    = errors.New("timeout awaiting response")
	ErrConnection = errors.New("connection error")
	ErrClosed     = errors.New("transport closed")
)

// classify wraps a socket error with the matching sentinel.
func classify(op string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrConnection, op, err)
}

// Conn is the stream connection to one device. It owns its socket
// exclusively; the session layer borrows it but never closes it directly.
type Conn struct {
	addr           string
	connectTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// New returns an unconnected transport for the device at addr.
func New(addr string, connectTimeout time.Duration) *Conn {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Conn{addr: addr, connectTimeout: connectTimeout}
}

// Addr returns the device endpoint this transport dials.
func (c *Conn) Addr() string { return c.addr }

// Connect opens the stream connection, replacing any prior one.
func (c *Conn) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return classify("connect "+c.addr, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	log.Debugf("connected to %s", c.addr)
	return nil
}

// Reconnect tears down and reopens the underlying connection. Used by the
// session after repeated transport-level failures.
func (c *Conn) Reconnect(ctx context.Context) error {
	log.Infof("reconnecting to %s", c.addr)
	return c.Connect(ctx)
}

// Close releases the socket. Safe to call multiple times.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Conn) current() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrClosed
	}
	return c.conn, nil
}

// Send writes one command frame.
func (c *Conn) Send(frame []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	log.Debugf("-> %s % X", c.addr, frame)
	if err := conn.SetWriteDeadline(time.Now().Add(c.connectTimeout)); err != nil {
		return classify("set write deadline", err)
	}
	if _, err := conn.Write(frame); err != nil {
		return classify("write", err)
	}
	return nil
}

// Receive reads one complete response frame for the issued command within
// timeout. The frame length comes from the response's declared size field,
// whose width depends on the command.
func (c *Conn) Receive(issued protocol.Command, timeout time.Duration) ([]byte, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, classify("set read deadline", err)
	}

	hdr := make([]byte, 5)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return nil, classify("read header", err)
	}
	total, err := protocol.ResponseLength(hdr, issued)
	if err != nil {
		return nil, err
	}
	if total < len(hdr) {
		return hdr, nil
	}

	buf := make([]byte, total)
	copy(buf, hdr)
	if _, err := io.ReadFull(conn, buf[len(hdr):]); err != nil {
		return nil, classify("read body", err)
	}
	log.Debugf("<- %s % X", c.addr, buf)
	return buf, nil
}
