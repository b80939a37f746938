package visa

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// tcpConn is a raw SCPI-over-TCP connection (the SOCKET/INSTR resource
// forms). Most LAN instruments expose this on port 5025.
type tcpConn struct {
	conn    net.Conn
	rd      *bufio.Reader
	term    byte
	timeout time.Duration
}

func dialTCP(ctx context.Context, r Resource, o Options) (*tcpConn, error) {
	var d net.Dialer
	addr := net.JoinHostPort(r.Host, strconv.Itoa(r.Port))

	dialCtx, cancel := exchangeContext(ctx, o.Timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", r, err)
	}

	return &tcpConn{
		conn:    conn,
		rd:      bufio.NewReader(conn),
		term:    o.Termination,
		timeout: o.Timeout,
	}, nil
}

// deadlineFrom applies the context deadline (or the transport timeout)
// to the socket so a stuck instrument cannot hang a read forever.
func (c *tcpConn) deadlineFrom(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	if c.timeout > 0 {
		return time.Now().Add(c.timeout)
	}
	return time.Time{}
}

func (c *tcpConn) Write(ctx context.Context, cmd []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(c.deadlineFrom(ctx)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}

	buf := make([]byte, 0, len(cmd)+1)
	buf = append(buf, cmd...)
	buf = append(buf, c.term)

	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}
	return nil
}

func (c *tcpConn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(c.deadlineFrom(ctx)); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}

	line, err := c.rd.ReadBytes(c.term)
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}

	// Strip termination and a possible preceding '\r'.
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

func (c *tcpConn) Query(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := c.Write(ctx, cmd); err != nil {
		return nil, err
	}
	return c.Read(ctx)
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
