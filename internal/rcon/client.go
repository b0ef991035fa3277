// Package rcon talks to a game server's administrative console.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	gorcon "github.com/gorcon/rcon"
)

var (
	ErrConnect = errors.New("rcon connect failed")
	ErrAuth    = errors.New("rcon authentication failed")
	ErrCommand = errors.New("rcon command failed")
)

// Commands understood by the game server.
const (
	CmdSaveWorld   = "SaveWorld"
	CmdDoExit      = "DoExit"
	CmdListPlayers = "ListPlayers"
)

// Client opens administrative connections.
type Client interface {
	Connect(ctx context.Context, host string, port int, password string) (Conn, error)
}

type Conn interface {
	Exec(ctx context.Context, cmd string) (string, error)
	Close() error
}

// GorconClient dials servers with github.com/gorcon/rcon. Timeout bounds
// both the dial and each command round trip.
type GorconClient struct {
	Timeout time.Duration
}

func (c GorconClient) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Timeout
}

func (c GorconClient) Connect(ctx context.Context, host string, port int, password string) (Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	type result struct {
		conn *gorcon.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := gorcon.Dial(addr, password,
			gorcon.SetDialTimeout(c.timeout()),
			gorcon.SetDeadline(c.timeout()),
		)
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		// the dial finishes on its own; close whatever it produced
		go func() {
			if r := <-ch; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, ctx.Err())
	case r := <-ch:
		if errors.Is(r.err, gorcon.ErrAuthFailed) {
			return nil, fmt.Errorf("%w: %s", ErrAuth, addr)
		}
		if r.err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, r.err)
		}
		return &gorconConn{conn: r.conn}, nil
	}
}

type gorconConn struct {
	conn *gorcon.Conn
}

func (c *gorconConn) Exec(ctx context.Context, cmd string) (string, error) {
	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := c.conn.Execute(cmd)
		ch <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		// unblocks the pending Execute
		_ = c.conn.Close()
		return "", fmt.Errorf("%w: %s: %w", ErrCommand, cmd, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrCommand, cmd, r.err)
		}
		return r.out, nil
	}
}

func (c *gorconConn) Close() error { return c.conn.Close() }
