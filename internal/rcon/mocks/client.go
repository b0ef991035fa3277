package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/faradayfan/dedicated-server-manager/internal/rcon"
)

// Client is a mock implementation of rcon.Client
type Client struct {
	mock.Mock
}

func (m *Client) Connect(ctx context.Context, host string, port int, password string) (rcon.Conn, error) {
	args := m.Called(ctx, host, port, password)
	if conn, ok := args.Get(0).(rcon.Conn); ok {
		return conn, args.Error(1)
	}
	return nil, args.Error(1)
}

// Conn is a mock implementation of rcon.Conn
type Conn struct {
	mock.Mock
}

func (m *Conn) Exec(ctx context.Context, cmd string) (string, error) {
	args := m.Called(ctx, cmd)
	return args.String(0), args.Error(1)
}

func (m *Conn) Close() error {
	args := m.Called()
	return args.Error(0)
}
