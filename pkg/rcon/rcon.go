// Package rcon drives game servers over the Source remote console protocol.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorcon/rcon"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("rcon client closed")

// Conn is one authenticated console socket.
type Conn interface {
	Execute(command string) (string, error)
	Close() error
}

type DialFunc func(address, password string, timeout time.Duration) (Conn, error)

// GorconDial opens a socket with gorcon, applying timeout to both the dial and each command.
func GorconDial(address, password string, timeout time.Duration) (Conn, error) {
	conn, err := rcon.Dial(address, password, rcon.SetDialTimeout(timeout), rcon.SetDeadline(timeout))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Dialer struct {
	Timeout time.Duration
	Dial    DialFunc
	Logger  *zap.Logger
}

// NewDialer creates a dialer with the given connect timeout.
func NewDialer(timeout time.Duration, logger *zap.Logger) *Dialer {
	return &Dialer{Timeout: timeout, Dial: GorconDial, Logger: logger}
}

// Open connects to address and returns a client that redials once when a command fails.
func (d *Dialer) Open(ctx context.Context, address, password string) (*Client, error) {
	c := &Client{
		address:  address,
		password: password,
		timeout:  d.Timeout,
		dial:     d.Dial,
		logger:   d.Logger.With(zap.String("address", address)),
	}
	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

type Client struct {
	mu       sync.Mutex
	address  string
	password string
	timeout  time.Duration
	dial     DialFunc
	conn     Conn
	closed   bool
	logger   *zap.Logger
}

// Reconnect drops the current socket, if any, and dials a fresh one.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectLocked(ctx)
}

func (c *Client) reconnectLocked(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	conn, err := c.dial(c.address, c.password, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.address, err)
	}
	c.conn = conn
	return nil
}

// Execute runs one command. A failure on an established socket triggers a
// single reconnect and retry before the error is returned.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.conn == nil {
		if err := c.reconnectLocked(ctx); err != nil {
			return "", err
		}
	}

	resp, err := c.conn.Execute(command)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("RCON command failed, reconnecting", zap.String("command", command), zap.Error(err))
	if rerr := c.reconnectLocked(ctx); rerr != nil {
		return "", fmt.Errorf("command %q failed and reconnect failed: %w", command, errors.Join(err, rerr))
	}

	resp, err = c.conn.Execute(command)
	if err != nil {
		return "", fmt.Errorf("command %q failed after reconnect: %w", command, err)
	}
	return resp, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
