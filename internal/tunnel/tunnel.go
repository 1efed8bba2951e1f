// Package tunnel opens SSH local port-forwards in front of database hosts.
//
// Two forwarders exist: an external "ssh -N -L" child process for key-based
// logins and an in-process golang.org/x/crypto/ssh client when a password is
// configured. Both are scoped resources; Close releases them.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Tunnel is a live port-forward.
type Tunnel interface {
	// LocalAddr is the loopback address clients should dial, e.g.
	// "127.0.0.1:16041".
	LocalAddr() string
	Close() error
}

// Config describes one forward: LocalPort on the loopback interface to
// RemoteHost:RemotePort as seen from the SSH server.
type Config struct {
	SSHHost    string
	SSHPort    int
	User       string
	Password   string
	KnownHosts string

	LocalPort  int
	RemoteHost string
	RemotePort int

	// ReadyTimeout bounds how long Open waits for the local port.
	ReadyTimeout time.Duration
}

// ErrExited is returned when the forwarding process dies before the local
// port becomes reachable.
var ErrExited = errors.New("ssh forwarder exited")

// ErrPortInUse is returned when a fixed LocalPort already has a listener.
// waitReady would otherwise mistake that listener for the forward.
var ErrPortInUse = errors.New("local port already in use")

const defaultReadyTimeout = 10 * time.Second

// Open starts a forward and waits until the local port accepts connections.
// A zero LocalPort picks a free ephemeral port.
func Open(ctx context.Context, cfg Config) (Tunnel, error) {
	if cfg.User == "" || cfg.SSHHost == "" {
		return nil, errors.New("tunnel requires an ssh user and host")
	}
	if cfg.SSHPort == 0 {
		cfg.SSHPort = 22
	}
	if cfg.RemoteHost == "" {
		cfg.RemoteHost = "127.0.0.1"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.LocalPort == 0 {
		port, err := freePort()
		if err != nil {
			return nil, fmt.Errorf("failed to pick local port: %w", err)
		}
		cfg.LocalPort = port
	} else if err := checkPortFree(cfg.localAddr()); err != nil {
		return nil, err
	}

	if cfg.Password != "" {
		return openClient(ctx, cfg)
	}
	return openExec(ctx, cfg)
}

func (c Config) localAddr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.LocalPort))
}

func (c Config) sshAddr() string {
	return net.JoinHostPort(c.SSHHost, strconv.Itoa(c.SSHPort))
}

func (c Config) remoteAddr() string {
	return net.JoinHostPort(c.RemoteHost, strconv.Itoa(c.RemotePort))
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func checkPortFree(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPortInUse, addr, err)
	}
	return l.Close()
}

// waitReady polls addr until it accepts a TCP connection, exited is closed,
// or the deadline passes.
func waitReady(ctx context.Context, addr string, exited <-chan struct{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}

		select {
		case <-exited:
			return ErrExited
		case <-ctx.Done():
			return fmt.Errorf("local port %s not ready: %w", addr, ctx.Err())
		case <-ticker.C:
		}
	}
}
