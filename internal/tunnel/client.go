package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// clientTunnel forwards a local listener over an in-process SSH connection.
type clientTunnel struct {
	client   *ssh.Client
	listener net.Listener
	remote   string
	wg       sync.WaitGroup
	once     sync.Once
}

func openClient(ctx context.Context, cfg Config) (Tunnel, error) {
	callback, err := hostKeyCallback(cfg.KnownHosts)
	if err != nil {
		return nil, err
	}

	password := cfg.Password
	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: callback,
		Timeout:         cfg.ReadyTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ReadyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", cfg.sshAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.sshAddr(), err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, cfg.sshAddr(), sshCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", cfg.sshAddr(), err)
	}
	client := ssh.NewClient(c, chans, reqs)

	listener, err := net.Listen("tcp", cfg.localAddr())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.localAddr(), err)
	}

	t := &clientTunnel{
		client:   client,
		listener: listener,
		remote:   cfg.remoteAddr(),
	}
	t.wg.Add(1)
	go t.serve()

	log.Debug("ssh client tunnel ready", "local", listener.Addr().String(), "via", cfg.sshAddr())
	return t, nil
}

func (t *clientTunnel) serve() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Warn("tunnel accept failed", "err", err)
			}
			return
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.forward(local)
		}()
	}
}

func (t *clientTunnel) forward(local net.Conn) {
	defer local.Close()

	remote, err := t.client.Dial("tcp", t.remote)
	if err != nil {
		log.Warn("tunnel dial failed", "remote", t.remote, "err", err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}

func (t *clientTunnel) LocalAddr() string {
	return t.listener.Addr().String()
}

// Close stops accepting, closes the SSH connection and waits for in-flight
// copies to drain.
func (t *clientTunnel) Close() error {
	var err error
	t.once.Do(func() {
		err = t.listener.Close()
		if cerr := t.client.Close(); err == nil {
			err = cerr
		}
		t.wg.Wait()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// hostKeyCallback verifies against a known_hosts file when one exists. With
// no file the host key is accepted and a warning is logged.
func hostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".ssh", "known_hosts")
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			cb, err := knownhosts.New(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load known hosts %s: %w", path, err)
			}
			return cb, nil
		}
	}

	log.Warn("no known_hosts file; accepting any ssh host key", "path", path)
	return ssh.InsecureIgnoreHostKey(), nil
}
