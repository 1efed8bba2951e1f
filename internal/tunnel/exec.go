package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// SSHBinary is the ssh client used for key-based forwards.
var SSHBinary = "ssh"

// execTunnel is an "ssh -N -L" child process.
type execTunnel struct {
	cmd    *exec.Cmd
	local  string
	stderr *tailBuffer
	exited chan struct{}
	once   sync.Once
}

func sshArgs(cfg Config) []string {
	args := []string{
		"-N",
		"-o", "ExitOnForwardFailure=yes",
		"-o", "BatchMode=yes",
		"-o", "ServerAliveInterval=30",
		"-p", strconv.Itoa(cfg.SSHPort),
		"-L", fmt.Sprintf("%d:%s", cfg.LocalPort, cfg.remoteAddr()),
	}
	if cfg.KnownHosts != "" {
		args = append(args, "-o", "UserKnownHostsFile="+cfg.KnownHosts)
	}
	return append(args, cfg.User+"@"+cfg.SSHHost)
}

func openExec(ctx context.Context, cfg Config) (Tunnel, error) {
	// The process outlives ctx, so it is not started with CommandContext.
	cmd := exec.Command(SSHBinary, sshArgs(cfg)...)
	setProcessGroup(cmd)

	t := &execTunnel{
		cmd:    cmd,
		local:  cfg.localAddr(),
		stderr: &tailBuffer{max: 4096},
		exited: make(chan struct{}),
	}
	cmd.Stderr = t.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", SSHBinary, err)
	}
	log.Debug("ssh forwarder started", "pid", cmd.Process.Pid, "local", t.local, "via", cfg.sshAddr())

	go func() {
		_ = cmd.Wait()
		close(t.exited)
	}()

	if err := waitReady(ctx, t.local, t.exited, cfg.ReadyTimeout); err != nil {
		t.Close()
		if errors.Is(err, ErrExited) {
			if msg := strings.TrimSpace(t.stderr.String()); msg != "" {
				return nil, fmt.Errorf("%w: %s", ErrExited, msg)
			}
		}
		return nil, err
	}
	return t, nil
}

func (t *execTunnel) LocalAddr() string {
	return t.local
}

// Close terminates the forwarder's process group and reaps it.
func (t *execTunnel) Close() error {
	t.once.Do(func() {
		select {
		case <-t.exited:
			return
		default:
		}
		if err := killProcessGroup(t.cmd); err != nil {
			log.Debug("failed to signal ssh forwarder", "err", err)
		}
		<-t.exited
	})
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
