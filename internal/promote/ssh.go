package promote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const (
	DefaultSSHPort = 22222
	DefaultSSHUser = "root"
)

// Shell runs commands on a device
type Shell interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// Dialer opens a Shell on the device at address
type Dialer func(ctx context.Context, address string) (Shell, error)

type SSHConfig struct {
	Port    int
	User    string
	Timeout time.Duration
	// AgentSocket defaults to $SSH_AUTH_SOCK
	AgentSocket string
}

// SSHDialer returns a Dialer for the device SSH server. Development images
// accept root without credentials; keys from a running agent are offered
// first.
func SSHDialer(cfg SSHConfig) Dialer {
	if cfg.Port == 0 {
		cfg.Port = DefaultSSHPort
	}
	if cfg.User == "" {
		cfg.User = DefaultSSHUser
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.AgentSocket == "" {
		cfg.AgentSocket = os.Getenv("SSH_AUTH_SOCK")
	}

	return func(ctx context.Context, address string) (Shell, error) {
		var (
			auths     []ssh.AuthMethod
			agentConn net.Conn
		)
		if cfg.AgentSocket != "" {
			if conn, err := net.Dial("unix", cfg.AgentSocket); err == nil {
				agentConn = conn
				auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
		auths = append(auths,
			ssh.Password(""),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				return make([]string, len(questions)), nil
			}),
		)

		config := &ssh.ClientConfig{
			User: cfg.User,
			Auth: auths,
			// local devices regenerate host keys on every flash
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         cfg.Timeout,
		}

		addr := net.JoinHostPort(address, strconv.Itoa(cfg.Port))
		dialer := net.Dialer{Timeout: cfg.Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			closeQuietly(agentConn)
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}

		c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err != nil {
			conn.Close()
			closeQuietly(agentConn)
			return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
		}

		return &sshShell{client: ssh.NewClient(c, chans, reqs), agentConn: agentConn}, nil
	}
}

type sshShell struct {
	client    *ssh.Client
	agentConn net.Conn
}

func (s *sshShell) Run(ctx context.Context, command string) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return stdout.String(), fmt.Errorf("%w: %s", err, msg)
			}
			return stdout.String(), err
		}
	}

	return stdout.String(), nil
}

func (s *sshShell) Close() error {
	closeQuietly(s.agentConn)
	return s.client.Close()
}

func closeQuietly(c net.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
