// Package ssh runs parameterized commands on remote hosts over SSH.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/alessio/shellescape"
	"github.com/fgeck/webmaint/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Service defines the interface for remote command execution.
type Service interface {
	Run(ctx context.Context, host models.Host, cmd models.Command) (*models.CommandResult, error)
	TestConnection(ctx context.Context, host models.Host) (*models.CommandResult, error)
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	CombinedOutput(cmd string, stdin io.Reader) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) CombinedOutput(cmd string, stdin io.Reader) ([]byte, error) {
	if stdin != nil {
		s.session.Stdin = stdin
	}
	return s.session.CombinedOutput(cmd)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	cfg           models.SSHConfig
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new SSH service using the shared connection settings.
func New(logger zerolog.Logger, cfg models.SSHConfig) *Impl {
	return &Impl{
		cfg:           cfg,
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, cfg models.SSHConfig, factory ClientFactory) *Impl {
	return &Impl{
		cfg:           cfg,
		clientFactory: factory,
		logger:        logger,
	}
}

func (s *Impl) buildConfig() (*ssh.ClientConfig, error) {
	var key []byte
	var err error

	// Load private key from file or use provided key
	if len(s.cfg.PrivateKey) > 0 {
		key = s.cfg.PrivateKey
	} else if s.cfg.KeyPath != "" {
		key, err = os.ReadFile(s.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", s.cfg.KeyPath, err)
		}
	} else {
		return nil, fmt.Errorf("no private key provided")
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via known_hosts
	if s.cfg.KnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(s.cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts from %s: %w", s.cfg.KnownHosts, err)
		}
	}

	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User: s.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func (s *Impl) addr(host models.Host) string {
	port := host.Port
	if port == 0 {
		port = s.cfg.Port
	}
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(host.Name, strconv.Itoa(port))
}

func (s *Impl) connect(ctx context.Context, host models.Host) (SSHClient, error) {
	sshConfig, err := s.buildConfig()
	if err != nil {
		return nil, err
	}

	// Dial in the background so a cancelled context does not wait for the TCP timeout.
	clientChan := make(chan struct {
		client SSHClient
		err    error
	}, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", s.addr(host), sshConfig)
		clientChan <- struct {
			client SSHClient
			err    error
		}{client, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect: %w", res.err)
		}
		return res.client, nil
	}
}

// Run executes cmd on host. Every argument is shell-quoted, so values never
// reach the remote shell unescaped.
func (s *Impl) Run(ctx context.Context, host models.Host, cmd models.Command) (*models.CommandResult, error) {
	result := &models.CommandResult{}

	if len(cmd.Args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	line := shellescape.QuoteCommand(cmd.Args)

	s.logger.Debug().
		Str("host", host.String()).
		Str("command", line).
		Int("stdin_bytes", len(cmd.Stdin)).
		Msg("running remote command")

	client, err := s.connect(ctx, host)
	if err != nil {
		result.Error = err
		return result, nil
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		return result, nil
	}
	defer session.Close()

	var stdin io.Reader
	if cmd.Stdin != nil {
		stdin = bytes.NewReader(cmd.Stdin)
	}

	output, err := session.CombinedOutput(line, stdin)
	result.Output = string(output)
	result.CommandRun = true

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
		} else {
			result.ExitCode = -1
		}
		result.Error = fmt.Errorf("command %q failed: %w", line, err)
	}

	return result, nil
}

// TestConnection verifies SSH connectivity without touching any files.
func (s *Impl) TestConnection(ctx context.Context, host models.Host) (*models.CommandResult, error) {
	s.logger.Debug().
		Str("host", host.String()).
		Msg("testing SSH connection")

	result, err := s.Run(ctx, host, models.Command{Args: []string{"echo", "OK"}})
	if err != nil {
		return nil, err
	}
	if result.Error != nil && result.CommandRun {
		result.Error = fmt.Errorf("test command failed: %w", result.Error)
	}
	return result, nil
}
