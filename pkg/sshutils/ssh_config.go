package sshutils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/ssh"

	"github.com/bacalhau-project/vmcheck/pkg/logger"
)

// SSHConfiger is implemented by SSHConfig and by MockSSHConfig in tests.
type SSHConfiger interface {
	Address() string
	Connect(ctx context.Context) (SSHClienter, error)
	WaitForSSH(ctx context.Context, timeout time.Duration) error
	RunCommand(ctx context.Context, command string) (*CommandResult, error)
	ExecuteCommand(ctx context.Context, command string) (string, error)
	IsServiceActive(ctx context.Context, serviceName string) (bool, error)
	IsServiceEnabled(ctx context.Context, serviceName string) (bool, error)
	Close() error
}

// Options are the inputs for NewSSHConfig.
type Options struct {
	Host           string
	Port           int
	User           string
	PrivateKeyPath string
	HostKeyPolicy  HostKeyPolicy
	KnownHostsPath string
	Timeout        time.Duration
}

func (o Options) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", o.Port)
	}
	if o.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	return nil
}

// SSHConfig holds a resolved client configuration and, once connected, the
// client itself.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	PrivateKeyPath string
	Logger         *logger.Logger
	ClientConfig   *ssh.ClientConfig
	HostKeys       *HostKeyVerifier
	SSHDialer      SSHDialer
	SSHClient      SSHClienter
}

// CommandResult is the outcome of a command that ran to completion.
type CommandResult struct {
	Stdout     []byte
	Stderr     []byte
	ExitStatus int
}

// NewSSHConfigFunc is the function used to create new SSH configurations
// This can be overridden for testing
var NewSSHConfigFunc = func(opts Options) (SSHConfiger, error) {
	return NewSSHConfig(opts)
}

// NewSSHConfig validates opts and loads the private key. No network
// activity happens here, so a bad key fails before any connection attempt.
func NewSSHConfig(opts Options) (*SSHConfig, error) {
	l := logger.Get()

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	l.Debugf("Creating new SSH config for %s@%s:%d", opts.User, opts.Host, opts.Port)

	signer, err := LoadPrivateKey(opts.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	l.Debugf("Loaded %s private key from %s", signer.PublicKey().Type(), opts.PrivateKeyPath)

	hostKeys, err := NewHostKeyVerifier(opts.HostKeyPolicy, opts.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	config := &SSHConfig{
		Host:           opts.Host,
		Port:           opts.Port,
		User:           opts.User,
		PrivateKeyPath: opts.PrivateKeyPath,
		Logger:         l,
		HostKeys:       hostKeys,
		SSHDialer:      NewSSHDial(),
	}
	config.ClientConfig = &ssh.ClientConfig{
		User:              opts.User,
		Auth:              []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback:   hostKeys.HostKeyCallback(),
		HostKeyAlgorithms: hostKeys.HostKeyAlgorithms(config.Address()),
		Timeout:           opts.Timeout,
	}

	return config, nil
}

func (c *SSHConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Connect makes a single connection attempt. An existing connection is
// reused.
func (c *SSHConfig) Connect(ctx context.Context) (SSHClienter, error) {
	if c.SSHClient != nil {
		return c.SSHClient, nil
	}

	c.Logger.Infof("Connecting to SSH server %s as %s", c.Address(), c.User)
	client, err := c.SSHDialer.Dial(ctx, "tcp", c.Address(), c.ClientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}

	c.Logger.Debugf("SSH connection to %s established", c.Address())
	c.SSHClient = client
	return client, nil
}

// WaitForSSH connects, retrying with exponential backoff until the
// connection succeeds, timeout elapses or ctx is done. The connection is
// kept open on success.
func (c *SSHConfig) WaitForSSH(ctx context.Context, timeout time.Duration) error {
	c.Logger.Debugf("Waiting up to %s for SSH on %s", timeout, c.Address())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = SSHWaitInitialInterval
	b.MaxInterval = SSHWaitMaxInterval
	b.MaxElapsedTime = timeout

	attempts := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		if _, err := c.Connect(ctx); err != nil {
			c.Logger.Debugf("SSH attempt %d to %s failed: %v", attempts, c.Address(), err)
			if errors.Is(err, ErrHostKeyMismatch) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("SSH on %s not reachable after %d attempts: %w", c.Address(), attempts, err)
	}
	return nil
}

// RunCommand runs command in a new session. A non-zero exit status is
// reported in the result, not as an error.
func (c *SSHConfig) RunCommand(ctx context.Context, command string) (*CommandResult, error) {
	if c.SSHClient == nil {
		return nil, ErrNotConnected
	}

	session, err := c.SSHClient.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.SetStdout(&stdout)
	session.SetStderr(&stderr)

	c.Logger.Debugf("Executing SSH command: %s", command)

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		result.ExitStatus = exitErr.ExitStatus()
		c.Logger.Debugf("SSH command %q exited with status %d", command, result.ExitStatus)
		return result, nil
	}
	if err != nil {
		return nil, &SSHError{Cmd: command, Output: stderr.String(), Err: err}
	}
	return result, nil
}

// ExecuteCommand runs command and returns its decoded, trimmed stdout.
// A non-zero exit status is an *SSHError.
func (c *SSHConfig) ExecuteCommand(ctx context.Context, command string) (string, error) {
	result, err := c.RunCommand(ctx, command)
	if err != nil {
		return "", err
	}
	if result.ExitStatus != 0 {
		return "", &SSHError{
			Cmd:    command,
			Output: strings.TrimSpace(string(result.Stdout) + string(result.Stderr)),
			Err:    fmt.Errorf("exit status %d", result.ExitStatus),
		}
	}
	return DecodeOutput(result.Stdout)
}

// Close closes the SSH connection
func (c *SSHConfig) Close() error {
	if c.SSHClient == nil {
		return nil
	}
	err := c.SSHClient.Close()
	c.SSHClient = nil
	return err
}

// DecodeOutput decodes command output as UTF-8 and trims surrounding
// whitespace.
func DecodeOutput(output []byte) (string, error) {
	if !utf8.Valid(output) {
		return "", ErrInvalidOutputEncoding
	}
	return strings.TrimSpace(string(output)), nil
}

var _ SSHConfiger = &SSHConfig{}
