package sshutils

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/ssh"
)

// MockSSHDialer is a mock implementation of SSHDialer
type MockSSHDialer struct {
	mock.Mock
}

func NewMockSSHDialer() *MockSSHDialer {
	return &MockSSHDialer{}
}

func (m *MockSSHDialer) Dial(
	ctx context.Context,
	network, addr string,
	config *ssh.ClientConfig,
) (SSHClienter, error) {
	args := m.Called(ctx, network, addr, config)
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(SSHClienter), nil
}

type MockSSHClient struct {
	mock.Mock
}

func (m *MockSSHClient) NewSession() (SSHSessioner, error) {
	args := m.Called()
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(SSHSessioner), nil
}

func (m *MockSSHClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockSSHSession writes Stdout/Stderr into whatever writers the caller set
// before returning the mocked Run error.
type MockSSHSession struct {
	mock.Mock
	Stdout       []byte
	Stderr       []byte
	stdoutWriter io.Writer
	stderrWriter io.Writer
}

func NewMockSSHSession() *MockSSHSession {
	return &MockSSHSession{}
}

func (m *MockSSHSession) Run(cmd string) error {
	args := m.Called(cmd)
	if m.stdoutWriter != nil && m.Stdout != nil {
		_, _ = m.stdoutWriter.Write(m.Stdout)
	}
	if m.stderrWriter != nil && m.Stderr != nil {
		_, _ = m.stderrWriter.Write(m.Stderr)
	}
	return args.Error(0)
}

func (m *MockSSHSession) SetStdout(w io.Writer) {
	m.stdoutWriter = w
}

func (m *MockSSHSession) SetStderr(w io.Writer) {
	m.stderrWriter = w
}

func (m *MockSSHSession) Signal(sig ssh.Signal) error {
	args := m.Called(sig)
	return args.Error(0)
}

func (m *MockSSHSession) Close() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ SSHClienter  = &MockSSHClient{}
	_ SSHSessioner = &MockSSHSession{}
)

// MockSSHConfig is a mock implementation of SSHConfiger
type MockSSHConfig struct {
	mock.Mock
}

func (m *MockSSHConfig) Address() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSSHConfig) Connect(ctx context.Context) (SSHClienter, error) {
	args := m.Called(ctx)
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(SSHClienter), nil
}

func (m *MockSSHConfig) WaitForSSH(ctx context.Context, timeout time.Duration) error {
	args := m.Called(ctx, timeout)
	return args.Error(0)
}

func (m *MockSSHConfig) RunCommand(ctx context.Context, command string) (*CommandResult, error) {
	args := m.Called(ctx, command)
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CommandResult), nil
}

func (m *MockSSHConfig) ExecuteCommand(ctx context.Context, command string) (string, error) {
	args := m.Called(ctx, command)
	return args.String(0), args.Error(1)
}

func (m *MockSSHConfig) IsServiceActive(ctx context.Context, serviceName string) (bool, error) {
	args := m.Called(ctx, serviceName)
	return args.Bool(0), args.Error(1)
}

func (m *MockSSHConfig) IsServiceEnabled(ctx context.Context, serviceName string) (bool, error) {
	args := m.Called(ctx, serviceName)
	return args.Bool(0), args.Error(1)
}

func (m *MockSSHConfig) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ SSHConfiger = &MockSSHConfig{}
