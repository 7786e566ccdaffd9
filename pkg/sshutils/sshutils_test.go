package sshutils

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bacalhau-project/vmcheck/internal/testutil"
)

// connectToFakeVM starts an in-process SSH server authorizing the RSA test
// key and returns a connected SSHConfig.
func connectToFakeVM(t *testing.T, vm testutil.FakeVM) (*SSHConfig, *testutil.SSHServer) {
	t.Helper()

	key := testutil.RSAKeyPair(t)
	server := testutil.NewSSHServer(t, key.PublicKey, vm.Handle)

	config, err := NewSSHConfig(Options{
		Host:           server.Host(),
		Port:           server.Port(),
		User:           "root",
		PrivateKeyPath: key.PrivateKeyPath,
		HostKeyPolicy:  TrustOnFirstUse,
		Timeout:        5 * time.Second,
	})
	require.NoError(t, err)

	_, err = config.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = config.Close() })

	return config, server
}

func TestExecuteCommandOverSSH(t *testing.T) {
	config, server := connectToFakeVM(t, testutil.FakeVM{})

	output, err := config.ExecuteCommand(context.Background(), "echo ✅ SSH connection successful")
	require.NoError(t, err)
	assert.Equal(t, "✅ SSH connection successful", output)
	assert.Equal(t, []string{"echo ✅ SSH connection successful"}, server.Commands())
}

func TestExecuteCommandNonZeroExit(t *testing.T) {
	config, _ := connectToFakeVM(t, testutil.FakeVM{})

	_, err := config.ExecuteCommand(context.Background(), "frobnicate")
	var sshErr *SSHError
	require.ErrorAs(t, err, &sshErr)
	assert.Equal(t, "frobnicate", sshErr.Cmd)
	assert.Contains(t, sshErr.Output, "not found")
	assert.EqualError(t, sshErr.Err, "exit status 127")
}

func TestRunCommandReportsExitStatus(t *testing.T) {
	config, _ := connectToFakeVM(t, testutil.FakeVM{})

	result, err := config.RunCommand(context.Background(), "frobnicate")
	require.NoError(t, err)
	assert.Equal(t, 127, result.ExitStatus)
}

func TestServiceQueries(t *testing.T) {
	config, server := connectToFakeVM(t, testutil.FakeVM{Services: map[string]testutil.FakeService{
		"ssh":     {Running: true, Enabled: true},
		"cron":    {Running: true, Enabled: false},
		"nginx":   {Running: false, Enabled: true},
		"stopped": {},
	}})
	ctx := context.Background()

	tests := []struct {
		service string
		running bool
		enabled bool
	}{
		{"ssh", true, true},
		{"cron", true, false},
		{"nginx", false, true},
		{"stopped", false, false},
		{"missing", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			running, err := config.IsServiceActive(ctx, tt.service)
			require.NoError(t, err)
			assert.Equal(t, tt.running, running)

			enabled, err := config.IsServiceEnabled(ctx, tt.service)
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, enabled)
		})
	}

	assert.Contains(t, server.Commands(), "systemctl is-active ssh")
	assert.Contains(t, server.Commands(), "systemctl is-enabled ssh")
}

func TestServiceQueryRejectsBadName(t *testing.T) {
	config, server := connectToFakeVM(t, testutil.FakeVM{})

	_, err := config.IsServiceActive(context.Background(), "ssh; reboot")
	assert.ErrorIs(t, err, ErrInvalidServiceName)
	assert.Empty(t, server.Commands())
}

func TestValidateServiceName(t *testing.T) {
	for _, name := range []string{"ssh", "sshd.service", "getty@tty1", "systemd-journald", "dbus-org.freedesktop.login1"} {
		assert.NoError(t, ValidateServiceName(name), name)
	}
	for _, name := range []string{"", "-h", "ssh reboot", "a;b", "$(id)", "a\\x2d", "../x"} {
		assert.ErrorIs(t, ValidateServiceName(name), ErrInvalidServiceName, name)
	}
}

func TestWrongKeyIsRejected(t *testing.T) {
	authorized := testutil.Ed25519KeyPair(t)
	other := testutil.Ed25519KeyPair(t)
	server := testutil.NewSSHServer(t, authorized.PublicKey, testutil.FakeVM{}.Handle)

	config, err := NewSSHConfig(Options{
		Host:           server.Host(),
		Port:           server.Port(),
		User:           "root",
		PrivateKeyPath: other.PrivateKeyPath,
		HostKeyPolicy:  InsecureIgnore,
		Timeout:        5 * time.Second,
	})
	require.NoError(t, err)

	_, err = config.Connect(context.Background())
	assert.ErrorContains(t, err, "unable to authenticate")
	assert.Zero(t, server.Connections())
}

func TestConnectUnreachableHost(t *testing.T) {
	key := testutil.Ed25519KeyPair(t)

	config, err := NewSSHConfig(Options{
		Host:           "127.0.0.1",
		Port:           closedPort(t),
		User:           "root",
		PrivateKeyPath: key.PrivateKeyPath,
		HostKeyPolicy:  InsecureIgnore,
		Timeout:        time.Second,
	})
	require.NoError(t, err)

	_, err = config.Connect(context.Background())
	assert.ErrorContains(t, err, "failed to connect to SSH server")
	assert.Nil(t, config.SSHClient)
}

func TestWaitForSSH(t *testing.T) {
	origInitial := SSHWaitInitialInterval
	SSHWaitInitialInterval = 10 * time.Millisecond
	t.Cleanup(func() { SSHWaitInitialInterval = origInitial })

	t.Run("succeeds when server is up", func(t *testing.T) {
		key := testutil.Ed25519KeyPair(t)
		server := testutil.NewSSHServer(t, key.PublicKey, testutil.FakeVM{}.Handle)

		config, err := NewSSHConfig(Options{
			Host: server.Host(), Port: server.Port(), User: "root",
			PrivateKeyPath: key.PrivateKeyPath, HostKeyPolicy: InsecureIgnore, Timeout: time.Second,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = config.Close() })

		require.NoError(t, config.WaitForSSH(context.Background(), 5*time.Second))
		assert.NotNil(t, config.SSHClient)
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		key := testutil.Ed25519KeyPair(t)
		config, err := NewSSHConfig(Options{
			Host: "127.0.0.1", Port: closedPort(t), User: "root",
			PrivateKeyPath: key.PrivateKeyPath, HostKeyPolicy: InsecureIgnore, Timeout: time.Second,
		})
		require.NoError(t, err)

		err = config.WaitForSSH(context.Background(), 200*time.Millisecond)
		assert.ErrorContains(t, err, "not reachable after")
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		key := testutil.Ed25519KeyPair(t)
		config, err := NewSSHConfig(Options{
			Host: "127.0.0.1", Port: closedPort(t), User: "root",
			PrivateKeyPath: key.PrivateKeyPath, HostKeyPolicy: InsecureIgnore, Timeout: time.Second,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err = config.WaitForSSH(ctx, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// closedPort returns a port on 127.0.0.1 nothing is listening on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}
