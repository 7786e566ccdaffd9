package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/bacalhau-project/vmcheck/internal/testutil"
	"github.com/bacalhau-project/vmcheck/pkg/logger"
	"github.com/bacalhau-project/vmcheck/pkg/smoke"
	"github.com/bacalhau-project/vmcheck/pkg/sshutils"
)

func ExecuteCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	defer func() {
		if r := recover(); r != nil {
			logger.Get().Errorf("Panic occurred: %v", r)
			logger.Sync()
			err = fmt.Errorf("panic occurred: %v", r)
		}
	}()

	_, err = root.ExecuteC()

	logger.Sync()

	return buf.String(), err
}

// isolate points HOME at an empty directory so no user config is read.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	return home
}

// fakeVMArgs starts an in-process SSH server and returns the flags that
// point vmcheck at it.
func fakeVMArgs(t *testing.T, vm testutil.FakeVM) []string {
	t.Helper()
	key := testutil.Ed25519KeyPair(t)
	server := testutil.NewSSHServer(t, key.PublicKey, vm.Handle)
	return []string{
		"--ssh-key", key.PrivateKeyPath,
		"--host", server.Host(),
		"--port", strconv.Itoa(server.Port()),
		"--log-level", "error",
	}
}

func TestConfigCommandDefaults(t *testing.T) {
	isolate(t)

	output, err := ExecuteCommand(NewRootCmd(), "config")
	require.NoError(t, err)
	assert.Contains(t, output, "host: 192.168.1.250")
	assert.Contains(t, output, "port: 22")
	assert.Contains(t, output, "user: root")
	assert.Contains(t, output, "host_key_policy: trust-on-first-use")
	assert.Contains(t, output, "timeout: 10s")
	assert.Contains(t, output, "- ssh")
}

func TestConfigCommandLayering(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".vmcheck.yaml"), []byte(`
host: 10.0.0.7
user: admin
ssh_key: ~/.ssh/lab
`), 0600))
	t.Setenv("VMCHECK_USER", "envuser")

	output, err := ExecuteCommand(NewRootCmd(), "config", "--host", "10.0.0.8")
	require.NoError(t, err)
	assert.Contains(t, output, "host: 10.0.0.8")
	assert.Contains(t, output, "user: envuser")
	assert.Contains(t, output, "ssh_key: "+filepath.Join(home, ".ssh", "lab"))
}

func TestConfigCommandExplicitFile(t *testing.T) {
	isolate(t)
	yamlPath := filepath.Join(t.TempDir(), "vmcheck.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("port: 2222\nhost_key_policy: insecure\n"), 0600))

	output, err := ExecuteCommand(NewRootCmd(), "config", "--config", yamlPath)
	require.NoError(t, err)
	assert.Contains(t, output, "port: 2222")
	assert.Contains(t, output, "host_key_policy: insecure-ignore")
}

func TestConfigCommandMissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := ExecuteCommand(NewRootCmd(), "config", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestConnectCommand(t *testing.T) {
	isolate(t)
	args := append([]string{"connect"}, fakeVMArgs(t, testutil.FakeVM{})...)

	output, err := ExecuteCommand(NewRootCmd(), args...)
	require.NoError(t, err)
	assert.Contains(t, output, "root@127.0.0.1:")
	assert.Contains(t, output, "✅ SSH connection successful")
}

func TestConnectCommandUnexpectedOutput(t *testing.T) {
	isolate(t)
	args := append([]string{"connect", "--expect", "hello"}, fakeVMArgs(t, testutil.FakeVM{})...)

	_, err := ExecuteCommand(NewRootCmd(), args...)
	assert.ErrorIs(t, err, smoke.ErrUnexpectedOutput)
}

func TestConnectCommandWithoutKey(t *testing.T) {
	isolate(t)

	_, err := ExecuteCommand(NewRootCmd(), "connect", "--log-level", "error")
	assert.ErrorIs(t, err, sshutils.ErrPrivateKeyPathEmpty)
}

func TestScriptCommand(t *testing.T) {
	isolate(t)
	key := testutil.Ed25519KeyPair(t)
	server := testutil.NewSSHServer(t, key.PublicKey, testutil.FakeVM{}.Handle)

	output, err := ExecuteCommand(NewRootCmd(), "script", key.PrivateKeyPath,
		"--host", server.Host(), "--port", strconv.Itoa(server.Port()), "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "✅ SSH connection successful\n", output)
}

func TestScriptCommandPrintsOutputBeforeFailing(t *testing.T) {
	isolate(t)
	key := testutil.Ed25519KeyPair(t)
	server := testutil.NewSSHServer(t, key.PublicKey, testutil.FakeVM{}.Handle)

	output, err := ExecuteCommand(NewRootCmd(), "script", key.PrivateKeyPath,
		"--host", server.Host(), "--port", strconv.Itoa(server.Port()),
		"--command", "echo something else", "--log-level", "error")
	assert.ErrorIs(t, err, smoke.ErrUnexpectedOutput)
	assert.Equal(t, "something else\n", output)
}

func TestScriptCommandArgs(t *testing.T) {
	isolate(t)

	_, err := ExecuteCommand(NewRootCmd(), "script")
	assert.ErrorContains(t, err, "accepts 1 arg(s), received 0")

	_, err = ExecuteCommand(NewRootCmd(), "script", "a", "b")
	assert.ErrorContains(t, err, "accepts 1 arg(s), received 2")
}

func TestScriptCommandMissingKey(t *testing.T) {
	isolate(t)

	_, err := ExecuteCommand(NewRootCmd(), "script", filepath.Join(t.TempDir(), "id_rsa"), "--log-level", "error")
	assert.ErrorContains(t, err, "failed to read private key")
}

func TestServiceCommand(t *testing.T) {
	isolate(t)
	vm := testutil.FakeVM{Services: map[string]testutil.FakeService{
		"ssh":  {Running: true, Enabled: true},
		"cron": {Running: false, Enabled: true},
	}}
	args := fakeVMArgs(t, vm)

	output, err := ExecuteCommand(NewRootCmd(), append([]string{"service"}, args...)...)
	require.NoError(t, err)
	assert.Equal(t, "ssh: running=true enabled=true\n", output)

	output, err = ExecuteCommand(NewRootCmd(), append([]string{"service", "ssh", "cron"}, args...)...)
	assert.ErrorIs(t, err, smoke.ErrServiceNotRunning)
	assert.Contains(t, output, "cron: running=false enabled=true")
}

func TestRunCommand(t *testing.T) {
	isolate(t)
	vm := testutil.FakeVM{Services: map[string]testutil.FakeService{
		"ssh": {Running: true, Enabled: true},
	}}
	args := append([]string{"run", "--services", "ssh,cron"}, fakeVMArgs(t, vm)...)

	output, err := ExecuteCommand(NewRootCmd(), args...)
	assert.ErrorIs(t, err, smoke.ErrServiceNotEnabled)
	assert.Contains(t, output, "PASS")
	assert.Contains(t, output, "FAIL")
	assert.Contains(t, output, "service cron")
	assert.Contains(t, output, "4 checks, 1 failed")
}

func TestRunCommandWithProgress(t *testing.T) {
	isolate(t)
	args := append([]string{"run", "--progress"}, fakeVMArgs(t, testutil.FakeVM{Services: map[string]testutil.FakeService{
		"ssh": {Running: true, Enabled: true},
	}})...)

	output, err := ExecuteCommand(NewRootCmd(), args...)
	require.NoError(t, err)
	assert.Contains(t, output, "3 checks, 0 failed")
}

func TestVersionFlag(t *testing.T) {
	isolate(t)

	output, err := ExecuteCommand(NewRootCmd(), "--version")
	require.NoError(t, err)
	assert.Contains(t, output, VersionNumber)
}

func TestBindFlagsUnknownFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("host", "", "")

	err := bindFlags(viper.New(), flags, map[string]string{"port": "port"})
	assert.EqualError(t, err, "flag port for key port is not defined")

	v := viper.New()
	require.NoError(t, bindFlags(v, flags, map[string]string{"host": "host"}))
	require.NoError(t, flags.Set("host", "10.9.8.7"))
	assert.Equal(t, "10.9.8.7", v.GetString("host"))
}

func TestScriptCommandPrintsOutputOnNonZeroExit(t *testing.T) {
	isolate(t)
	key := testutil.Ed25519KeyPair(t)
	server := testutil.NewSSHServer(t, key.PublicKey, func(string) (string, string, int) {
		return "✅ SSH connection successful\n", "", 1
	})

	output, err := ExecuteCommand(NewRootCmd(), "script", key.PrivateKeyPath,
		"--host", server.Host(), "--port", strconv.Itoa(server.Port()), "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "✅ SSH connection successful\n", output)
}

func TestVerboseEnablesDebugLogging(t *testing.T) {
	isolate(t)
	t.Cleanup(func() { logger.SetGlobalLogger(logger.NewNopLogger()) })

	_, err := ExecuteCommand(NewRootCmd(), "config", "--log-level", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Get().Core().Enabled(zapcore.DebugLevel))

	_, err = ExecuteCommand(NewRootCmd(), "config", "--log-level", "warn", "--verbose")
	require.NoError(t, err)
	assert.True(t, logger.Get().Core().Enabled(zapcore.DebugLevel))
}
