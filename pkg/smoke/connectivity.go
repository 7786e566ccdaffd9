// Package smoke implements the checks vmcheck runs against a VM: an SSH
// round trip with an expected output, and systemd service state.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bacalhau-project/vmcheck/pkg/config"
	"github.com/bacalhau-project/vmcheck/pkg/logger"
	"github.com/bacalhau-project/vmcheck/pkg/sshutils"
)

var ErrUnexpectedOutput = errors.New("unexpected command output")

// ConnectivityResult describes one command round trip.
type ConnectivityResult struct {
	Address    string
	Command    string
	Output     string
	ExitStatus int
	Duration   time.Duration
}

// Dial loads the key, then connects once, or keeps retrying until
// cfg.WaitTimeout when cfg.Wait is set. The caller closes the returned
// connection.
func Dial(ctx context.Context, cfg config.Config) (sshutils.SSHConfiger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sshConfig, err := sshutils.NewSSHConfigFunc(cfg.SSHConfig())
	if err != nil {
		return nil, err
	}

	if cfg.Wait {
		err = sshConfig.WaitForSSH(ctx, cfg.WaitTimeout)
	} else {
		_, err = sshConfig.Connect(ctx)
	}
	if err != nil {
		return nil, err
	}
	return sshConfig, nil
}

// CheckConnectivity opens a connection, runs cfg.Command, closes the
// connection and checks the output contains cfg.ExpectedOutput.
func CheckConnectivity(ctx context.Context, cfg config.Config) (*ConnectivityResult, error) {
	sshConfig, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer sshConfig.Close()

	return VerifyCommandOutput(ctx, sshConfig, cfg.Command, cfg.ExpectedOutput)
}

// VerifyCommandOutput runs command on an open connection and checks its
// stdout. The exit status is recorded but does not decide the outcome. When
// the command ran but its output lacks expected, the result is returned
// together with an error wrapping ErrUnexpectedOutput.
func VerifyCommandOutput(
	ctx context.Context,
	sshConfig sshutils.SSHConfiger,
	command, expected string,
) (*ConnectivityResult, error) {
	l := logger.FromContext(ctx)

	start := time.Now()
	res, err := sshConfig.RunCommand(ctx, command)
	if err != nil {
		return nil, err
	}
	output, err := sshutils.DecodeOutput(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode output of %q: %w", command, err)
	}

	result := &ConnectivityResult{
		Address:    sshConfig.Address(),
		Command:    command,
		Output:     output,
		ExitStatus: res.ExitStatus,
		Duration:   time.Since(start),
	}
	l.Debugf("Command %q on %s exited %d with %q in %s",
		command, result.Address, result.ExitStatus, output, result.Duration)

	if !strings.Contains(output, expected) {
		return result, fmt.Errorf("%w: expected %q in %q", ErrUnexpectedOutput, expected, output)
	}
	return result, nil
}
