package sshutils

import (
	"errors"
	"fmt"
)

var (
	ErrPrivateKeyPathEmpty   = errors.New("private key path is empty")
	ErrNotConnected          = errors.New("SSH client not connected")
	ErrHostKeyMismatch       = errors.New("host key mismatch")
	ErrInvalidServiceName    = errors.New("invalid service name")
	ErrInvalidOutputEncoding = errors.New("command output is not valid UTF-8")
)

// SSHError represents an SSH command execution error with output
type SSHError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *SSHError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("SSH command %q failed: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("SSH command %q failed: %v\nOutput: %s", e.Cmd, e.Err, e.Output)
}

func (e *SSHError) Unwrap() error {
	return e.Err
}
