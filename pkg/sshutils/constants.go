package sshutils

import "time"

var (
	DefaultSSHPort = 22
	SSHDialTimeout = 10 * time.Second

	// Backoff bounds used by WaitForSSH
	SSHWaitInitialInterval = 2 * time.Second
	SSHWaitMaxInterval     = 20 * time.Second
)
