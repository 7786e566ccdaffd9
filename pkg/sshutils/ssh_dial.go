package sshutils

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

type SSHDialer interface {
	Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (SSHClienter, error)
}

func NewSSHDial() SSHDialer {
	return &SSHDial{}
}

// SSHDial dials over TCP and performs the SSH handshake. Cancelling ctx
// aborts the handshake; config.Timeout bounds both the TCP dial and the
// handshake.
type SSHDial struct{}

func (d *SSHDial) Dial(
	ctx context.Context,
	network, addr string,
	config *ssh.ClientConfig,
) (SSHClienter, error) {
	netDialer := &net.Dialer{Timeout: config.Timeout}
	conn, err := netDialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if !stop() {
		if err == nil {
			_ = clientConn.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}

	_ = conn.SetDeadline(time.Time{})
	return &SSHClientWrapper{Client: ssh.NewClient(clientConn, chans, reqs)}, nil
}
