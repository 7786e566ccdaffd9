package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// CommandHandler produces the result of an exec request.
type CommandHandler func(cmd string) (stdout, stderr string, exitStatus int)

// SSHServer is a minimal SSH server on 127.0.0.1 that answers exec
// requests with a CommandHandler. Only public key auth is accepted.
type SSHServer struct {
	HostSigner ssh.Signer

	listener net.Listener
	config   *ssh.ServerConfig
	handler  CommandHandler

	mu          sync.Mutex
	conns       map[net.Conn]struct{}
	commands    []string
	connections int
	wg          sync.WaitGroup
}

// NewSSHServer starts a server that authorizes only the given key. It is
// shut down when tb finishes.
func NewSSHServer(tb testing.TB, authorized ssh.PublicKey, handler CommandHandler) *SSHServer {
	tb.Helper()

	hostKey := Ed25519KeyPair(tb)
	s := &SSHServer{
		HostSigner: hostKey.Signer,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
	s.config = &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unauthorized key")
		},
	}
	s.config.AddHostKey(hostKey.Signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to listen: %v", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.serve()
	tb.Cleanup(s.Close)
	return s
}

func (s *SSHServer) Host() string {
	return "127.0.0.1"
}

func (s *SSHServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *SSHServer) Addr() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
}

// Commands returns every command received so far.
func (s *SSHServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.commands...)
}

// Connections returns the number of completed handshakes.
func (s *SSHServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

func (s *SSHServer) Close() {
	_ = s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *SSHServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func (s *SSHServer) handleConn(conn net.Conn) {
	defer conn.Close()

	serverConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}
	defer serverConn.Close()

	s.mu.Lock()
	s.connections++
	s.mu.Unlock()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(channel, requests)
	}
}

func (s *SSHServer) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, payload.Command)
		s.mu.Unlock()

		stdout, stderr, status := s.handler(payload.Command)
		_, _ = channel.Write([]byte(stdout))
		_, _ = channel.Stderr().Write([]byte(stderr))
		_, _ = channel.SendRequest("exit-status", false,
			ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
		return
	}
}

// FakeService is the systemd state reported by FakeVM.
type FakeService struct {
	Running bool
	Enabled bool
}

// FakeVM answers `echo ...` and `systemctl is-active|is-enabled <unit>`
// the way a shell on a systemd host would.
type FakeVM struct {
	Services map[string]FakeService
}

func (vm FakeVM) Handle(cmd string) (string, string, int) {
	if rest, ok := strings.CutPrefix(cmd, "echo "); ok {
		return rest + "\n", "", 0
	}

	fields := strings.Fields(cmd)
	if len(fields) == 3 && fields[0] == "systemctl" {
		svc, known := vm.Services[fields[2]]
		switch fields[1] {
		case "is-active":
			if svc.Running {
				return "active\n", "", 0
			}
			if !known {
				return "inactive\n", "", 4
			}
			return "inactive\n", "", 3
		case "is-enabled":
			if svc.Enabled {
				return "enabled\n", "", 0
			}
			if !known {
				return "", fmt.Sprintf("Failed to get unit file state for %s.service: No such file or directory\n", fields[2]), 1
			}
			return "disabled\n", "", 1
		}
	}

	return "", fmt.Sprintf("sh: 1: %s: not found\n", fields0(cmd)), 127
}

func fields0(cmd string) string {
	if f := strings.Fields(cmd); len(f) > 0 {
		return f[0]
	}
	return cmd
}
