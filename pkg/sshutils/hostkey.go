package sshutils

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
)

// HostKeyPolicy decides whether a server's host key is trusted.
type HostKeyPolicy int

const (
	// TrustOnFirstUse accepts and records a host's first key and rejects a
	// different key afterwards.
	TrustOnFirstUse HostKeyPolicy = iota
	// InsecureIgnore accepts every host key.
	InsecureIgnore
	// Strict only accepts keys already present in known_hosts.
	Strict
)

func (p HostKeyPolicy) String() string {
	switch p {
	case TrustOnFirstUse:
		return "trust-on-first-use"
	case InsecureIgnore:
		return "insecure-ignore"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("HostKeyPolicy(%d)", int(p))
	}
}

// ParseHostKeyPolicy accepts the String() form and a few short aliases.
// An empty string selects TrustOnFirstUse.
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trust-on-first-use", "tofu", "auto-add":
		return TrustOnFirstUse, nil
	case "insecure-ignore", "insecure", "ignore":
		return InsecureIgnore, nil
	case "strict":
		return Strict, nil
	default:
		return TrustOnFirstUse, fmt.Errorf("unknown host key policy %q", s)
	}
}

func (p HostKeyPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *HostKeyPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseHostKeyPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// HostKeyVerifier applies a HostKeyPolicy, optionally backed by a
// known_hosts file.
type HostKeyVerifier struct {
	policy         HostKeyPolicy
	knownHostsPath string
	db             knownhosts.HostKeyCallback

	mu      sync.Mutex
	trusted map[string]ssh.PublicKey
}

// NewHostKeyVerifier prepares a verifier. For TrustOnFirstUse a missing
// known_hosts file is created; for Strict it must already exist.
func NewHostKeyVerifier(policy HostKeyPolicy, knownHostsPath string) (*HostKeyVerifier, error) {
	v := &HostKeyVerifier{
		policy:         policy,
		knownHostsPath: knownHostsPath,
		trusted:        make(map[string]ssh.PublicKey),
	}

	switch policy {
	case InsecureIgnore:
		return v, nil
	case Strict:
		if knownHostsPath == "" {
			return nil, fmt.Errorf("strict host key checking requires a known_hosts file")
		}
	case TrustOnFirstUse:
		if knownHostsPath == "" {
			return v, nil
		}
		if err := ensureKnownHostsFile(knownHostsPath); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported host key policy: %s", policy)
	}

	db, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", knownHostsPath, err)
	}
	v.db = db
	return v, nil
}

func (v *HostKeyVerifier) Policy() HostKeyPolicy {
	return v.policy
}

// HostKeyAlgorithms returns the key algorithms already recorded for
// hostWithPort, so negotiation prefers a key we can verify.
func (v *HostKeyVerifier) HostKeyAlgorithms(hostWithPort string) []string {
	if v.db == nil {
		return nil
	}
	return v.db.HostKeyAlgorithms(hostWithPort)
}

// HostKeyCallback returns the ssh.HostKeyCallback implementing the policy.
func (v *HostKeyVerifier) HostKeyCallback() ssh.HostKeyCallback {
	if v.policy == InsecureIgnore {
		return ssh.InsecureIgnoreHostKey() //nolint:gosec
	}
	return v.verify
}

func (v *HostKeyVerifier) verify(hostname string, remote net.Addr, key ssh.PublicKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if seen, ok := v.trusted[hostname]; ok {
		if bytes.Equal(seen.Marshal(), key.Marshal()) {
			return nil
		}
		return fmt.Errorf("%w for %s: got %s", ErrHostKeyMismatch, hostname, ssh.FingerprintSHA256(key))
	}

	if v.db != nil {
		err := v.db(hostname, remote, key)
		switch {
		case err == nil:
			v.trusted[hostname] = key
			return nil
		case knownhosts.IsHostKeyChanged(err):
			return fmt.Errorf("%w for %s: %v", ErrHostKeyMismatch, hostname, err)
		case knownhosts.IsHostUnknown(err) && v.policy == TrustOnFirstUse:
			if err := v.appendKnownHost(hostname, remote, key); err != nil {
				return err
			}
		default:
			return fmt.Errorf("host key verification failed for %s: %w", hostname, err)
		}
	}

	// TrustOnFirstUse, unknown host
	v.trusted[hostname] = key
	return nil
}

func (v *HostKeyVerifier) appendKnownHost(hostname string, remote net.Addr, key ssh.PublicKey) error {
	f, err := os.OpenFile(v.knownHostsPath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts for writing: %w", err)
	}
	defer f.Close()

	if err := knownhosts.WriteKnownHost(f, hostname, remote, key); err != nil {
		return fmt.Errorf("failed to record host key for %s: %w", hostname, err)
	}
	return nil
}

func ensureKnownHostsFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	return f.Close()
}
