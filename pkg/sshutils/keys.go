package sshutils

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// LoadPrivateKey reads and parses the private key at path. Any format
// ssh.ParsePrivateKey understands is accepted, PEM encoded RSA included.
func LoadPrivateKey(path string) (ssh.Signer, error) {
	if path == "" {
		return nil, ErrPrivateKeyPathEmpty
	}

	privateKeyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	return ParsePrivateKey(privateKeyBytes)
}

func ParsePrivateKey(material []byte) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey(material)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("private key is passphrase protected: %w", err)
		}
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}
