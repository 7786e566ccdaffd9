package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/charmbracelet/keygen"
	"golang.org/x/crypto/ssh"
)

// KeyPair is a generated key whose private half lives on disk.
type KeyPair struct {
	PrivateKeyPath string
	PrivateKey     []byte
	AuthorizedKey  []byte
	Signer         ssh.Signer
	PublicKey      ssh.PublicKey
}

var (
	rsaOnce     sync.Once
	rsaPrivate  []byte
	rsaAuthKey  []byte
	rsaGenError error
)

// RSAKeyPair writes an RSA private key into a temp dir owned by tb. RSA
// generation is slow, so the key material is generated once per test binary.
func RSAKeyPair(tb testing.TB) *KeyPair {
	tb.Helper()
	rsaOnce.Do(func() {
		kp, err := keygen.New("", keygen.WithKeyType(keygen.RSA))
		if err != nil {
			rsaGenError = err
			return
		}
		rsaPrivate = kp.RawPrivateKey()
		rsaAuthKey = kp.RawAuthorizedKey()
	})
	if rsaGenError != nil {
		tb.Fatalf("failed to generate RSA key: %v", rsaGenError)
	}
	return writeKeyPair(tb, "id_rsa", rsaPrivate, rsaAuthKey)
}

// Ed25519KeyPair generates a fresh Ed25519 key pair on disk.
func Ed25519KeyPair(tb testing.TB) *KeyPair {
	tb.Helper()
	kp, err := keygen.New("", keygen.WithKeyType(keygen.Ed25519))
	if err != nil {
		tb.Fatalf("failed to generate ed25519 key: %v", err)
	}
	return writeKeyPair(tb, "id_ed25519", kp.RawPrivateKey(), kp.RawAuthorizedKey())
}

func writeKeyPair(tb testing.TB, name string, private, authorized []byte) *KeyPair {
	tb.Helper()

	signer, err := ssh.ParsePrivateKey(private)
	if err != nil {
		tb.Fatalf("failed to parse generated private key: %v", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(authorized)
	if err != nil {
		tb.Fatalf("failed to parse generated public key: %v", err)
	}

	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, private, 0600); err != nil {
		tb.Fatalf("failed to write private key: %v", err)
	}

	return &KeyPair{
		PrivateKeyPath: path,
		PrivateKey:     private,
		AuthorizedKey:  authorized,
		Signer:         signer,
		PublicKey:      pub,
	}
}
