// Package smoketest exposes the vmcheck settings to Go test binaries: it
// registers command line flags such as --ssh-key and turns them into the
// values the smoke checks need.
package smoketest

import (
	"context"
	"flag"
	"strings"

	"github.com/spf13/viper"

	"github.com/bacalhau-project/vmcheck/pkg/config"
	"github.com/bacalhau-project/vmcheck/pkg/smoke"
)

const SSHKeyFlag = "ssh-key"

// Options holds the flag values registered by RegisterFlags. Values are
// read after the flag set is parsed.
type Options struct {
	sshKey     *string
	host       *string
	port       *int
	user       *string
	knownHosts *string
	policy     *string
}

// RegisterFlags adds the smoke test flags to fs, or to flag.CommandLine when
// fs is nil. go test parses flag.CommandLine, so flags given after -args
// reach the tests.
func RegisterFlags(fs *flag.FlagSet) *Options {
	if fs == nil {
		fs = flag.CommandLine
	}
	return &Options{
		sshKey:     fs.String(SSHKeyFlag, "", "Path to SSH private key"),
		host:       fs.String("ssh-host", "", "Target host (default "+config.DefaultHost+")"),
		port:       fs.Int("ssh-port", 0, "Target SSH port (default 22)"),
		user:       fs.String("ssh-user", "", "Remote user (default "+config.DefaultUser+")"),
		knownHosts: fs.String("ssh-known-hosts", "", "known_hosts file for host key checks"),
		policy:     fs.String("ssh-host-key-policy", "", "trust-on-first-use, strict or insecure-ignore"),
	}
}

// SSHKey returns the --ssh-key value, or "" when it was not given.
func (o *Options) SSHKey() string {
	return *o.sshKey
}

// Config returns the defaults, overridden by VMCHECK_* environment variables
// and then by any flag that was set.
func (o *Options) Config() (config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setIfNotEmpty(v, config.KeySSHKey, *o.sshKey)
	setIfNotEmpty(v, config.KeyHost, *o.host)
	setIfNotEmpty(v, config.KeyUser, *o.user)
	setIfNotEmpty(v, config.KeyKnownHosts, *o.knownHosts)
	setIfNotEmpty(v, config.KeyHostKeyPolicy, *o.policy)
	if *o.port != 0 {
		v.Set(config.KeyPort, *o.port)
	}

	return config.FromViper(v)
}

// Host connects to the configured VM and returns a service inspector for
// it. The returned func closes the connection.
func (o *Options) Host(ctx context.Context) (smoke.ServiceInspector, func(), error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, nil, err
	}

	sshConfig, err := smoke.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return smoke.NewSSHHost(sshConfig), func() { _ = sshConfig.Close() }, nil
}

func setIfNotEmpty(v *viper.Viper, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
