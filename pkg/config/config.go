// Package config holds the settings shared by the vmcheck commands and the
// smoke test suite, and knows how to read them from viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/bacalhau-project/vmcheck/pkg/sshutils"
)

const (
	DefaultHost           = "192.168.1.250"
	DefaultPort           = 22
	DefaultUser           = "root"
	DefaultCommand        = "echo ✅ SSH connection successful"
	DefaultExpectedOutput = "✅ SSH connection successful"
	DefaultService        = "ssh"
	DefaultTimeout        = 10 * time.Second
	DefaultWaitTimeout    = 2 * time.Minute
	EnvPrefix             = "VMCHECK"
)

// Viper keys
const (
	KeyHost           = "host"
	KeyPort           = "port"
	KeyUser           = "user"
	KeySSHKey         = "ssh_key"
	KeyHostKeyPolicy  = "host_key_policy"
	KeyKnownHosts     = "known_hosts"
	KeyTimeout        = "timeout"
	KeyCommand        = "command"
	KeyExpectedOutput = "expect"
	KeyServices       = "services"
	KeyWait           = "wait"
	KeyWaitTimeout    = "wait_timeout"
	KeyLogLevel       = "log.level"
	KeyLogFile        = "log.file_path"
	KeyLogFormat      = "log.format"
)

// Config describes the target VM and the checks run against it.
type Config struct {
	Host           string                 `yaml:"host"`
	Port           int                    `yaml:"port"`
	User           string                 `yaml:"user"`
	SSHKeyPath     string                 `yaml:"ssh_key"`
	HostKeyPolicy  sshutils.HostKeyPolicy `yaml:"host_key_policy"`
	KnownHostsPath string                 `yaml:"known_hosts"`
	Timeout        time.Duration          `yaml:"timeout"`

	Command        string   `yaml:"command"`
	ExpectedOutput string   `yaml:"expect"`
	Services       []string `yaml:"services"`

	Wait        bool          `yaml:"wait"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// Default returns the settings for the lab VM.
func Default() Config {
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		User:           DefaultUser,
		HostKeyPolicy:  sshutils.TrustOnFirstUse,
		Timeout:        DefaultTimeout,
		Command:        DefaultCommand,
		ExpectedOutput: DefaultExpectedOutput,
		Services:       []string{DefaultService},
		WaitTimeout:    DefaultWaitTimeout,
	}
}

// SetDefaults registers Default() on v so unset keys resolve to it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyHost, d.Host)
	v.SetDefault(KeyPort, d.Port)
	v.SetDefault(KeyUser, d.User)
	v.SetDefault(KeySSHKey, "")
	v.SetDefault(KeyHostKeyPolicy, d.HostKeyPolicy.String())
	v.SetDefault(KeyKnownHosts, "")
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyCommand, d.Command)
	v.SetDefault(KeyExpectedOutput, d.ExpectedOutput)
	v.SetDefault(KeyServices, d.Services)
	v.SetDefault(KeyWait, d.Wait)
	v.SetDefault(KeyWaitTimeout, d.WaitTimeout)
	v.SetDefault(KeyLogLevel, "info")
}

// FromViper reads a Config out of v. Paths are expanded but not checked for
// existence; a missing key file is reported when it is loaded.
func FromViper(v *viper.Viper) (Config, error) {
	policy, err := sshutils.ParseHostKeyPolicy(v.GetString(KeyHostKeyPolicy))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:           v.GetString(KeyHost),
		Port:           v.GetInt(KeyPort),
		User:           v.GetString(KeyUser),
		SSHKeyPath:     v.GetString(KeySSHKey),
		HostKeyPolicy:  policy,
		KnownHostsPath: v.GetString(KeyKnownHosts),
		Timeout:        v.GetDuration(KeyTimeout),
		Command:        v.GetString(KeyCommand),
		ExpectedOutput: v.GetString(KeyExpectedOutput),
		Services:       v.GetStringSlice(KeyServices),
		Wait:           v.GetBool(KeyWait),
		WaitTimeout:    v.GetDuration(KeyWaitTimeout),
	}

	if err := cfg.ExpandPaths(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ExpandPaths resolves a leading ~ in the key and known_hosts paths.
func (c *Config) ExpandPaths() error {
	var err error
	if c.SSHKeyPath, err = homedir.Expand(c.SSHKeyPath); err != nil {
		return fmt.Errorf("failed to expand ssh key path: %w", err)
	}
	if c.KnownHostsPath, err = homedir.Expand(c.KnownHostsPath); err != nil {
		return fmt.Errorf("failed to expand known_hosts path: %w", err)
	}
	return nil
}

// Validate checks the connection fields. The key path is not required here;
// a missing key is reported when it is loaded.
func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host cannot be empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port number: %d", c.Port))
	}
	if c.User == "" {
		errs = append(errs, errors.New("user cannot be empty"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout cannot be negative: %s", c.Timeout))
	}
	if c.Wait && c.WaitTimeout <= 0 {
		errs = append(errs, errors.New("wait timeout must be positive when waiting is enabled"))
	}
	if c.HostKeyPolicy == sshutils.Strict && c.KnownHostsPath == "" {
		errs = append(errs, errors.New("strict host key policy requires a known_hosts path"))
	}
	return errors.Join(errs...)
}

// SSHConfig converts the connection fields to the sshutils options.
func (c Config) SSHConfig() sshutils.Options {
	return sshutils.Options{
		Host:           c.Host,
		Port:           c.Port,
		User:           c.User,
		PrivateKeyPath: c.SSHKeyPath,
		HostKeyPolicy:  c.HostKeyPolicy,
		KnownHostsPath: c.KnownHostsPath,
		Timeout:        c.Timeout,
	}
}
