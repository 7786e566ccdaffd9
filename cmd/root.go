package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bacalhau-project/vmcheck/pkg/config"
	"github.com/bacalhau-project/vmcheck/pkg/logger"
)

var VersionNumber = "v0.1.0"

const defaultConfigName = ".vmcheck"

// Execute runs the vmcheck command line. It is called by main.main().
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return NewRootCmd().ExecuteContext(ctx)
}

// rootOptions carries state shared by the subcommands of one invocation.
type rootOptions struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "vmcheck",
		Short: "vmcheck runs SSH smoke tests against a virtual machine",
		Long: `vmcheck verifies that a freshly provisioned VM is reachable over SSH,
answers a command with the expected output and runs the expected services.`,
		Version:       VersionNumber,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.initConfig(); err != nil {
				return err
			}
			return opts.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.vmcheck.yaml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	flags.String("ssh-key", "", "Path to SSH private key")
	flags.String("host", d.Host, "Target host")
	flags.Int("port", d.Port, "Target SSH port")
	flags.String("user", d.User, "Remote user")
	flags.String("host-key-policy", d.HostKeyPolicy.String(),
		"Host key policy: trust-on-first-use, strict or insecure-ignore")
	flags.String("known-hosts", "", "known_hosts file (default: remember keys in memory)")
	flags.Duration("timeout", d.Timeout, "Dial and handshake timeout (0 disables)")
	flags.Bool("wait", false, "Retry the connection until --wait-timeout elapses")
	flags.Duration("wait-timeout", d.WaitTimeout, "How long --wait keeps retrying")
	flags.String("command", d.Command, "Command run on the host")
	flags.String("expect", d.ExpectedOutput, "Text the command output must contain")
	flags.StringSlice("services", d.Services, "Services that must be running and enabled")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Also write logs to this file")

	config.SetDefaults(opts.v)
	bindings := map[string]string{
		config.KeySSHKey:         "ssh-key",
		config.KeyHost:           "host",
		config.KeyPort:           "port",
		config.KeyUser:           "user",
		config.KeyHostKeyPolicy:  "host-key-policy",
		config.KeyKnownHosts:     "known-hosts",
		config.KeyTimeout:        "timeout",
		config.KeyCommand:        "command",
		config.KeyExpectedOutput: "expect",
		config.KeyServices:       "services",
		config.KeyWait:           "wait",
		config.KeyWaitTimeout:    "wait-timeout",
		config.KeyLogLevel:       "log-level",
		config.KeyLogFile:        "log-file",
	}
	cobra.CheckErr(bindFlags(opts.v, flags, bindings))

	rootCmd.AddCommand(
		newConnectCmd(opts),
		newScriptCmd(opts),
		newServiceCmd(opts),
		newRunCmd(opts),
		newConfigCmd(opts),
	)
	return rootCmd
}

// bindFlags binds each viper key to the flag of the given name.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("flag %s for key %s is not defined", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// initConfig reads .env, the config file and VMCHECK_* variables.
func (o *rootOptions) initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	o.v.SetEnvPrefix(config.EnvPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	o.v.AutomaticEnv()

	if o.cfgFile != "" {
		path, err := homedir.Expand(o.cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		o.v.SetConfigFile(path)
		if err := o.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("failed to find home directory: %w", err)
	}
	o.v.AddConfigPath(home)
	o.v.SetConfigType("yaml")
	o.v.SetConfigName(defaultConfigName)

	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func (o *rootOptions) initLogger() error {
	level := o.v.GetString(config.KeyLogLevel)
	if o.verbose {
		level = "debug"
	}

	err := logger.Initialize(logger.Config{
		Level:         level,
		FilePath:      o.v.GetString(config.KeyLogFile),
		Format:        o.v.GetString(config.KeyLogFormat),
		EnableConsole: true,
	})
	if err != nil {
		return err
	}

	if used := o.v.ConfigFileUsed(); used != "" {
		logger.Get().Debugf("Using config file: %s", used)
	}
	return nil
}

// loadConfig resolves the effective configuration for one command.
func (o *rootOptions) loadConfig() (config.Config, error) {
	return config.FromViper(o.v)
}

func elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
