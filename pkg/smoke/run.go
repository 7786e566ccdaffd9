package smoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bacalhau-project/vmcheck/pkg/config"
	"github.com/bacalhau-project/vmcheck/pkg/logger"
)

// CheckResult is one row of a smoke run.
type CheckResult struct {
	Name     string
	Detail   string
	Duration time.Duration
	Err      error
}

func (r CheckResult) Passed() bool {
	return r.Err == nil
}

// Report collects the results of a smoke run in execution order.
type Report struct {
	Results []CheckResult
}

func (r *Report) add(res CheckResult) {
	r.Results = append(r.Results, res)
}

func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed() {
			n++
		}
	}
	return n
}

// Err joins every failed check, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Run connects once and runs the command check followed by a service check
// for each configured service over the same connection. onStep, when not
// nil, is called with the name of each check before it starts. A failed
// connection is reported as the only result.
func Run(ctx context.Context, cfg config.Config, onStep func(name string)) *Report {
	l := logger.FromContext(ctx)
	report := &Report{}
	step := func(name string) {
		if onStep != nil {
			onStep(name)
		}
	}

	connectName := fmt.Sprintf("connect %s@%s:%d", cfg.User, cfg.Host, cfg.Port)
	step(connectName)
	start := time.Now()
	sshConfig, err := Dial(ctx, cfg)
	report.add(CheckResult{Name: connectName, Duration: time.Since(start), Err: err})
	if err != nil {
		l.Errorf("Connection to %s failed: %v", cfg.Host, err)
		return report
	}
	defer sshConfig.Close()

	commandName := fmt.Sprintf("command %q", cfg.Command)
	step(commandName)
	start = time.Now()
	res, err := VerifyCommandOutput(ctx, sshConfig, cfg.Command, cfg.ExpectedOutput)
	commandResult := CheckResult{Name: commandName, Duration: time.Since(start), Err: err}
	if res != nil {
		commandResult.Detail = res.Output
	}
	report.add(commandResult)

	host := NewSSHHost(sshConfig)
	for _, name := range cfg.Services {
		serviceName := "service " + name
		step(serviceName)
		start = time.Now()
		state, err := CheckService(ctx, host, name)
		report.add(CheckResult{
			Name:     serviceName,
			Detail:   fmt.Sprintf("running=%t enabled=%t", state.Running, state.Enabled),
			Duration: time.Since(start),
			Err:      err,
		})
	}

	l.Infof("Smoke run against %s finished: %d checks, %d failed",
		sshConfig.Address(), len(report.Results), report.Failed())
	return report
}
