package smoke

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bacalhau-project/vmcheck/pkg/sshutils"
)

var (
	ErrServiceNotRunning = errors.New("service is not running")
	ErrServiceNotEnabled = errors.New("service is not enabled")
)

const maxConcurrentServiceChecks = 4

// ServiceState is what a host reports about one service.
type ServiceState struct {
	Name    string
	Running bool
	Enabled bool
}

// ServiceInspector is a handle on a host that can report service state.
type ServiceInspector interface {
	ServiceStatus(ctx context.Context, name string) (ServiceState, error)
}

// SSHHost inspects systemd services over an SSH connection.
type SSHHost struct {
	SSH sshutils.SSHConfiger
}

func NewSSHHost(ssh sshutils.SSHConfiger) *SSHHost {
	return &SSHHost{SSH: ssh}
}

func (h *SSHHost) ServiceStatus(ctx context.Context, name string) (ServiceState, error) {
	state := ServiceState{Name: name}

	running, err := h.SSH.IsServiceActive(ctx, name)
	if err != nil {
		return state, err
	}
	enabled, err := h.SSH.IsServiceEnabled(ctx, name)
	if err != nil {
		return state, err
	}

	state.Running = running
	state.Enabled = enabled
	return state, nil
}

// CheckService passes when the service is both running and enabled. The
// error names every condition that failed.
func CheckService(ctx context.Context, host ServiceInspector, name string) (ServiceState, error) {
	state, err := host.ServiceStatus(ctx, name)
	if err != nil {
		return state, fmt.Errorf("failed to get status of service %s: %w", name, err)
	}

	var errs []error
	if !state.Running {
		errs = append(errs, fmt.Errorf("%w: %s", ErrServiceNotRunning, name))
	}
	if !state.Enabled {
		errs = append(errs, fmt.Errorf("%w: %s", ErrServiceNotEnabled, name))
	}
	return state, errors.Join(errs...)
}

// CheckServices runs CheckService for each name concurrently and joins the
// failures. States are returned in the order of names.
func CheckServices(ctx context.Context, host ServiceInspector, names ...string) ([]ServiceState, error) {
	states := make([]ServiceState, len(names))
	errs := make([]error, len(names))

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentServiceChecks)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			states[i], errs[i] = CheckService(ctx, host, name)
			return nil
		})
	}
	_ = g.Wait()

	return states, errors.Join(errs...)
}

var _ ServiceInspector = &SSHHost{}
