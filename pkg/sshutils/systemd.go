package sshutils

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9:_.@-]*$`)

func ValidateServiceName(name string) error {
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidServiceName, name)
	}
	return nil
}

// IsServiceActive reports whether `systemctl is-active` succeeds for the
// unit.
func (c *SSHConfig) IsServiceActive(ctx context.Context, serviceName string) (bool, error) {
	return c.systemctlQuery(ctx, "is-active", serviceName)
}

// IsServiceEnabled reports whether `systemctl is-enabled` succeeds for the
// unit.
func (c *SSHConfig) IsServiceEnabled(ctx context.Context, serviceName string) (bool, error) {
	return c.systemctlQuery(ctx, "is-enabled", serviceName)
}

func (c *SSHConfig) systemctlQuery(ctx context.Context, verb, serviceName string) (bool, error) {
	if err := ValidateServiceName(serviceName); err != nil {
		return false, err
	}

	result, err := c.RunCommand(ctx, fmt.Sprintf("systemctl %s %s", verb, serviceName))
	if err != nil {
		return false, fmt.Errorf("failed to query %s %s: %w", serviceName, verb, err)
	}

	c.Logger.Debugf("systemctl %s %s: %s (exit %d)",
		verb, serviceName, strings.TrimSpace(string(result.Stdout)), result.ExitStatus)
	return result.ExitStatus == 0, nil
}
