package platform

import (
	"context"
	"fmt"

	"github.com/edgeupdate/agent/pkg/executer"
	"github.com/edgeupdate/agent/pkg/log"
)

const systemctlCommand = "systemctl"

// Linux implements Hooks for an always-connected Linux device: reboot goes
// through systemctl, network bring-up/release are no-ops, and
// observability hooks log through the agent's own logger rather than
// driving a status LED or similar hardware surface this package doesn't
// know about.
type Linux struct {
	exec executer.Executer
	log  *log.PrefixLogger
}

// NewLinux returns a Linux Hooks implementation that reboots via exec.
func NewLinux(exec executer.Executer, logger *log.PrefixLogger) *Linux {
	if logger == nil {
		logger = log.NewPrefixLogger("platform")
	}
	return &Linux{exec: exec, log: logger}
}

func (l *Linux) NetworkConnect(context.Context) error { return nil }
func (l *Linux) NetworkRelease(context.Context)        {}

// Restart invokes "systemctl reboot". On success the process is expected
// to be killed by the reboot before this call returns; a nil error with
// the process still running is itself a sign something is wrong.
func (l *Linux) Restart(ctx context.Context) error {
	_, stderr, exitCode := l.exec.ExecuteWithContext(ctx, systemctlCommand, "reboot")
	if exitCode != 0 {
		return fmt.Errorf("systemctl reboot: exit %d: %s", exitCode, stderr)
	}
	return nil
}

func (l *Linux) DeploymentStatus(_ context.Context, deploymentID, status string) error {
	l.log.WithField("deployment_id", deploymentID).Infof("deployment status: %s", status)
	return nil
}

func (l *Linux) AuthenticationSuccess(context.Context) {
	l.log.Debugf("authenticated")
}

func (l *Linux) AuthenticationFailure(_ context.Context, err error) {
	l.log.WithError(err).Warnf("authentication failed")
}

var _ Hooks = (*Linux)(nil)
