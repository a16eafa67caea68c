package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecuter struct {
	command  string
	args     []string
	exitCode int
	stderr   string
}

func (f *fakeExecuter) ExecuteWithContext(_ context.Context, name string, args ...string) (string, string, int) {
	f.command = name
	f.args = args
	return "", f.stderr, f.exitCode
}

func TestLinuxRestartInvokesSystemctlReboot(t *testing.T) {
	exec := &fakeExecuter{}
	l := NewLinux(exec, nil)

	require.NoError(t, l.Restart(context.Background()))
	assert.Equal(t, "systemctl", exec.command)
	assert.Equal(t, []string{"reboot"}, exec.args)
}

func TestLinuxRestartReturnsErrorOnNonZeroExit(t *testing.T) {
	exec := &fakeExecuter{exitCode: 1, stderr: "no such unit"}
	l := NewLinux(exec, nil)

	err := l.Restart(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such unit")
}

func TestLinuxObservabilityHooksNeverFail(t *testing.T) {
	l := NewLinux(&fakeExecuter{}, nil)
	ctx := context.Background()

	assert.NoError(t, l.NetworkConnect(ctx))
	l.NetworkRelease(ctx)
	assert.NoError(t, l.DeploymentStatus(ctx, "d1", "success"))
	l.AuthenticationSuccess(ctx)
	l.AuthenticationFailure(ctx, errors.New("boom"))
}
