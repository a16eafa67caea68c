// Package platform defines the agent's platform-integration hooks (§6):
// the handful of side effects that only the device's own platform layer
// can provide — bringing up/down network access around a work unit,
// rebooting, and observability notifications. The deployment state
// machine calls these at well-defined points; it never touches the
// network interface or the reboot syscall directly.
package platform

//go:generate mockgen -source=platform.go -destination=mock_platform.go -package=platform

import "context"

// Hooks is the platform's side of the agent. A platform that has no
// special network management, e.g. an always-connected device, can use
// NoopHooks for NetworkConnect/NetworkRelease and still implement the
// rest meaningfully.
type Hooks interface {
	// NetworkConnect is called before a work unit that needs the
	// network runs, so a platform with on-demand connectivity (cellular
	// modem power-up, Wi-Fi association) can bring the link up first.
	NetworkConnect(ctx context.Context) error

	// NetworkRelease is called after the work unit completes,
	// regardless of outcome, mirroring NetworkConnect.
	NetworkRelease(ctx context.Context)

	// Restart reboots the device. Called from the deployment state
	// machine after a module reports needs_reboot=true and the reboot
	// has been persisted as pending. Restart is expected not to return
	// on success; the caller fails the deployment if it returns an
	// error, and otherwise returns normally.
	Restart(ctx context.Context) error

	// DeploymentStatus notifies the platform of a status transition for
	// observability (e.g. a status LED, a local log). It is
	// best-effort: the state machine does not fail a deployment because
	// this returns an error, but it does log one.
	DeploymentStatus(ctx context.Context, deploymentID, status string) error

	// AuthenticationSuccess and AuthenticationFailure notify the
	// platform of the outcome of each authentication attempt.
	AuthenticationSuccess(ctx context.Context)
	AuthenticationFailure(ctx context.Context, err error)
}

// NoopHooks implements Hooks with no side effects, suitable for a
// platform with always-on networking and no local observability
// surface to drive.
type NoopHooks struct{}

func (NoopHooks) NetworkConnect(context.Context) error { return nil }
func (NoopHooks) NetworkRelease(context.Context)        {}
func (NoopHooks) Restart(context.Context) error         { return nil }

func (NoopHooks) DeploymentStatus(context.Context, string, string) error {
	return nil
}

func (NoopHooks) AuthenticationSuccess(context.Context)        {}
func (NoopHooks) AuthenticationFailure(context.Context, error) {}
