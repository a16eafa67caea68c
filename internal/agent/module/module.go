// Package module implements the update-module registry (§4.4): a map from
// a payload type name (e.g. "rootfs-image") to the external executable
// that knows how to stage, install, commit, and roll back that payload.
// This mirrors Mender's own update-module-as-external-program design:
// the registry never links payload-specific logic into the agent itself,
// it only knows how to invoke a module's executable for each lifecycle
// state and interpret its exit code.
package module

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/edgeupdate/agent/internal/agent/agenterrors"
	"github.com/edgeupdate/agent/pkg/executer"
	"github.com/edgeupdate/agent/pkg/log"
)

// Lifecycle state names passed as argv[1] to a module's executable,
// matching Mender's update module protocol.
const (
	StateDownload         = "Download"
	StateArtifactInstall  = "ArtifactInstall"
	StateArtifactCommit   = "ArtifactCommit"
	StateArtifactRollback = "ArtifactRollback"
	StateArtifactFailure  = "ArtifactFailure"
)

// Module describes a registered payload type. The five lifecycle states
// are all optional: a module that has nothing to do for a given state is
// expected to exit 0 immediately, but the registry never calls into a
// state the module doesn't support — NeedsReboot and SupportsRollback are
// declared up front so the deployment state machine (C5) can decide
// whether to request a reboot or attempt a rollback without invoking the
// module just to ask.
type Module struct {
	TypeName         string
	ExecutablePath   string
	NeedsReboot      bool
	SupportsRollback bool
}

// Registry owns every registered Module. Registration transfers
// ownership of the Module value; deregistration is not supported while a
// deployment using that type is in flight, so the registry offers no
// Deregister method at all — a module is registered for the lifetime of
// the agent process.
type Registry struct {
	mu         sync.Mutex
	modules    map[string]*Module
	exec       executer.Executer
	stagingDir string
	log        *log.PrefixLogger
}

// NewRegistry returns an empty Registry. stagingDir holds payload data
// staged to disk between DownloadArtifactFlash calls and the module's
// Download invocation; it must already exist.
func NewRegistry(exec executer.Executer, stagingDir string, logger *log.PrefixLogger) *Registry {
	if logger == nil {
		logger = log.NewPrefixLogger("module")
	}
	return &Registry{
		modules:    make(map[string]*Module),
		exec:       exec,
		stagingDir: stagingDir,
		log:        logger,
	}
}

// Register adds m to the registry. It is an error to register two
// modules under the same TypeName, or a Module with an empty TypeName or
// ExecutablePath.
func (r *Registry) Register(m *Module) error {
	if m.TypeName == "" {
		return fmt.Errorf("%w: module type name must not be empty", agenterrors.ErrFailure)
	}
	if m.ExecutablePath == "" {
		return fmt.Errorf("%w: module %q has no executable path", agenterrors.ErrFailure, m.TypeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[m.TypeName]; exists {
		return fmt.Errorf("%w: module %q already registered", agenterrors.ErrFailure, m.TypeName)
	}
	r.modules[m.TypeName] = m
	return nil
}

// Get returns the module registered for typeName, if any.
func (r *Registry) Get(typeName string) (*Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[typeName]
	return m, ok
}

// Handle is per-payload transient state the registry holds open while the
// artifact parser (C3) dispatches chunks for a single data/####.tar
// entry. The parser borrows the handle for the duration of one payload
// file; the registry owns it.
type Handle struct {
	registry *Registry
	module   *Module
	file     *os.File
	written  int64
}

// BeginPayload opens a Handle for a new payload file of the given type,
// staging its bytes to a temporary file under the registry's staging
// directory so the registry never holds a whole payload in memory.
// Returns agenterrors.ErrUnsupported if no module is registered for
// typeName.
func (r *Registry) BeginPayload(typeName string) (*Handle, error) {
	m, ok := r.Get(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: no update module registered for payload type %q", agenterrors.ErrUnsupported, typeName)
	}

	f, err := os.CreateTemp(r.stagingDir, "payload-*.bin")
	if err != nil {
		return nil, fmt.Errorf("staging payload file: %w", err)
	}
	return &Handle{registry: r, module: m, file: f}, nil
}

// DownloadArtifactFlash appends chunk to the staged payload file. offset
// must equal the number of bytes already written, enforcing the ordering
// guarantee the parser promises (§5: data-received events, and therefore
// these calls, arrive in byte order).
func (h *Handle) DownloadArtifactFlash(chunk []byte, offset, total int64, filename string) error {
	if offset != h.written {
		return fmt.Errorf("%w: out-of-order chunk for %q: got offset %d, expected %d", agenterrors.ErrFailure, filename, offset, h.written)
	}
	n, err := h.file.Write(chunk)
	if err != nil {
		return fmt.Errorf("writing staged payload: %w", err)
	}
	h.written += int64(n)
	return nil
}

// EndOfPayload closes the staged file and invokes the module's Download
// state with the staged file's path, then removes the staged file
// regardless of outcome.
func (h *Handle) EndOfPayload(ctx context.Context) error {
	path := h.file.Name()
	defer os.Remove(path)

	if err := h.file.Close(); err != nil {
		return fmt.Errorf("closing staged payload: %w", err)
	}
	return h.registry.invoke(ctx, h.module, StateDownload, path)
}

func (r *Registry) invoke(ctx context.Context, m *Module, state string, args ...string) error {
	allArgs := append([]string{state}, args...)
	stdout, stderr, exitCode := r.exec.ExecuteWithContext(ctx, m.ExecutablePath, allArgs...)
	logger := r.log.WithField("module", m.TypeName).WithField("state", state)
	if exitCode != 0 {
		logger.Errorf("module exited %d: stdout=%q stderr=%q", exitCode, stdout, stderr)
		return fmt.Errorf("%w: module %q state %s exited %d: %s", agenterrors.ErrFailure, m.TypeName, state, exitCode, stderr)
	}
	logger.Debugf("module succeeded")
	return nil
}

// ArtifactInstall invokes typeName's ArtifactInstall state.
func (r *Registry) ArtifactInstall(ctx context.Context, typeName string) error {
	m, ok := r.Get(typeName)
	if !ok {
		return fmt.Errorf("%w: no update module registered for payload type %q", agenterrors.ErrUnsupported, typeName)
	}
	return r.invoke(ctx, m, StateArtifactInstall)
}

// ArtifactCommit invokes typeName's ArtifactCommit state, called from
// POST_REBOOT_VERIFYING after a successful reboot.
func (r *Registry) ArtifactCommit(ctx context.Context, typeName string) error {
	m, ok := r.Get(typeName)
	if !ok {
		return fmt.Errorf("%w: no update module registered for payload type %q", agenterrors.ErrUnsupported, typeName)
	}
	return r.invoke(ctx, m, StateArtifactCommit)
}

// ArtifactRollback invokes typeName's ArtifactRollback state. Callers
// should only call this when the module's SupportsRollback is true.
func (r *Registry) ArtifactRollback(ctx context.Context, typeName string) error {
	m, ok := r.Get(typeName)
	if !ok {
		return fmt.Errorf("%w: no update module registered for payload type %q", agenterrors.ErrUnsupported, typeName)
	}
	if !m.SupportsRollback {
		return fmt.Errorf("%w: module %q does not support rollback", agenterrors.ErrUnsupported, typeName)
	}
	return r.invoke(ctx, m, StateArtifactRollback)
}

// ArtifactFailure invokes typeName's ArtifactFailure state, best-effort
// cleanup called on any deployment failure regardless of how far the
// deployment progressed.
func (r *Registry) ArtifactFailure(ctx context.Context, typeName string) error {
	m, ok := r.Get(typeName)
	if !ok {
		return fmt.Errorf("%w: no update module registered for payload type %q", agenterrors.ErrUnsupported, typeName)
	}
	return r.invoke(ctx, m, StateArtifactFailure)
}
