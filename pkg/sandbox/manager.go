package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// Manager owns the registry of per-project sandboxes and implements
// spec §4.2's acquire/stop/remove/status lifecycle. One Manager instance
// is shared across every project's scheduler.
//
// acquireMu follows the same per-key-mutex pattern as TARSy's
// pkg/mcp/client.go reinitMu: a sync.Map of *sync.Mutex keyed by project
// ID prevents two concurrent Acquire calls for the same project from
// racing to create the container twice (the "thundering herd" problem),
// while Acquire calls for different projects never block each other.
type Manager struct {
	cfg       config.SandboxConfig
	workspace string // host directory under which each project gets its own dir
	blocklist *Blocklist

	mu        sync.RWMutex
	sandboxes map[string]Sandbox // projectID -> sandbox

	acquireMu sync.Map // projectID -> *sync.Mutex
}

// NewManager constructs a Manager. workspaceRoot is the host directory
// each project's files live under (bind-mounted into its container).
func NewManager(cfg config.SandboxConfig, workspaceRoot string, blocklist *Blocklist) *Manager {
	if blocklist == nil {
		blocklist = NewBlocklist()
	}
	return &Manager{
		cfg:       cfg,
		workspace: workspaceRoot,
		blocklist: blocklist,
		sandboxes: make(map[string]Sandbox),
	}
}

func (m *Manager) lockFor(projectID string) *sync.Mutex {
	muI, _ := m.acquireMu.LoadOrStore(projectID, &sync.Mutex{})
	return muI.(*sync.Mutex)
}

// Acquire returns a ready Sandbox for project, implementing spec §4.2's
// per-session-type semantics:
//   - initializer: force a fresh container (remove any existing one first).
//   - coding/review/retest: reuse a running container, restart a stopped
//     one, or create+setup if missing; residual dev-server processes are
//     killed before the sandbox is handed back.
func (m *Manager) Acquire(ctx context.Context, project *models.Project, sessionType models.SessionType) (Sandbox, error) {
	lock := m.lockFor(project.ID)
	lock.Lock()
	defer lock.Unlock()

	hostDir := filepath.Join(m.workspace, project.ID)
	if err := os.MkdirAll(hostDir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.SandboxError, err, "create project workspace directory")
	}

	var sb Sandbox
	switch m.cfg.Type {
	case config.SandboxTypeNone:
		sb = NewLocalSandbox(project.ID, hostDir, m.blocklist)

	case config.SandboxTypeContainer:
		cs := NewContainerSandbox(ContainerConfig{
			ProjectID:   project.ID,
			ProjectSlug: slugify(project.Name),
			HostDir:     hostDir,
			Image:       m.cfg.Image,
			MemoryLimit: m.cfg.MemoryLimit,
			CPULimit:    m.cfg.CPULimit,
			Blocklist:   m.blocklist,
		})
		fresh := sessionType == models.SessionTypeInitializer
		if err := cs.EnsureReady(ctx, fresh, setupScriptFor(m.cfg.Image)); err != nil {
			return nil, err
		}
		sb = cs

	default:
		return nil, apperrors.New(apperrors.Validation, "unknown sandbox type %q", m.cfg.Type)
	}

	m.mu.Lock()
	m.sandboxes[project.ID] = sb
	m.mu.Unlock()

	return sb, nil
}

// Stop implements spec §4.2's stop(sandbox): halts but does not remove,
// so a later Acquire can reuse it. Called by the orchestrator when a
// project is marked completed.
func (m *Manager) Stop(ctx context.Context, projectID string) error {
	sb, ok := m.get(projectID)
	if !ok {
		return nil
	}
	return sb.Stop(ctx)
}

// Remove implements spec §4.2's remove(sandbox): force-removes the
// container and volumes. Called before deleting a project's DB rows.
func (m *Manager) Remove(ctx context.Context, projectID string) error {
	sb, ok := m.get(projectID)
	if !ok {
		return nil
	}
	if err := sb.Remove(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sandboxes, projectID)
	m.mu.Unlock()
	return nil
}

// Status reports projectID's current sandbox status (spec §4.2).
func (m *Manager) Status(ctx context.Context, projectID string) (*Status, error) {
	sb, ok := m.get(projectID)
	if !ok {
		return &Status{State: StateAbsent}, nil
	}
	return sb.Status(ctx)
}

func (m *Manager) get(projectID string) (Sandbox, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, ok := m.sandboxes[projectID]
	return sb, ok
}

// Get returns the sandbox already acquired for projectID, if any. Used by
// the Tool Surface's bash handler, which proxies into whatever sandbox the
// orchestrator acquired at session start rather than acquiring one itself.
func (m *Manager) Get(projectID string) (Sandbox, bool) {
	return m.get(projectID)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// slugify derives a Docker-safe container-name suffix from a project name.
func slugify(name string) string {
	s := strings.ToLower(name)
	s = slugPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "project"
	}
	return s
}

// setupScriptFor returns the toolchain-install script run once when a
// fresh container is created: empty when no image is configured, and the
// no-op "true" for any configured image.
func setupScriptFor(image string) string {
	if image == "" {
		return ""
	}
	return "true" // images are expected to be pre-provisioned; hook kept for custom images that need bootstrapping
}
