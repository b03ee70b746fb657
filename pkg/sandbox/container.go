package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
)

// ContainerSandbox manages one project's long-lived Docker container
// (spec §4.2's "Container sandbox"): named yokeflow-<project-slug>,
// project directory bind-mounted at /workspace, memory/CPU caps passed
// as Docker resource flags.
type ContainerSandbox struct {
	projectID   string
	projectSlug string
	hostDir     string
	image       string
	memoryLimit string // e.g. "3g"
	cpuLimit    string // e.g. "2"
	blocklist   *Blocklist
	killGrace   time.Duration

	mu sync.Mutex
}

// ContainerConfig configures a ContainerSandbox.
type ContainerConfig struct {
	ProjectID   string
	ProjectSlug string
	HostDir     string
	Image       string
	MemoryLimit string
	CPULimit    string
	Blocklist   *Blocklist
}

// NewContainerSandbox constructs a ContainerSandbox handle; it does not
// itself create or start the container (see EnsureReady).
func NewContainerSandbox(cfg ContainerConfig) *ContainerSandbox {
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = "3g"
	}
	if cfg.CPULimit == "" {
		cfg.CPULimit = "2"
	}
	return &ContainerSandbox{
		projectID:   cfg.ProjectID,
		projectSlug: cfg.ProjectSlug,
		hostDir:     cfg.HostDir,
		image:       cfg.Image,
		memoryLimit: cfg.MemoryLimit,
		cpuLimit:    cfg.CPULimit,
		blocklist:   cfg.Blocklist,
		killGrace:   2 * time.Second,
	}
}

func (s *ContainerSandbox) ProjectID() string { return s.projectID }

func (s *ContainerSandbox) containerName() string {
	return "yokeflow-" + s.projectSlug
}

// EnsureReady implements spec §4.2's acquire semantics for the
// coding/review path: reuse a running container, start a stopped one, or
// create+setup if missing. fresh forces remove-then-recreate (the
// initializer path).
func (s *ContainerSandbox) EnsureReady(ctx context.Context, fresh bool, setupScript string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.containerName()

	if fresh {
		_ = runDocker(ctx, "rm", "-f", name)
	}

	state, err := inspectState(ctx, name)
	if err != nil {
		return apperrors.Wrap(apperrors.SandboxError, err, "inspect container")
	}

	switch state {
	case "missing":
		if err := s.create(ctx); err != nil {
			return err
		}
		if setupScript != "" {
			if _, err := execDocker(ctx, s.blocklist, name, setupScript, 10*time.Minute, s.killGrace, nil); err != nil {
				return apperrors.Wrap(apperrors.SandboxError, err, "run setup script")
			}
		}
	case "exited":
		if err := runDocker(ctx, "start", name); err != nil {
			return apperrors.Wrap(apperrors.SandboxError, err, "start container")
		}
	case "running":
		// reuse as-is
	default:
		return apperrors.New(apperrors.SandboxError, "unexpected container state %q", state)
	}

	return s.killResidualDevServers(ctx)
}

func (s *ContainerSandbox) create(ctx context.Context) error {
	args := []string{
		"run", "-d",
		"--name", s.containerName(),
		"--memory", s.memoryLimit,
		"--cpus", s.cpuLimit,
		"-v", s.hostDir + ":/workspace",
		"-w", "/workspace",
		s.image,
		"sleep", "infinity",
	}
	if err := runDocker(ctx, args...); err != nil {
		return apperrors.Wrap(apperrors.SandboxError, err, "create container")
	}
	return nil
}

// killResidualDevServers kills any process inside the container matching
// a known dev-server pattern and frees its port, per spec §4.2's acquire
// contract for reused containers.
func (s *ContainerSandbox) killResidualDevServers(ctx context.Context) error {
	out, err := runDockerOutput(ctx, "exec", s.containerName(), "ps", "-eo", "pid,args")
	if err != nil {
		// A fresh container may not have ps output yet or ps may be absent;
		// this is not fatal to acquisition.
		return nil
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid := fields[0]
		cmdline := strings.Join(fields[1:], " ")
		if isDevServerProcess(cmdline) {
			_ = runDocker(ctx, "exec", s.containerName(), "kill", "-9", pid)
		}
	}
	return nil
}

func (s *ContainerSandbox) Execute(ctx context.Context, command string, timeout time.Duration, onOutput func(OutputChunk)) (*ExecResult, error) {
	return execDocker(ctx, s.blocklist, s.containerName(), command, timeout, s.killGrace, onOutput)
}

func (s *ContainerSandbox) ExecuteUnchecked(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	return execDocker(ctx, nil, s.containerName(), command, timeout, s.killGrace, nil)
}

func (s *ContainerSandbox) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := runDocker(ctx, "stop", s.containerName()); err != nil {
		return apperrors.Wrap(apperrors.SandboxError, err, "stop container")
	}
	return nil
}

func (s *ContainerSandbox) Remove(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := runDocker(ctx, "rm", "-f", "-v", s.containerName()); err != nil {
		return apperrors.Wrap(apperrors.SandboxError, err, "remove container")
	}
	return nil
}

func (s *ContainerSandbox) Status(ctx context.Context) (*Status, error) {
	name := s.containerName()
	state, err := inspectState(ctx, name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SandboxError, err, "inspect container")
	}

	status := &Status{}
	switch state {
	case "missing":
		status.State = StateAbsent
		return status, nil
	case "exited":
		status.State = StateStopped
		return status, nil
	}
	status.State = StateRunning

	if startedAt, err := runDockerOutput(ctx, "inspect", "-f", "{{.State.StartedAt}}", name); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(startedAt)); err == nil {
			status.UptimeSeconds = time.Since(t).Seconds()
		}
	}

	if statsJSON, err := runDockerOutput(ctx, "stats", "--no-stream", "--format", "{{json .}}", name); err == nil {
		var stats dockerStats
		if json.Unmarshal([]byte(strings.TrimSpace(statsJSON)), &stats) == nil {
			status.CPUPercent = stats.cpuPercent()
			status.MemoryBytes = stats.memBytes()
		}
	}

	return status, nil
}

type dockerStats struct {
	CPUPerc  string `json:"CPUPerc"`
	MemUsage string `json:"MemUsage"`
}

func (d dockerStats) cpuPercent() float64 {
	v, _ := strconv.ParseFloat(strings.TrimSuffix(d.CPUPerc, "%"), 64)
	return v
}

func (d dockerStats) memBytes() uint64 {
	// MemUsage looks like "120MiB / 3GiB"; only the usage side matters.
	parts := strings.SplitN(d.MemUsage, "/", 2)
	if len(parts) == 0 {
		return 0
	}
	return parseDockerSize(strings.TrimSpace(parts[0]))
}

func parseDockerSize(s string) uint64 {
	units := map[string]uint64{
		"B": 1, "KiB": 1 << 10, "MiB": 1 << 20, "GiB": 1 << 30,
		"KB": 1000, "MB": 1000 * 1000, "GB": 1000 * 1000 * 1000,
	}
	for suffix, mult := range units {
		if strings.HasSuffix(s, suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(s, suffix), 64)
			if err != nil {
				return 0
			}
			return uint64(v * float64(mult))
		}
	}
	return 0
}

func inspectState(ctx context.Context, name string) (string, error) {
	out, err := runDockerOutput(ctx, "inspect", "-f", "{{.State.Status}}", name)
	if err != nil {
		if strings.Contains(err.Error(), "No such") || strings.Contains(out, "No such") {
			return "missing", nil
		}
		return "", err
	}
	status := strings.TrimSpace(out)
	switch status {
	case "running":
		return "running", nil
	case "":
		return "missing", nil
	default:
		return "exited", nil
	}
}

func runDocker(ctx context.Context, args ...string) error {
	_, err := runDockerOutput(ctx, args...)
	return err
}

func runDockerOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("docker %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

// execDocker runs command inside containerName via `docker exec`,
// streaming output and enforcing the blocklist/timeout/kill-grace the
// same way execCommand does for a bare host process.
func execDocker(ctx context.Context, blocklist *Blocklist, containerName, command string, timeout, killGrace time.Duration, onOutput func(OutputChunk)) (*ExecResult, error) {
	if blocklist != nil {
		if blocked := blocklist.Check(command); blocked != nil {
			return nil, apperrors.New(apperrors.BlockedCommand, "%s", blocked.Error())
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "docker", "exec", containerName, "bash", "-c", command)
	cmd.Cancel = func() error {
		_ = runDocker(context.Background(), "exec", containerName, "pkill", "-TERM", "-f", command)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = killGrace

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SandboxError, err, "open stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.SandboxError, err, "open stderr pipe")
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, apperrors.Wrap(apperrors.SandboxError, err, "start docker exec")
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf strings.Builder
	wg.Add(2)
	go streamLines(&wg, stdoutPipe, "stdout", &stdoutBuf, onOutput)
	go streamLines(&wg, stderrPipe, "stderr", &stderrBuf, onOutput)
	wg.Wait()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &ExecResult{
		Stdout:     stdoutBuf.String(),
		Stderr:     stderrBuf.String(),
		DurationMs: duration.Milliseconds(),
	}
	if bg := detectBackgroundServer(command); bg != "" {
		result.BackgroundWarning = "command matches known background server pattern: " + bg
	}

	if waitErr == nil {
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, apperrors.Wrap(apperrors.SandboxError, waitErr, "docker exec")
}
