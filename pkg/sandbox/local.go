package sandbox

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
)

// LocalSandbox runs commands directly on the host, unsandboxed — the
// development-only mode spec §4.2 calls "no-sandbox mode". It honors the
// same blocklist, timeout, and background-server detection as
// ContainerSandbox so behavior stays consistent across modes.
type LocalSandbox struct {
	projectID string
	workDir   string
	blocklist *Blocklist
	killGrace time.Duration

	mu    sync.Mutex
	state State
}

// NewLocalSandbox returns a ready LocalSandbox rooted at workDir.
func NewLocalSandbox(projectID, workDir string, blocklist *Blocklist) *LocalSandbox {
	return &LocalSandbox{
		projectID: projectID,
		workDir:   workDir,
		blocklist: blocklist,
		killGrace: 2 * time.Second,
		state:     StateRunning,
	}
}

func (s *LocalSandbox) ProjectID() string { return s.projectID }

func (s *LocalSandbox) Execute(ctx context.Context, command string, timeout time.Duration, onOutput func(OutputChunk)) (*ExecResult, error) {
	return execCommand(ctx, s.blocklist, s.workDir, command, timeout, s.killGrace, onOutput)
}

func (s *LocalSandbox) ExecuteUnchecked(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	return execCommand(ctx, nil, s.workDir, command, timeout, s.killGrace, nil)
}

func (s *LocalSandbox) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateStopped
	return nil
}

func (s *LocalSandbox) Remove(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAbsent
	return nil
}

func (s *LocalSandbox) Status(ctx context.Context) (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Status{State: s.state}, nil
}

// execCommand runs command under a timeout, streaming stdout/stderr to
// onOutput as they arrive, and escalates SIGTERM then SIGKILL (after
// killGrace) if the timeout fires — used by LocalSandbox; ContainerSandbox
// runs its commands through execDocker instead.
func execCommand(ctx context.Context, blocklist *Blocklist, dir, command string, timeout, killGrace time.Duration, onOutput func(OutputChunk)) (*ExecResult, error) {
	if blocklist != nil {
		if blocked := blocklist.Check(command); blocked != nil {
			return nil, apperrors.New(apperrors.BlockedCommand, "%s", blocked.Error())
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = dir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
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
		return nil, apperrors.Wrap(apperrors.SandboxError, err, "start command")
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
		result.ExitCode = 0
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, apperrors.Wrap(apperrors.SandboxError, waitErr, "command execution")
}

func streamLines(wg *sync.WaitGroup, r io.Reader, stream string, buf *strings.Builder, onOutput func(OutputChunk)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text() + "\n"
		buf.WriteString(line)
		if onOutput != nil {
			onOutput(OutputChunk{Stream: stream, Data: line})
		}
	}
}
