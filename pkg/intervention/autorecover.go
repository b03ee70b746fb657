package intervention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/events"
)

// autoRecoverTimeout bounds one privileged recovery command (spec §4.2's
// default exec timeout is 120s; recovery commands are expected to be much
// quicker, so a shorter bound keeps a bad fix from blocking resume checks).
const autoRecoverTimeout = 30 * time.Second

// autoRecover attempts exactly one privileged fix for a known blocker kind
// (spec §4.5: "for blocker types with known fixes ... the engine MAY
// attempt the fix once and, on success, set can_auto_resume=true"). It
// runs through Sandbox.ExecuteUnchecked — a path the Tool Surface never
// calls. Once a fix is known and a sandbox manager is configured, it emits
// an intervention_action event, successful or not, per the
// distinct-privileged-path requirement; with no known fix or no sandbox
// manager it returns false without an event.
func (e *Engine) autoRecover(ctx context.Context, kind BlockerKind, matchedText string) bool {
	command, ok := recoveryCommand(kind, matchedText)
	if !ok {
		return false
	}
	if e.sandboxMgr == nil {
		return false
	}

	sb, ok := e.sandboxMgr.Get(e.projectID)
	if !ok {
		e.publishInterventionAction(kind, command, false, "no sandbox acquired for project")
		return false
	}

	result, err := sb.ExecuteUnchecked(ctx, command, autoRecoverTimeout)
	success := err == nil && result != nil && result.ExitCode == 0

	detail := ""
	if err != nil {
		detail = err.Error()
	} else if result != nil {
		detail = fmt.Sprintf("exit_code=%d", result.ExitCode)
	}
	e.publishInterventionAction(kind, command, success, detail)

	if success && e.store != nil {
		if err := e.store.SetPausedSessionAutoResumable(ctx, e.sessionID); err != nil {
			slog.Error("auto-recovery: failed to mark session auto-resumable", "session_id", e.sessionID, "error", err)
		}
	}
	return success
}

// recoveryCommand returns the privileged shell command for a blocker kind,
// or ok=false when the kind has no known fix (spec only names three:
// port-in-use, service-not-running, missing-module; the other three
// built-in critical patterns — database unreachable, schema validation
// failure, missing core dependency — and operator-supplied patterns have
// no safe automatic fix and always require operator intervention).
func recoveryCommand(kind BlockerKind, matchedText string) (string, bool) {
	switch kind {
	case BlockerPortInUse:
		port := extractPort(matchedText)
		if port == "" {
			return "", false
		}
		return fmt.Sprintf("fuser -k %s/tcp 2>/dev/null || (lsof -ti:%s | xargs -r kill -9)", port, port), true
	case BlockerMissingModule:
		// "module not found"/"no module named X" style errors: try the
		// common package managers in turn, accepting whichever succeeds.
		return "npm install 2>/dev/null || pip install -r requirements.txt 2>/dev/null || go mod download", true
	case BlockerServiceNotRunning:
		// Restart whichever dev dependency this project's sandbox image
		// manages as a background service.
		return "service postgresql restart || service redis-server restart", true
	default:
		return "", false
	}
}

func (e *Engine) publishInterventionAction(kind BlockerKind, command string, success bool, detail string) {
	e.mu.Lock()
	bus := e.currentBus
	e.mu.Unlock()
	if bus == nil {
		return
	}
	bus.Publish(e.sessionID, events.KindInterventionAction, map[string]any{
		"blocker_kind": string(kind),
		"command":      command,
		"success":      success,
		"detail":       detail,
	})
}
