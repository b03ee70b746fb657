package metrics

import (
	"regexp"
	"strings"
)

// pipeToShellRe flags the classic "curl ... | bash" / "wget ... | sh"
// anti-pattern: piping a remote download straight into a shell instead of
// inspecting it first.
var pipeToShellRe = regexp.MustCompile(`(curl|wget)\b[^|]*\|\s*(sudo\s+)?(ba)?sh\b`)

// fsOnlyCommandRe matches a bash invocation whose first command is a
// filesystem operation (mkdir, rmdir, touch, rm, mv, cp); whatever follows
// it on the line is not inspected. That is the kind of call that exists
// only because the tool surface has no dedicated file-management RPC, so
// every mkdir/rm/mv goes through bash. Flagged as a metric, not rejected: the sandbox has no
// other way to do it.
var fsOnlyCommandRe = regexp.MustCompile(`^\s*(mkdir|rmdir|touch|rm|mv|cp)\s`)

// workspaceAbsPathRe matches an absolute path reference under /etc, /root,
// /usr, /var or /home — a sign the command is reaching outside the project
// checkout. Absolute paths under other top-level directories are not
// flagged.
var workspaceAbsPathRe = regexp.MustCompile(`(^|[\s='"])(/(?:etc|root|usr|var|home)\b)`)

// classifyBashCommand returns the adherence violations, if any, a bash
// command's text exhibits (spec §4.4's enumerated violation set).
func classifyBashCommand(command string) []AdherenceViolation {
	var out []AdherenceViolation
	trimmed := strings.TrimSpace(command)

	if pipeToShellRe.MatchString(trimmed) {
		out = append(out, ViolationWrongBashCommand)
	}
	if workspaceAbsPathRe.MatchString(trimmed) {
		out = append(out, ViolationWorkspacePrefixMissing)
	}
	if fsOnlyCommandRe.MatchString(trimmed) {
		out = append(out, ViolationUsedBashForFilesystem)
	}
	return out
}
