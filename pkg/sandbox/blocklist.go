package sandbox

import (
	"regexp"
	"strings"
)

// BlockedCommandErr is returned (wrapped in an apperrors.Error with Kind
// BlockedCommand by the caller) when a command matches the blocklist.
// Defined here so the matched rule's name can be surfaced in the message.
type BlockedCommandErr struct {
	Rule    string
	Command string
}

func (e *BlockedCommandErr) Error() string {
	return "command blocked by rule " + e.Rule + ": " + e.Command
}

// blockRule is one compiled blocklist entry (spec §6's "additive via
// config" blocklist: destructive filesystem ops at host root, privilege
// escalation, package managers that modify host system, process kill of
// non-dev processes, kernel module operations, user-management commands).
type blockRule struct {
	name    string
	pattern *regexp.Regexp
}

// defaultBlockRules is the built-in blocklist. Matching is applied to the
// whole command string (not tokenized), mirroring how the masking
// package's pre-compiled patterns check against the whole payload before
// doing anything more expensive.
var defaultBlockRules = []blockRule{
	{"rm_root", regexp.MustCompile(`\brm\s+(-[a-zA-Z]*\s+)*-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*\s+/(\s|$)`)},
	{"rm_root_fr", regexp.MustCompile(`\brm\s+(-[a-zA-Z]*\s+)*-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*\s+/(\s|$)`)},
	{"dd_device", regexp.MustCompile(`\bdd\s+.*of=/dev/(sd|nvme|hd)`)},
	{"mkfs", regexp.MustCompile(`\bmkfs(\.\w+)?\b`)},
	{"sudo", regexp.MustCompile(`\bsudo\b`)},
	{"su_root", regexp.MustCompile(`\bsu\s+-?\s*root\b`)},
	{"chmod_setuid_root", regexp.MustCompile(`\bchmod\s+([0-7]*[4-7][0-7]{3}|u\+s)\s+/`)},
	{"system_apt", regexp.MustCompile(`\b(apt|apt-get|dpkg)\s+(install|remove|purge|upgrade)\b`)},
	{"system_yum", regexp.MustCompile(`\b(yum|dnf|rpm)\s+(install|remove|erase|upgrade)\b`)},
	{"system_brew", regexp.MustCompile(`\bbrew\s+(install|uninstall|upgrade)\b.*(--system|/usr/local)`)},
	{"kill_all", regexp.MustCompile(`\b(kill|pkill|killall)\s+(-9\s+)?-?1\b`)},
	{"kexec", regexp.MustCompile(`\b(insmod|rmmod|modprobe|kexec)\b`)},
	{"useradd", regexp.MustCompile(`\b(useradd|userdel|usermod|passwd|groupadd|groupdel)\b`)},
	{"shutdown", regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`)},
	{"fork_bomb", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`)},
}

// backgroundServerPatterns matches known long-running server start
// commands (spec §4.2/§4.2's "Background bash policy"). A command that
// matches one of these, whether or not bash was called with
// background=true, is not blocked: it runs, and its ExecResult carries a
// BackgroundWarning, which reaches the session event stream inside the
// bash call's tool_result. The process is allowed to start (agents
// legitimately smoke-test dev servers) but is not expected to survive the
// sandbox's lifetime.
var backgroundServerPatterns = []blockRule{
	{"npm_dev_server", regexp.MustCompile(`\b(npm|yarn|pnpm)\s+(run\s+)?(dev|start|serve)\b`)},
	{"vite", regexp.MustCompile(`\bvite\b`)},
	{"django_runserver", regexp.MustCompile(`\bmanage\.py\s+runserver\b`)},
	{"flask_run", regexp.MustCompile(`\bflask\s+run\b`)},
	{"rails_server", regexp.MustCompile(`\brails\s+(s|server)\b`)},
	{"go_run_server", regexp.MustCompile(`\bgo\s+run\b.*(main\.go|server)`)},
	{"uvicorn", regexp.MustCompile(`\buvicorn\b`)},
	{"postgres_daemon", regexp.MustCompile(`\b(postgres|pg_ctl)\s+.*-D\b`)},
	{"redis_server", regexp.MustCompile(`\bredis-server\b`)},
	{"mongod", regexp.MustCompile(`\bmongod\b`)},
}

// Blocklist holds the active set of compiled block rules. The built-in
// set is additive: callers extend it via AddRule rather than replacing it.
type Blocklist struct {
	rules []blockRule
}

// NewBlocklist returns a Blocklist seeded with the built-in rules.
func NewBlocklist() *Blocklist {
	rules := make([]blockRule, len(defaultBlockRules))
	copy(rules, defaultBlockRules)
	return &Blocklist{rules: rules}
}

// AddRule appends a caller-supplied rule (config-driven extension,
// spec §6: "Blocklist is additive via config").
func (b *Blocklist) AddRule(name, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	b.rules = append(b.rules, blockRule{name: name, pattern: re})
	return nil
}

// Check returns a *BlockedCommandErr if command matches any rule, nil
// otherwise.
func (b *Blocklist) Check(command string) *BlockedCommandErr {
	for _, r := range b.rules {
		if r.pattern.MatchString(command) {
			return &BlockedCommandErr{Rule: r.name, Command: command}
		}
	}
	return nil
}

// detectBackgroundServer reports the name of the first background-server
// pattern that command matches, or "" if none match.
func detectBackgroundServer(command string) string {
	for _, r := range backgroundServerPatterns {
		if r.pattern.MatchString(command) {
			return r.name
		}
	}
	return ""
}

// devServerProcessNames identifies residual dev-server processes that
// Acquire kills before handing a reused sandbox back to a new session
// (spec §4.2's acquire for coding/review: "kill residual processes of
// known dev-server patterns and free their ports").
var devServerProcessNames = []string{
	"node", "vite", "next-server", "webpack-dev-server",
	"manage.py", "flask", "rails", "uvicorn", "gunicorn",
}

// isDevServerProcess reports whether a ps-style command line belongs to
// a known dev-server process.
func isDevServerProcess(cmdline string) bool {
	for _, name := range devServerProcessNames {
		if strings.Contains(cmdline, name) {
			return true
		}
	}
	return false
}
