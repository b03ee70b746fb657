package intervention

import "regexp"

// BlockerKind classifies a detected blocker by its underlying cause, finer
// grained than models.PauseType: several distinct blocker kinds all pause
// a session with pause_type=critical_error, but only some of them have a
// known auto-recovery fix (spec §4.5's "Auto-recovery").
type BlockerKind string

const (
	BlockerDatabaseUnreachable BlockerKind = "database_unreachable"
	BlockerServiceNotRunning   BlockerKind = "service_not_running"
	BlockerSchemaValidation    BlockerKind = "schema_validation_failure"
	BlockerMissingDependency   BlockerKind = "missing_core_dependency"
	BlockerPortInUse           BlockerKind = "port_in_use"
	BlockerMissingModule       BlockerKind = "module_not_found"
	BlockerUnknown             BlockerKind = "unknown"
)

// criticalPattern is one compiled critical-error rule, checked against the
// whole stderr/tool_result text the same way sandbox.blockRule checks a
// whole command string.
type criticalPattern struct {
	kind    BlockerKind
	pattern *regexp.Regexp
}

// defaultCriticalPatterns is the built-in critical-error table (spec
// §4.5 trigger #2: database unreachable, schema validation failure,
// missing core dependency, port in use for required service, module not
// found for bootstrap).
var defaultCriticalPatterns = []criticalPattern{
	{BlockerServiceNotRunning, regexp.MustCompile(`(?i)(is the server running|econnrefused|service .*(is )?not running|failed to connect to .* service)`)},
	{BlockerDatabaseUnreachable, regexp.MustCompile(`(?i)(connection refused|could not connect to (server|database)|no such host|database .* does not exist|dial tcp.*:(5432|3306|27017|6379))`)},
	{BlockerSchemaValidation, regexp.MustCompile(`(?i)(schema validation failed|migration failed|relation ".*" does not exist|column ".*" does not exist|invalid schema)`)},
	{BlockerMissingDependency, regexp.MustCompile(`(?i)(command not found|executable file not found|no such file or directory.*(bin/|/usr/bin)|cannot find package)`)},
	{BlockerPortInUse, regexp.MustCompile(`(?i)(address already in use|port \d+ is already in use|eaddrinuse)`)},
	{BlockerMissingModule, regexp.MustCompile(`(?i)(module not found|cannot find module|modulenotfounderror|no module named|package .* is not installed)`)},
}

// classifyCriticalError checks text against patterns (built-in plus any
// additional regexes from config), returning the matched BlockerKind and
// whether any pattern matched at all.
func classifyCriticalError(text string, additional []*regexp.Regexp) (BlockerKind, bool) {
	for _, p := range defaultCriticalPatterns {
		if p.pattern.MatchString(text) {
			return p.kind, true
		}
	}
	for _, re := range additional {
		if re.MatchString(text) {
			return BlockerUnknown, true
		}
	}
	return "", false
}

// compileAdditionalPatterns compiles the operator-supplied extension list
// (InterventionConfig.AdditionalCriticalErrorPatterns), skipping any entry
// that fails to compile rather than aborting construction.
func compileAdditionalPatterns(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		if re, err := regexp.Compile(expr); err == nil {
			out = append(out, re)
		}
	}
	return out
}

// portFromPortInUse extracts the offending port number from a matched
// "address already in use" style message, for the auto-recovery command.
var portFromPortInUse = regexp.MustCompile(`(?i)(?:port\s+|:)(\d{2,5})\b`)

func extractPort(text string) string {
	m := portFromPortInUse.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
