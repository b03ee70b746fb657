package intervention

import "testing"

func TestClassifyCriticalError_DatabaseUnreachable(t *testing.T) {
	kind, ok := classifyCriticalError("dial tcp 10.0.0.5:5432: connection refused", nil)
	if !ok || kind != BlockerDatabaseUnreachable {
		t.Fatalf("expected database_unreachable, got %v ok=%v", kind, ok)
	}
}

func TestClassifyCriticalError_PortInUse(t *testing.T) {
	kind, ok := classifyCriticalError("Error: listen EADDRINUSE: address already in use :::3000", nil)
	if !ok || kind != BlockerPortInUse {
		t.Fatalf("expected port_in_use, got %v ok=%v", kind, ok)
	}
}

func TestClassifyCriticalError_MissingModule(t *testing.T) {
	kind, ok := classifyCriticalError("ModuleNotFoundError: No module named 'requests'", nil)
	if !ok || kind != BlockerMissingModule {
		t.Fatalf("expected module_not_found, got %v ok=%v", kind, ok)
	}
}

func TestClassifyCriticalError_OrdinaryTextDoesNotMatch(t *testing.T) {
	_, ok := classifyCriticalError("test failed: expected 2 got 3", nil)
	if ok {
		t.Fatalf("expected no match for ordinary test failure text")
	}
}

func TestClassifyCriticalError_AdditionalPatternMatches(t *testing.T) {
	extra := compileAdditionalPatterns([]string{`license server unreachable`})
	kind, ok := classifyCriticalError("license server unreachable, retry later", extra)
	if !ok || kind != BlockerUnknown {
		t.Fatalf("expected operator-supplied pattern to match as unknown kind, got %v ok=%v", kind, ok)
	}
}

func TestExtractPort_FromAddressAlreadyInUse(t *testing.T) {
	if got := extractPort("Error: listen EADDRINUSE: address already in use :::3000"); got != "3000" {
		t.Fatalf("expected port 3000, got %q", got)
	}
}
