package intervention

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

func newMockEngineStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewFromSQLX(sqlx.NewDb(db, "pgx")), mock
}

func publishToolUse(bus *events.Bus, sessionID, method string, input any) {
	raw, _ := json.Marshal(input)
	bus.Publish(sessionID, events.KindToolUse, map[string]any{
		"tool": method, "request_id": "r", "input": json.RawMessage(raw),
	})
}

func publishFailedToolResult(bus *events.Bus, sessionID, text string) {
	bus.Publish(sessionID, events.KindToolResult, map[string]any{
		"tool": "bash", "request_id": "r", "is_error": true, "text": text,
	})
}

type fakeSandbox struct {
	projectID string
	exitCode  int
	execErr   error
	calls     []string
}

func (f *fakeSandbox) ProjectID() string { return f.projectID }
func (f *fakeSandbox) Execute(ctx context.Context, command string, timeout time.Duration, onOutput func(sandbox.OutputChunk)) (*sandbox.ExecResult, error) {
	return nil, nil
}
func (f *fakeSandbox) ExecuteUnchecked(ctx context.Context, command string, timeout time.Duration) (*sandbox.ExecResult, error) {
	f.calls = append(f.calls, command)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &sandbox.ExecResult{ExitCode: f.exitCode}, nil
}
func (f *fakeSandbox) Stop(ctx context.Context) error   { return nil }
func (f *fakeSandbox) Remove(ctx context.Context) error { return nil }
func (f *fakeSandbox) Status(ctx context.Context) (*sandbox.Status, error) {
	return &sandbox.Status{State: sandbox.StateRunning}, nil
}

type fakeSandboxGetter struct {
	sb *fakeSandbox
}

func (g fakeSandboxGetter) Get(projectID string) (sandbox.Sandbox, bool) {
	if g.sb == nil {
		return nil, false
	}
	return g.sb, true
}

func TestEngine_RetryLimitPausesAfterThreshold(t *testing.T) {
	bus := events.NewBus()
	e := New(nil, nil, config.InterventionConfig{RetryLimit: 2}, "proj-1", "sess-1", nil, nil)

	for i := 0; i < 3; i++ {
		publishToolUse(bus, "sess-1", "bash", map[string]any{"command": "npm test"})
	}
	bus.CloseSession("sess-1")

	outcome, err := e.Run(context.Background(), bus)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Paused || outcome.PauseType != "retry_limit" {
		t.Fatalf("expected retry_limit pause, got %+v", outcome)
	}
}

func TestEngine_RetryLimitNotTriggeredBelowThreshold(t *testing.T) {
	bus := events.NewBus()
	e := New(nil, nil, config.InterventionConfig{RetryLimit: 3}, "proj-1", "sess-1", nil, nil)

	for i := 0; i < 2; i++ {
		publishToolUse(bus, "sess-1", "bash", map[string]any{"command": "npm test"})
	}
	bus.CloseSession("sess-1")

	outcome, err := e.Run(context.Background(), bus)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Paused {
		t.Fatalf("expected no pause below the retry limit, got %+v", outcome)
	}
}

func TestEngine_CriticalErrorPausesAndAttemptsAutoRecovery(t *testing.T) {
	bus := events.NewBus()
	sb := &fakeSandbox{projectID: "proj-1", exitCode: 0}
	e := New(nil, fakeSandboxGetter{sb: sb}, config.InterventionConfig{}, "proj-1", "sess-1", nil, nil)

	publishFailedToolResult(bus, "sess-1", "Error: listen EADDRINUSE: address already in use :::3000")
	bus.CloseSession("sess-1")

	outcome, err := e.Run(context.Background(), bus)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Paused || outcome.PauseType != "critical_error" {
		t.Fatalf("expected critical_error pause, got %+v", outcome)
	}
	if len(sb.calls) != 1 {
		t.Fatalf("expected exactly one auto-recovery command attempted, got %v", sb.calls)
	}
}

func TestEngine_OrdinaryErrorsDoNotPause(t *testing.T) {
	bus := events.NewBus()
	e := New(nil, nil, config.InterventionConfig{}, "proj-1", "sess-1", nil, nil)

	publishFailedToolResult(bus, "sess-1", "assertion failed: expected 2 got 3")
	bus.CloseSession("sess-1")

	outcome, err := e.Run(context.Background(), bus)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Paused {
		t.Fatalf("expected no pause for an ordinary test failure, got %+v", outcome)
	}
}

func TestEngine_CheckTaskCompletion_RejectsUIWithoutBrowserVerification(t *testing.T) {
	db, mock := newMockEngineStore(t)
	e := New(db, nil, config.InterventionConfig{}, "proj-1", "sess-1", nil, nil)

	mock.ExpectQuery("SELECT \\* FROM tests WHERE project_id = \\$1 AND owner_kind = 'task' AND task_id = \\$2").
		WithArgs("proj-1", 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "owner_kind", "epic_id", "task_id", "category", "description",
			"requirements", "passed", "last_error", "execution_time_ms", "retry_count", "verification_notes",
		}))

	taskRows := sqlmock.NewRows([]string{
		"epic_id", "project_id", "task_id", "description", "action", "priority", "done",
		"started_at", "completed_at", "metadata", "started_by_session_id",
	}).AddRow(1, "proj-1", 5, "add login button to the page", "", 1, false, nil, nil, []byte("{}"), "")
	mock.ExpectQuery("SELECT \\* FROM tasks WHERE project_id = \\$1 AND task_id = \\$2").
		WithArgs("proj-1", 5).WillReturnRows(taskRows)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tests").
		WithArgs("proj-1", 5, "browser").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := e.CheckTaskCompletion(context.Background(), "proj-1", 5)
	if err == nil {
		t.Fatalf("expected a quality violation error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestEngine_RequestPauseSetsManualPauseType(t *testing.T) {
	bus := events.NewBus()
	e := New(nil, nil, config.InterventionConfig{}, "proj-1", "sess-1", nil, nil)

	done := make(chan *Outcome, 1)
	go func() {
		outcome, err := e.Run(context.Background(), bus)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		done <- outcome
	}()

	e.RequestPause(context.Background(), "operator requested a manual pause")
	bus.CloseSession("sess-1")

	outcome := <-done
	if !outcome.Paused || outcome.PauseType != "manual" {
		t.Fatalf("expected manual pause, got %+v", outcome)
	}
}
