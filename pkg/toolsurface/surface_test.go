package toolsurface

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/config"
	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
)

func newTestSurface(t *testing.T) (*Surface, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	mgr := sandbox.NewManager(config.SandboxConfig{Type: config.SandboxTypeNone}, t.TempDir(), sandbox.NewBlocklist())
	return New(nil, mgr, bus, nil), bus
}

func TestDispatch_UnknownMethodIsValidationError(t *testing.T) {
	s, _ := newTestSurface(t)
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "not_a_real_method"}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.Validation, apperrors.KindOf(err))
}

func TestDispatch_CreationMethodRejectedOutsideInitializerSession(t *testing.T) {
	s, _ := newTestSurface(t)
	params, _ := json.Marshal(map[string]any{"name": "Auth", "priority": 1})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "create_epic", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.Validation, apperrors.KindOf(err))
}

func TestDispatch_PublishesToolUseAndToolResultEvents(t *testing.T) {
	s, bus := newTestSurface(t)
	_, history := bus.Subscribe("sess-1")
	require.Empty(t, history)

	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "unknown_method"}}
	_, _ = s.Dispatch(context.Background(), call, nil)

	recorded := bus.History("sess-1")
	require.Len(t, recorded, 2)
	assert.Equal(t, events.KindToolUse, recorded[0].Kind)
	assert.Equal(t, events.KindToolResult, recorded[1].Kind)
	assert.Equal(t, true, recorded[1].Data["is_error"])
}

func TestDispatch_BashProxiesToAcquiredSandboxAndStreams(t *testing.T) {
	s, _ := newTestSurface(t)
	mgr := s.sandbox

	_, err := mgr.Acquire(context.Background(), &models.Project{ID: "proj-1", Name: "Demo"}, models.SessionTypeCoding)
	require.NoError(t, err)

	params, _ := json.Marshal(bashParams{Command: "echo hi"})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "bash", Params: params}}

	var partials []PartialPayload
	result, err := s.Dispatch(context.Background(), call, func(p PartialPayload) {
		partials = append(partials, p)
	})
	require.NoError(t, err)

	res, ok := result.(bashResult)
	require.True(t, ok)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi\n", res.Stdout)
	require.Len(t, partials, 1)
	assert.Equal(t, "hi\n", partials[0].Stdout)
}

func TestDispatch_BashRejectsBlockedCommand(t *testing.T) {
	s, _ := newTestSurface(t)
	_, err := s.sandbox.Acquire(context.Background(), &models.Project{ID: "proj-1", Name: "Demo"}, models.SessionTypeCoding)
	require.NoError(t, err)

	params, _ := json.Marshal(bashParams{Command: "sudo reboot"})
	call := Call{SessionID: "sess-1", ProjectID: "proj-1", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "bash", Params: params}}

	_, err = s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.BlockedCommand, apperrors.KindOf(err))
}

func TestDispatch_BashWithoutAcquiredSandboxIsSandboxError(t *testing.T) {
	s, _ := newTestSurface(t)
	params, _ := json.Marshal(bashParams{Command: "echo hi"})
	call := Call{SessionID: "sess-1", ProjectID: "never-acquired", SessionType: models.SessionTypeCoding,
		Request: &Request{ID: "1", Method: "bash", Params: params}}

	_, err := s.Dispatch(context.Background(), call, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.SandboxError, apperrors.KindOf(err))
}

func TestSetQualityGate_InstallsGateConsultedByUpdateTaskStatus(t *testing.T) {
	s, _ := newTestSurface(t)
	gate := &stubGate{err: apperrors.New(apperrors.QualityViolation, "no browser verification")}
	s.SetQualityGate("sess-1", gate)
	assert.Equal(t, gate, s.qualityGate("sess-1"))
	assert.Nil(t, s.qualityGate("other-session"))
}

type stubGate struct {
	err error
}

func (g *stubGate) CheckTaskCompletion(ctx context.Context, projectID string, taskID int) error {
	return g.err
}
