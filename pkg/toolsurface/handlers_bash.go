package toolsurface

import (
	"context"
	"encoding/json"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
	"github.com/innerline/yokeflow2-sub000/pkg/sandbox"
)

const defaultExecTimeout = 120 * time.Second

type bashParams struct {
	Command    string `json:"command"`
	TimeoutSec int    `json:"timeout"`
	Background bool   `json:"background"`
}

type bashResult struct {
	ExitCode          int    `json:"exit_code"`
	Stdout            string `json:"stdout"`
	Stderr            string `json:"stderr"`
	DurationMs        int64  `json:"duration_ms"`
	BackgroundWarning string `json:"background_warning,omitempty"`
}

// handleBash implements spec §4.3's bash(command, timeout, background?):
// proxied to the Sandbox Manager (C2) with blocklist enforcement baked
// into every Sandbox implementation. Output is streamed to the caller as
// PartialFrames as it arrives, with the full buffered output also
// returned in the terminal result for callers that don't care about
// streaming.
func handleBash(ctx context.Context, s *Surface, call Call, raw json.RawMessage, onPartial func(PartialPayload)) (any, error) {
	var p bashParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Command == "" {
		return nil, apperrors.New(apperrors.Validation, "bash requires a command")
	}

	timeout := defaultExecTimeout
	if p.TimeoutSec > 0 {
		timeout = time.Duration(p.TimeoutSec) * time.Second
	}

	sb, ok := s.sandbox.Get(call.ProjectID)
	if !ok {
		return nil, apperrors.New(apperrors.SandboxError, "no sandbox acquired for project %s", call.ProjectID)
	}

	execResult, err := sb.Execute(ctx, p.Command, timeout, func(chunk sandbox.OutputChunk) {
		if onPartial == nil {
			return
		}
		payload := PartialPayload{}
		switch chunk.Stream {
		case "stdout":
			payload.Stdout = chunk.Data
		case "stderr":
			payload.Stderr = chunk.Data
		}
		onPartial(payload)
	})
	if err != nil {
		return nil, err
	}

	return bashResult{
		ExitCode:          execResult.ExitCode,
		Stdout:            execResult.Stdout,
		Stderr:            execResult.Stderr,
		DurationMs:        execResult.DurationMs,
		BackgroundWarning: execResult.BackgroundWarning,
	}, nil
}
