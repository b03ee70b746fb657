package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/innerline/yokeflow2-sub000/pkg/events"
	"github.com/innerline/yokeflow2-sub000/pkg/models"
	"github.com/innerline/yokeflow2-sub000/pkg/store"
)

// pendingCall holds a dispatched tool_use's method/input until its
// matching tool_result arrives, keyed by request_id, so Collector can
// correlate a call's parameters with its outcome and duration.
type pendingCall struct {
	method string
	input  json.RawMessage
}

// Collector accumulates spec §4.4's per-session counters from one
// session's event stream and, once the stream closes, computes the final
// quality-scored Summary. One Collector per running session, the way
// ConnectionManager's forwarder goroutine is scoped to one WebSocket
// connection's subscription.
type Collector struct {
	store     *store.Store
	projectID string
	sessionID string

	sessionStart time.Time

	mu sync.Mutex

	toolUseCount   map[string]int
	totalToolCalls int
	totalErrors    int
	cumulativeMs   int64

	pending map[string]pendingCall

	verificationMismatches []VerificationMismatch
	verifiedTaskCount      int
	uiTasksSeen            map[int]bool
	uiTasksWithBrowser     map[int]bool

	fingerprints map[string]*ErrorFingerprintStats
	adherence    map[AdherenceViolation]int
	hourly       map[int]*HourBucket
}

// New constructs a Collector for one session. st is used to resolve task
// kind and test category for verification-mismatch analysis; it may be
// nil in tests that only exercise pure event accumulation.
func New(st *store.Store, projectID, sessionID string) *Collector {
	return &Collector{
		store:              st,
		projectID:          projectID,
		sessionID:          sessionID,
		sessionStart:       time.Now(),
		toolUseCount:       map[string]int{},
		pending:            map[string]pendingCall{},
		uiTasksSeen:        map[int]bool{},
		uiTasksWithBrowser: map[int]bool{},
		fingerprints:       map[string]*ErrorFingerprintStats{},
		adherence:          map[AdherenceViolation]int{},
		hourly:             map[int]*HourBucket{},
	}
}

// Run subscribes to bus for sessionID, replays its history, then consumes
// live events until the stream closes or ctx is cancelled. Returns the
// final Summary and, if st was non-nil, persists it to session.metrics —
// mirroring ConnectionManager.subscribe's replay-then-forward loop, but
// terminating (instead of running forever) once the channel closes.
func (c *Collector) Run(ctx context.Context, bus *events.Bus) (*Summary, error) {
	ch, history := bus.Subscribe(c.sessionID)
	defer bus.Unsubscribe(c.sessionID, ch)

	for _, evt := range history {
		c.handleEvent(ctx, evt)
	}

	for {
		select {
		case <-ctx.Done():
			return c.summary(), ctx.Err()
		case evt, ok := <-ch:
			if !ok {
				summary := c.summary()
				if c.store != nil {
					if err := c.persist(ctx, summary); err != nil {
						return summary, err
					}
				}
				return summary, nil
			}
			c.handleEvent(ctx, evt)
		}
	}
}

func (c *Collector) persist(ctx context.Context, summary *Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err != nil {
		return err
	}
	return c.store.UpdateSessionMetrics(ctx, c.sessionID, asMap)
}

func (c *Collector) handleEvent(ctx context.Context, evt events.Event) {
	switch evt.Kind {
	case events.KindToolUse:
		c.handleToolUse(ctx, evt)
	case events.KindToolResult:
		c.handleToolResult(ctx, evt)
	case events.KindError:
		c.mu.Lock()
		c.totalErrors++
		c.bumpHour(evt.Timestamp, 0, 1)
		c.mu.Unlock()
		if text, ok := evt.Data["message"].(string); ok {
			c.recordFingerprint(text, evt.Timestamp)
		}
	}
}

func (c *Collector) handleToolUse(_ context.Context, evt events.Event) {
	method, _ := evt.Data["tool"].(string)
	requestID, _ := evt.Data["request_id"].(string)
	var input json.RawMessage
	if raw, ok := evt.Data["input"]; ok {
		if rm, ok := raw.(json.RawMessage); ok {
			input = rm
		} else if data, err := json.Marshal(raw); err == nil {
			input = data
		}
	}

	c.mu.Lock()
	c.pending[requestID] = pendingCall{method: method, input: input}
	c.mu.Unlock()

	if method == "bash" {
		var p struct {
			Command string `json:"command"`
		}
		if len(input) > 0 && json.Unmarshal(input, &p) == nil {
			for _, v := range classifyBashCommand(p.Command) {
				c.mu.Lock()
				c.adherence[v]++
				c.mu.Unlock()
			}
		}
	}
}

func (c *Collector) handleToolResult(ctx context.Context, evt events.Event) {
	requestID, _ := evt.Data["request_id"].(string)
	isError, _ := evt.Data["is_error"].(bool)
	var durationMs int64
	switch v := evt.Data["duration_ms"].(type) {
	case int64:
		durationMs = v
	case float64:
		durationMs = int64(v)
	}

	c.mu.Lock()
	call, hadPending := c.pending[requestID]
	delete(c.pending, requestID)
	method, _ := evt.Data["tool"].(string)
	if method == "" {
		method = call.method
	}

	c.totalToolCalls++
	c.toolUseCount[method]++
	c.cumulativeMs += durationMs
	if isError {
		c.totalErrors++
	}
	c.bumpHour(evt.Timestamp, 0, boolToInt(isError))
	c.mu.Unlock()

	if isError {
		if text, ok := evt.Data["text"].(string); ok {
			c.recordFingerprint(text, evt.Timestamp)
		}
	}

	if !hadPending || isError {
		return
	}

	switch method {
	case "start_task":
		c.observeStartTask(ctx, call.input)
	case "update_task_test_result":
		c.observeTaskTestResult(ctx, call.input)
	case "update_task_status":
		c.observeTaskStatus(ctx, call.input, evt.Timestamp)
	}
}

func (c *Collector) observeStartTask(ctx context.Context, input json.RawMessage) {
	if c.store == nil || len(input) == 0 {
		return
	}
	var p struct {
		TaskID int `json:"task_id"`
	}
	if json.Unmarshal(input, &p) != nil {
		return
	}
	task, err := c.store.GetTask(ctx, c.projectID, p.TaskID)
	if err != nil {
		return
	}
	if task.InferredType() == models.TaskKindUI {
		c.mu.Lock()
		c.uiTasksSeen[p.TaskID] = true
		c.mu.Unlock()
	}
}

func (c *Collector) observeTaskTestResult(ctx context.Context, input json.RawMessage) {
	if c.store == nil || len(input) == 0 {
		return
	}
	var p struct {
		TestID int  `json:"test_id"`
		Passed bool `json:"passed"`
	}
	if json.Unmarshal(input, &p) != nil {
		return
	}
	test, err := c.store.GetTest(ctx, p.TestID)
	if err != nil || test.TaskID == nil {
		return
	}
	if test.Category == models.TestCategoryBrowser {
		c.mu.Lock()
		c.uiTasksWithBrowser[*test.TaskID] = true
		c.mu.Unlock()
	}

	task, err := c.store.GetTask(ctx, c.projectID, *test.TaskID)
	if err != nil {
		return
	}
	expected, hasExpectation := task.InferredType().ExpectedTestCategory()
	if !hasExpectation {
		return
	}
	c.mu.Lock()
	c.verifiedTaskCount++
	if expected != test.Category {
		c.verificationMismatches = append(c.verificationMismatches, VerificationMismatch{
			TaskID:           *test.TaskID,
			InferredType:     string(task.InferredType()),
			ExpectedCategory: string(expected),
			UsedCategory:     string(test.Category),
		})
	}
	c.mu.Unlock()
}

func (c *Collector) observeTaskStatus(ctx context.Context, input json.RawMessage, ts time.Time) {
	if len(input) == 0 {
		return
	}
	var p struct {
		TaskID int  `json:"task_id"`
		Done   bool `json:"done"`
	}
	if json.Unmarshal(input, &p) != nil || !p.Done {
		return
	}

	c.mu.Lock()
	c.bumpHour(ts, 1, 0)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	_, total, err := c.store.AllResolvedForTask(ctx, c.projectID, p.TaskID)
	if err == nil && total == 0 {
		c.mu.Lock()
		c.adherence[ViolationSkippedVerification]++
		c.mu.Unlock()
	}
}

// recordFingerprint normalizes text and accumulates it into the error
// fingerprint table (spec §4.4); a fingerprint with count >= 3 within the
// session is a "repeated error".
func (c *Collector) recordFingerprint(text string, ts time.Time) {
	fp := normalizeError(text)
	if fp == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.fingerprints[fp]
	if !ok {
		entry = &ErrorFingerprintStats{Fingerprint: fp, DistinctSessions: 1}
		c.fingerprints[fp] = entry
	}
	entry.Count++
	entry.LastSeenUnixMillis = ts.UnixMilli()
	entry.recoveryAttemptsSum += entry.Count - 1
	entry.AvgRecoveryAttempts = float64(entry.recoveryAttemptsSum) / float64(entry.Count)
}

// bumpHour must be called with c.mu held.
func (c *Collector) bumpHour(ts time.Time, tasksCompleted, errorsObserved int) {
	hour := int(ts.Sub(c.sessionStart).Hours())
	if hour < 0 {
		hour = 0
	}
	b, ok := c.hourly[hour]
	if !ok {
		b = &HourBucket{Hour: hour}
		c.hourly[hour] = b
	}
	b.TasksCompleted += tasksCompleted
	b.ErrorsObserved += errorsObserved
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
