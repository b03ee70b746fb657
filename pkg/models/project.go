// Package models defines the persistent entities of the engine: Project,
// Epic, Task, Test, Session, PausedSession, Checkpoint, EpicRetest,
// EpicTestFailure, and CompletionReview (spec §3). Entities are plain
// structs; JSON-shaped columns (settings, metadata, metrics, ...) are typed
// where the shape is known and kept as map[string]any only where the
// source of the data is opaque, user-provided configuration.
package models

import (
	"regexp"
	"time"
)

// ProjectNamePattern is the validation rule for Project.Name (spec §3).
var ProjectNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusPaused    ProjectStatus = "paused"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusArchived  ProjectStatus = "archived"
)

// ProjectType distinguishes projects started from nothing vs. an imported
// codebase.
type ProjectType string

const (
	ProjectTypeGreenfield ProjectType = "greenfield"
	ProjectTypeBrownfield ProjectType = "brownfield"
)

// Project is one software project under development (spec §3).
type Project struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	SourceSpec    string         `db:"source_spec" json:"source_spec"`
	Status        ProjectStatus  `db:"status" json:"status"`
	ProjectType   ProjectType    `db:"project_type" json:"project_type"`
	Settings      map[string]any `db:"settings" json:"settings"`
	SourceRevision string        `db:"source_revision" json:"source_revision,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	// EpicsCompletedAtLastRetestTrigger is the completed-epic count last
	// time trigger_epic_retest fired automatically; the Quality Pipeline
	// compares the current count against this baseline to detect that
	// another epic_retesting.trigger_frequency epics have completed
	// since (spec §4.6).
	EpicsCompletedAtLastRetestTrigger int `db:"epics_completed_at_last_retest_trigger" json:"epics_completed_at_last_retest_trigger"`
}

// AllowUntestedTasks reports whether settings permits completing a task
// with zero tests (Open Question 1 in spec §9).
func (p *Project) AllowUntestedTasks() bool {
	if p.Settings == nil {
		return false
	}
	v, ok := p.Settings["allow_untested_tasks"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Progress is the aggregate counters returned by Store.GetProgress (spec §4.1).
type Progress struct {
	TotalEpics     int `db:"total_epics" json:"total_epics"`
	CompletedEpics int `db:"completed_epics" json:"completed_epics"`
	TotalTasks     int `db:"total_tasks" json:"total_tasks"`
	CompletedTasks int `db:"completed_tasks" json:"completed_tasks"`
	TotalTests     int `db:"total_tests" json:"total_tests"`
	PassingTests   int `db:"passing_tests" json:"passing_tests"`
}
