// Package planner lowers a diff.ChangeSet into a MigrationPlan: SQL
// statements ordered so that dependencies exist before the things that
// need them, partitioned into the buckets the executor runs differently
// (inside one transaction, outside any transaction, or after the main
// migration has landed).
package planner

import "strings"

// PlanStep is a single logical migration operation, possibly made up of
// several SQL statements that must run in order (SQLite table recreation
// emits several for one logical "modify column").
type PlanStep struct {
	Description string   `json:"description"`
	SQL         []string `json:"sql"`
}

// MigrationPlan is the ordered, bucketed output of planning a ChangeSet.
type MigrationPlan struct {
	SourceHash    string     `json:"source_hash,omitempty"`
	Transactional []PlanStep `json:"transactional"`
	Concurrent    []PlanStep `json:"concurrent,omitempty"`
	Deferred      []PlanStep `json:"deferred,omitempty"`
}

// IsEmpty reports whether the plan has no statements in any bucket.
func (p *MigrationPlan) IsEmpty() bool {
	return len(p.Transactional) == 0 && len(p.Concurrent) == 0 && len(p.Deferred) == 0
}

// StepCount returns the total number of steps across all three buckets.
func (p *MigrationPlan) StepCount() int {
	return len(p.Transactional) + len(p.Concurrent) + len(p.Deferred)
}

// String renders the plan as the ordered concatenation of its three
// buckets, each prefixed by a comment banner, statements terminated with
// a semicolon — the shape a user would paste into psql to preview a run.
func (p *MigrationPlan) String() string {
	var b strings.Builder
	writeBucket(&b, "Transactional", p.Transactional)
	writeBucket(&b, "Concurrent (runs outside a transaction)", p.Concurrent)
	writeBucket(&b, "Deferred (post-migration validation)", p.Deferred)
	return b.String()
}

func writeBucket(b *strings.Builder, title string, steps []PlanStep) {
	if len(steps) == 0 {
		return
	}
	b.WriteString("-- " + title + "\n")
	for _, step := range steps {
		if step.Description != "" {
			b.WriteString("-- " + step.Description + "\n")
		}
		for _, stmt := range step.SQL {
			b.WriteString(strings.TrimRight(stmt, "; \n"))
			b.WriteString(";\n")
		}
	}
	b.WriteString("\n")
}

// ExecutionResult tracks the outcome of executing a plan.
type ExecutionResult struct {
	Success      bool     `json:"success"`
	StepsApplied int      `json:"steps_applied"`
	Errors       []string `json:"errors,omitempty"`
}

// Plan is a single flat sequence of steps, used for one phase of a
// MultiPhasePlan. Unlike MigrationPlan it has no transactional/concurrent/
// deferred buckets: a phase's SQL is small and simple enough to run as one
// ordered sequence, and several phases carry no SQL at all (a code-only
// deploy step).
type Plan struct {
	SourceHash string     `json:"source_hash,omitempty"`
	Steps      []PlanStep `json:"steps"`
}

// MultiPhasePlan is a migration broken into coordinated phases, each
// requiring a code deploy and/or a verification window before the next
// phase can run safely. Used for high-risk changes the base planner would
// otherwise fold into a single Recreate or a breaking ALTER: column
// renames, incompatible type changes, and table drops.
type MultiPhasePlan struct {
	ID          string   `json:"id,omitempty"`
	MultiPhase  bool     `json:"multi_phase"`
	Operation   string   `json:"operation"`
	Description string   `json:"description"`
	Pattern     string   `json:"pattern"`
	TotalPhases int      `json:"total_phases"`
	Phases      []Phase  `json:"phases"`
	SafetyNotes []string `json:"safety_notes"`
	CreatedAt   string   `json:"created_at,omitempty"`
	SchemaPath  string   `json:"schema_path,omitempty"`
}

// Phase is a single step of a MultiPhasePlan: the SQL to run (if any), the
// application code changes that must ship alongside it, and how to verify
// and roll it back before moving to the next phase.
type Phase struct {
	PhaseNumber         int            `json:"phase_number"`
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	RequiresCodeDeploy  bool           `json:"requires_code_deploy"`
	DependsOnPhase      int            `json:"depends_on_phase,omitempty"`
	CodeChangesRequired []string       `json:"code_changes_required,omitempty"`
	Plan                *Plan          `json:"plan"`
	Verification        []string       `json:"verification"`
	Rollback            *PhaseRollback `json:"rollback"`
	EstimatedDuration   string         `json:"estimated_duration,omitempty"`
	LockImpact          string         `json:"lock_impact,omitempty"`
}

// PhaseRollback describes how to undo a single phase.
type PhaseRollback struct {
	Description  string   `json:"description"`
	SQL          []string `json:"sql,omitempty"`
	Note         string   `json:"note,omitempty"`
	Warning      string   `json:"warning,omitempty"`
	RequiresCode bool     `json:"requires_code,omitempty"`
}
