// Package orchestrator plans and drives an investigation: a finite state
// machine that decomposes the objective into subtasks, assigns them to
// registered agents, evaluates what came back, and decides between another
// refinement pass and synthesis. The loop is bounded; it cannot hang.
package orchestrator

import (
	"sync"
	"time"

	"sleuth/internal/types"
)

// Phase names the FSM nodes.
type Phase string

const (
	PhaseAnalyzeObjective    Phase = "analyze_objective"
	PhaseAssignAgents        Phase = "assign_agents"
	PhaseCoordinateExecution Phase = "coordinate_execution"
	PhaseEvaluateFindings    Phase = "evaluate_findings"
	PhaseRefine              Phase = "refine_approach"
	PhaseExplore             Phase = "explore"
	PhaseSynthesize          Phase = "synthesize_results"
	PhaseEnd                 Phase = "end"
)

// SourceClass scopes a subtask to one crawler species.
type SourceClass string

const (
	ClassNews     SourceClass = "news"
	ClassSocial   SourceClass = "social"
	ClassDocument SourceClass = "document"
	ClassWeb      SourceClass = "web"
)

// Subtask is one unit of work handed to an agent.
type Subtask struct {
	ID          string      `json:"id"`
	Query       string      `json:"query"`
	SourceClass SourceClass `json:"source_class"`
	Priority    float64     `json:"priority"`
	Retries     int         `json:"retries"`
}

// Finding is one piece of material an execution pass brought back,
// normalized for evaluation.
type Finding struct {
	SubtaskID   string     `json:"subtask_id"`
	Domain      string     `json:"domain"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Entities    []string   `json:"entities,omitempty"`
	Locations   []string   `json:"locations,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	SourceCred  float64    `json:"source_cred"`
}

// Coverage is the four-dimensional progress metric, each in [0,1].
type Coverage struct {
	SourceDiversity float64 `json:"source_diversity"`
	Geographic      float64 `json:"geographic"`
	Temporal        float64 `json:"temporal"`
	Topic           float64 `json:"topic"`
}

// State is the orchestrator's run state. All mutation goes through the
// owning orchestrator; Checkpoint returns a consistent copy so mid-run
// cancellation never exposes a half-written state.
type State struct {
	mu sync.Mutex

	InvestigationID string
	Objective       string
	Phase           Phase
	Iterations      int
	RefinementCount int

	Subtasks  []Subtask
	Findings  []Finding
	Conflicts []types.Contradiction

	Signal    float64
	Coverage  Coverage
	Novelty   float64
	StartedAt time.Time
}

// NewState initializes a run.
func NewState(investigationID, objective string) *State {
	return &State{
		InvestigationID: investigationID,
		Objective:       objective,
		Phase:           PhaseAnalyzeObjective,
		StartedAt:       time.Now().UTC(),
	}
}

// Checkpoint returns a copy of the state safe to read concurrently with the
// run. Slices are copied; Finding contents are shared read-only.
func (s *State) Checkpoint() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		InvestigationID: s.InvestigationID,
		Objective:       s.Objective,
		Phase:           s.Phase,
		Iterations:      s.Iterations,
		RefinementCount: s.RefinementCount,
		Subtasks:        append([]Subtask(nil), s.Subtasks...),
		Findings:        append([]Finding(nil), s.Findings...),
		Conflicts:       append([]types.Contradiction(nil), s.Conflicts...),
		Signal:          s.Signal,
		Coverage:        s.Coverage,
		Novelty:         s.Novelty,
		StartedAt:       s.StartedAt,
	}
}

// update applies one mutation under the state lock.
func (s *State) update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Report is the synthesis output: everything the run learned, conflicts
// included and unresolved.
type Report struct {
	InvestigationID string                `json:"investigation_id"`
	Objective       string                `json:"objective"`
	Iterations      int                   `json:"iterations"`
	RefinementCount int                   `json:"refinement_count"`
	Findings        []Finding             `json:"findings"`
	Conflicts       []types.Contradiction `json:"conflicts,omitempty"`
	Signal          float64               `json:"signal"`
	Coverage        Coverage              `json:"coverage"`
	CompletedAt     time.Time             `json:"completed_at"`
}
