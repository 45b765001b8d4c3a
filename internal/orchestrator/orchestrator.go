package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sleuth/internal/bus"
	"sleuth/internal/config"
	"sleuth/internal/logging"
	"sleuth/internal/registry"
	"sleuth/internal/types"
)

// Decision thresholds for the evaluate_findings transition.
const (
	signalStrongThreshold = 0.6
	signalWeakThreshold   = 0.5
	maxIterationsHard     = 5
	exploreIterationCap   = 3
	delegationThreshold   = 3
	maxDelegationDepth    = 2
)

// ExecutionResult is what one coordinate_execution pass returns.
type ExecutionResult struct {
	Findings  []Finding
	Conflicts []types.Contradiction
	Errors    []error
}

// Executor runs one batch of subtasks. A sub-orchestrator satisfies the
// same interface as a plain worker pool; the parent cannot tell them apart.
type Executor interface {
	Execute(ctx context.Context, investigationID string, subtasks []Subtask) (*ExecutionResult, error)
}

// Orchestrator is the planning FSM for one investigation at a time.
type Orchestrator struct {
	decomposer *Decomposer
	executor   Executor
	registry   *registry.Registry
	hub        *bus.Hub
	cfg        config.OrchestratorConfig
	depth      int
}

// New creates an orchestrator. registry and hub may be nil in tests.
func New(decomposer *Decomposer, executor Executor, reg *registry.Registry, hub *bus.Hub, cfg config.OrchestratorConfig) *Orchestrator {
	if cfg.MaxRefinements <= 0 {
		cfg.MaxRefinements = 7
	}
	if cfg.DiminishingReturnsThreshold <= 0 {
		cfg.DiminishingReturnsThreshold = 0.2
	}
	return &Orchestrator{
		decomposer: decomposer,
		executor:   executor,
		registry:   reg,
		hub:        hub,
		cfg:        cfg,
	}
}

// Run drives the FSM to completion. It always reaches synthesis or returns
// an error; the refinement loop is bounded by max_refinements and the hard
// iteration cap.
func (o *Orchestrator) Run(ctx context.Context, investigationID, objective string) (*Report, error) {
	state := NewState(investigationID, objective)
	evaluator := NewEvaluator(objective, o.cfg.Coverage)

	// analyze_objective
	o.progress(state)
	subtasks, err := o.decomposer.Decompose(ctx, objective)
	if err != nil {
		return nil, fmt.Errorf("analyze objective: %w", err)
	}
	state.update(func(s *State) {
		s.Subtasks = subtasks
		s.Phase = PhaseAssignAgents
	})

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// assign_agents
		o.progress(state)
		assigned := o.assign(state.Checkpoint().Subtasks)
		state.update(func(s *State) {
			s.Subtasks = assigned
			s.Phase = PhaseCoordinateExecution
		})

		// coordinate_execution
		o.progress(state)
		result, err := o.executor.Execute(ctx, investigationID, assigned)
		if err != nil {
			return nil, fmt.Errorf("coordinate execution: %w", err)
		}
		for _, execErr := range result.Errors {
			logging.OrchestratorWarn("subtask failure (continuing): %v", execErr)
		}

		// evaluate_findings
		batchSignal := evaluator.SignalStrength(result.Findings)
		novelty := evaluator.Novelty(result.Findings)
		state.update(func(s *State) {
			s.Findings = append(s.Findings, result.Findings...)
			s.Conflicts = append(s.Conflicts, result.Conflicts...)
			s.Signal = batchSignal
			s.Novelty = novelty
			s.Coverage = evaluator.MeasureCoverage(s.Findings)
			s.Phase = PhaseEvaluateFindings
			s.Iterations++
		})
		o.progress(state)

		next := o.decide(state, evaluator)
		if next == PhaseSynthesize {
			break
		}

		// refine_approach / explore both loop back through assignment.
		state.update(func(s *State) {
			s.RefinementCount++
			s.Phase = next
		})
		o.progress(state)

		snapshot := state.Checkpoint()
		refined := o.replan(&snapshot, next)
		state.update(func(s *State) {
			s.Subtasks = refined
			s.Phase = PhaseAssignAgents
		})
	}

	// synthesize_results
	state.update(func(s *State) { s.Phase = PhaseSynthesize })
	o.progress(state)
	report := o.synthesize(state)
	state.update(func(s *State) { s.Phase = PhaseEnd })
	o.progress(state)
	return report, nil
}

// decide applies the evaluate_findings condition table, in order.
func (o *Orchestrator) decide(state *State, evaluator *Evaluator) Phase {
	snapshot := state.Checkpoint()
	coverageMet := evaluator.CoverageMet(snapshot.Coverage)
	diminished := snapshot.Novelty < o.cfg.DiminishingReturnsThreshold && snapshot.Iterations > 1

	switch {
	case snapshot.RefinementCount >= o.cfg.MaxRefinements:
		logging.Orchestrator("refinement budget exhausted (%d), synthesizing", snapshot.RefinementCount)
		return PhaseSynthesize
	case diminished || snapshot.Iterations > maxIterationsHard:
		logging.Orchestrator("diminishing returns (novelty %.2f) or iteration cap, synthesizing", snapshot.Novelty)
		return PhaseSynthesize
	case snapshot.Signal >= signalStrongThreshold && !coverageMet:
		logging.Orchestrator("strong signal %.2f with incomplete coverage, refining", snapshot.Signal)
		return PhaseRefine
	case coverageMet:
		logging.Orchestrator("coverage targets met, synthesizing")
		return PhaseSynthesize
	case snapshot.Signal < signalWeakThreshold && snapshot.Iterations < exploreIterationCap:
		logging.Orchestrator("weak signal %.2f at iteration %d, exploring", snapshot.Signal, snapshot.Iterations)
		return PhaseExplore
	default:
		return PhaseSynthesize
	}
}

// assign orders subtasks by priority and applies hierarchical delegation:
// when three or more agents share a source class and depth allows, the
// class's subtasks are grouped so a scoped sub-orchestrator (or worker
// pool) takes them as a unit.
func (o *Orchestrator) assign(subtasks []Subtask) []Subtask {
	ordered := append([]Subtask(nil), subtasks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	if o.registry == nil || o.depth >= maxDelegationDepth {
		return ordered
	}

	// Group classes with enough agents to delegate; grouped subtasks stay
	// adjacent so the executor can hand the block to one sub-orchestrator.
	byClass := make(map[SourceClass]int)
	for _, class := range []SourceClass{ClassNews, ClassSocial, ClassDocument, ClassWeb} {
		byClass[class] = len(o.registry.FindByCapability(capabilityFor(class)))
	}

	var grouped, rest []Subtask
	for _, st := range ordered {
		if byClass[st.SourceClass] >= delegationThreshold {
			grouped = append(grouped, st)
		} else {
			rest = append(rest, st)
		}
	}
	if len(grouped) > 0 {
		logging.OrchestratorDebug("delegating %d subtasks to scoped sub-orchestrators at depth %d", len(grouped), o.depth+1)
	}
	return append(grouped, rest...)
}

// replan adjusts the plan for the next pass. Refinement re-prioritizes the
// existing subtasks with recency from what came back; exploration rotates
// each subtask to a different source class to try a new angle.
func (o *Orchestrator) replan(snapshot *State, phase Phase) []Subtask {
	latest := map[string]*time.Time{}
	for _, f := range snapshot.Findings {
		if existing, ok := latest[f.SubtaskID]; !ok || (f.PublishedAt != nil && existing != nil && f.PublishedAt.After(*existing)) {
			latest[f.SubtaskID] = f.PublishedAt
		}
	}

	replanned := make([]Subtask, 0, len(snapshot.Subtasks))
	classesSeen := make(map[SourceClass]bool)
	for _, st := range snapshot.Subtasks {
		st.Retries++
		if phase == PhaseExplore {
			st.SourceClass = nextClass(st.SourceClass)
		}

		relevance := tokenOverlap(st.Query, snapshot.Objective)
		recency := ageRecency(latest[st.ID])
		retryPenalty := float64(st.Retries) * 0.25
		if retryPenalty > 1 {
			retryPenalty = 1
		}
		diversity := 0.0
		if !classesSeen[st.SourceClass] {
			diversity = 1.0
		}
		classesSeen[st.SourceClass] = true

		st.Priority = weightRelevance*relevance + weightRecency*recency +
			weightRetry*(1-retryPenalty) + weightDiversity*diversity
		replanned = append(replanned, st)
	}
	return replanned
}

func nextClass(class SourceClass) SourceClass {
	switch class {
	case ClassNews:
		return ClassWeb
	case ClassWeb:
		return ClassDocument
	case ClassDocument:
		return ClassSocial
	default:
		return ClassNews
	}
}

func capabilityFor(class SourceClass) string {
	switch class {
	case ClassNews:
		return registry.CapCrawlNews
	case ClassSocial:
		return registry.CapCrawlReddit
	case ClassDocument:
		return registry.CapCrawlDocument
	default:
		return registry.CapCrawlWeb
	}
}

// synthesize assembles the final report. Conflicts ride along unresolved;
// arbitration already happened (or deliberately did not) in verification.
func (o *Orchestrator) synthesize(state *State) *Report {
	snapshot := state.Checkpoint()
	logging.Orchestrator("synthesis for %s: %d findings, %d conflicts, %d iterations (%d refinements)",
		snapshot.InvestigationID, len(snapshot.Findings), len(snapshot.Conflicts),
		snapshot.Iterations, snapshot.RefinementCount)
	return &Report{
		InvestigationID: snapshot.InvestigationID,
		Objective:       snapshot.Objective,
		Iterations:      snapshot.Iterations,
		RefinementCount: snapshot.RefinementCount,
		Findings:        snapshot.Findings,
		Conflicts:       snapshot.Conflicts,
		Signal:          snapshot.Signal,
		Coverage:        snapshot.Coverage,
		CompletedAt:     time.Now().UTC(),
	}
}

// progress emits a structured progress event for the current phase.
func (o *Orchestrator) progress(state *State) {
	if o.hub == nil {
		return
	}
	snapshot := state.Checkpoint()
	o.hub.Publish(bus.TopicProgress, bus.Message{
		InvestigationID: snapshot.InvestigationID,
		Payload: map[string]interface{}{
			"phase":      string(snapshot.Phase),
			"iteration":  snapshot.Iterations,
			"refinement": snapshot.RefinementCount,
			"findings":   len(snapshot.Findings),
			"signal":     snapshot.Signal,
		},
	})
}
