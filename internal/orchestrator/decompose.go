package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"sleuth/internal/llm"
	"sleuth/internal/logging"
)

// Subtask priority weights. Relevance dominates; retry history and class
// diversity keep the plan from hammering one angle.
const (
	weightRelevance = 0.4
	weightRecency   = 0.2
	weightRetry     = 0.2
	weightDiversity = 0.2
)

// Decomposer turns an objective into subtasks. The LLM path produces the
// richer plan; the keyword fallback is mandatory so planning works with no
// backend at all.
type Decomposer struct {
	client llm.Client
}

// NewDecomposer creates a decomposer. A nil client selects the keyword
// fallback unconditionally.
func NewDecomposer(client llm.Client) *Decomposer {
	return &Decomposer{client: client}
}

const decomposeSystemPrompt = `You are an OSINT investigation planner. Decompose the objective into
focused search subtasks. Respond with JSON only:
{"subtasks": [{"query": "...", "source_class": "news|social|document|web"}]}
Produce 3 to 8 subtasks covering different source classes and angles.`

type rawSubtask struct {
	Query       string `json:"query"`
	SourceClass string `json:"source_class"`
}

type rawPlan struct {
	Subtasks []rawSubtask `json:"subtasks"`
}

// Decompose produces prioritized subtasks for an objective.
func (d *Decomposer) Decompose(ctx context.Context, objective string) ([]Subtask, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, fmt.Errorf("empty objective")
	}

	if d.client != nil {
		if subtasks, err := d.decomposeLLM(ctx, objective); err == nil && len(subtasks) > 0 {
			return subtasks, nil
		} else if err != nil {
			logging.OrchestratorWarn("LLM decomposition failed, using keyword fallback: %v", err)
		}
	}
	return d.decomposeKeywords(objective), nil
}

func (d *Decomposer) decomposeLLM(ctx context.Context, objective string) ([]Subtask, error) {
	response, err := d.client.CompleteWithSystem(ctx, decomposeSystemPrompt, objective)
	if err != nil {
		return nil, err
	}
	var plan rawPlan
	if err := llm.UnmarshalResponse(response, &plan); err != nil {
		return nil, err
	}

	var subtasks []Subtask
	classesSeen := make(map[SourceClass]bool)
	for _, raw := range plan.Subtasks {
		class, ok := parseSourceClass(raw.SourceClass)
		if !ok || strings.TrimSpace(raw.Query) == "" {
			continue // schema-invalid entry, drop and keep the rest
		}
		subtasks = append(subtasks, Subtask{
			ID:          uuid.New().String()[:8],
			Query:       strings.TrimSpace(raw.Query),
			SourceClass: class,
			Priority:    subtaskPriority(raw.Query, objective, 0, !classesSeen[class]),
		})
		classesSeen[class] = true
	}
	return subtasks, nil
}

// decomposeKeywords is the deterministic fallback: the objective's content
// keywords fanned out across the source classes.
func (d *Decomposer) decomposeKeywords(objective string) []Subtask {
	keywords := objectiveKeywords(objective)
	query := strings.Join(keywords, " ")
	if query == "" {
		query = objective
	}

	classes := []SourceClass{ClassNews, ClassWeb, ClassSocial, ClassDocument}
	subtasks := make([]Subtask, 0, len(classes))
	for i, class := range classes {
		subtasks = append(subtasks, Subtask{
			ID:          uuid.New().String()[:8],
			Query:       query,
			SourceClass: class,
			Priority:    subtaskPriority(query, objective, 0, i == 0),
		})
	}
	logging.OrchestratorDebug("keyword decomposition: %q -> %d subtasks", query, len(subtasks))
	return subtasks
}

// subtaskPriority scores a subtask for queue ordering.
func subtaskPriority(query, objective string, retries int, diverse bool) float64 {
	relevance := tokenOverlap(query, objective)

	// Recency is neutral at plan time; retries have not aged the task yet.
	recency := 1.0
	retryPenalty := float64(retries) * 0.25
	if retryPenalty > 1 {
		retryPenalty = 1
	}
	diversityBonus := 0.0
	if diverse {
		diversityBonus = 1.0
	}

	return weightRelevance*relevance +
		weightRecency*recency +
		weightRetry*(1-retryPenalty) +
		weightDiversity*diversityBonus
}

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

var planStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "into": true,
	"about": true, "investigate": true, "investigation": true, "find": true,
	"determine": true, "whether": true, "what": true, "who": true,
	"how": true, "why": true, "are": true, "was": true, "were": true,
	"has": true, "have": true, "their": true, "this": true, "that": true,
	"from": true, "any": true, "all": true, "recent": true,
}

// objectiveKeywords extracts the content-bearing words of an objective.
func objectiveKeywords(objective string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, word := range wordPattern.FindAllString(strings.ToLower(objective), -1) {
		if len(word) < 3 || planStopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == 8 {
			break
		}
	}
	return keywords
}

// tokenOverlap is the fraction of a's tokens present in b.
func tokenOverlap(a, b string) float64 {
	aTokens := wordPattern.FindAllString(strings.ToLower(a), -1)
	if len(aTokens) == 0 {
		return 0
	}
	bSet := make(map[string]bool)
	for _, token := range wordPattern.FindAllString(strings.ToLower(b), -1) {
		bSet[token] = true
	}
	matched := 0
	for _, token := range aTokens {
		if bSet[token] {
			matched++
		}
	}
	return float64(matched) / float64(len(aTokens))
}

func parseSourceClass(s string) (SourceClass, bool) {
	switch SourceClass(strings.ToLower(strings.TrimSpace(s))) {
	case ClassNews:
		return ClassNews, true
	case ClassSocial:
		return ClassSocial, true
	case ClassDocument:
		return ClassDocument, true
	case ClassWeb:
		return ClassWeb, true
	}
	return "", false
}

// ageRecency converts a finding timestamp into a [0,1] recency weight used
// during re-prioritization of retried subtasks.
func ageRecency(published *time.Time) float64 {
	if published == nil {
		return 0.5
	}
	age := time.Since(*published)
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.5
	default:
		return 0.2
	}
}
