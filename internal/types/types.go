// Package types defines the shared data model for investigations: articles
// produced by crawlers, facts produced by extraction, classifications
// produced by the sifting engine, and verification results.
//
// Every record is investigation-scoped: investigation_id participates in the
// primary key of every store. Records are immutable after save except
// FactClassification, which the verifier mutates under an audit trail.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every persisted fact. Readers must refuse an
// unknown major component; minor bumps are additive.
const SchemaVersion = "1.0.0"

// SourceType identifies the class of a content source.
type SourceType string

const (
	SourceRSS      SourceType = "rss"
	SourceAPI      SourceType = "api"
	SourceReddit   SourceType = "reddit"
	SourceDocument SourceType = "document"
	SourceWeb      SourceType = "web"
)

// Source describes where an article came from.
type Source struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type SourceType `json:"type"`
}

// ArticleMetadata carries crawl-time signals attached by the crawler cohort.
type ArticleMetadata struct {
	SourceType          SourceType `json:"source_type"`
	AuthorityLevel      int        `json:"authority_level"` // 1..5
	TopicSpecialization string     `json:"topic_specialization,omitempty"`
	RetrievedAt         time.Time  `json:"retrieved_at"`
}

// Article is a normalized unit of fetched content. Immutable after save.
// (investigation_id, url) is unique within an investigation; the same URL may
// recur across investigations.
type Article struct {
	InvestigationID string          `json:"investigation_id"`
	URL             string          `json:"url"` // canonical form, see sources.Normalize
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	PublishedDate   *time.Time      `json:"published_date,omitempty"`
	Authors         []string        `json:"authors,omitempty"`
	Source          Source          `json:"source"`
	Metadata        ArticleMetadata `json:"metadata"`
}

// AssertionType distinguishes how a claim is asserted.
type AssertionType string

const (
	AssertionStatement  AssertionType = "statement"
	AssertionDenial     AssertionType = "denial"
	AssertionPrediction AssertionType = "prediction"
	AssertionPlanned    AssertionType = "planned"
)

// Claim is the assertion a fact carries. Text may contain inline entity and
// temporal markers of the form [E1:Putin] and [T1:2024-03-01].
type Claim struct {
	Text          string        `json:"text"`
	AssertionType AssertionType `json:"assertion_type"`
	ClaimType     string        `json:"claim_type"` // event, state, prediction, ...
	Asserter      string        `json:"asserter,omitempty"`
}

// EntityType classifies extracted entities.
type EntityType string

const (
	EntityPerson          EntityType = "PERSON"
	EntityOrganization    EntityType = "ORGANIZATION"
	EntityLocation        EntityType = "LOCATION"
	EntityAnonymousSource EntityType = "ANONYMOUS_SOURCE"
)

// Entity is a participant referenced by a claim's inline markers.
type Entity struct {
	ID        string     `json:"id"` // E1, E2, ... continuous across chunks
	Text      string     `json:"text"`
	Type      EntityType `json:"type"`
	Canonical string     `json:"canonical,omitempty"`
	ClusterID string     `json:"cluster_id,omitempty"`
}

// TemporalPrecision describes how the temporal value was obtained.
type TemporalPrecision string

const (
	TemporalExplicit TemporalPrecision = "explicit"
	TemporalInferred TemporalPrecision = "inferred"
	TemporalUnknown  TemporalPrecision = "unknown"
)

// Temporal anchors a claim in time.
type Temporal struct {
	ID                string            `json:"id"` // T1, T2, ...
	Value             string            `json:"value"`
	Precision         string            `json:"precision"` // day, month, year
	TemporalPrecision TemporalPrecision `json:"temporal_precision"`
}

// SourceClassification ranks provenance directness.
type SourceClassification string

const (
	SourcePrimary   SourceClassification = "primary"
	SourceSecondary SourceClassification = "secondary"
	SourceTertiary  SourceClassification = "tertiary"
)

// AttributedSource records one additional provenance accumulated on a
// canonical fact by variant consolidation.
type AttributedSource struct {
	SourceID       string               `json:"source_id"`
	SourceType     SourceType           `json:"source_type"`
	Classification SourceClassification `json:"source_classification"`
	FactID         string               `json:"fact_id,omitempty"` // variant this came from
}

// Provenance traces a claim back through its attribution chain.
// HopCount is the chain length; 0 means eyewitness/primary.
type Provenance struct {
	SourceID          string               `json:"source_id"`
	Quote             string               `json:"quote,omitempty"`
	Offsets           []int                `json:"offsets,omitempty"`
	AttributionChain  []string             `json:"attribution_chain,omitempty"`
	HopCount          int                  `json:"hop_count"`
	SourceType        SourceType           `json:"source_type"`
	Classification    SourceClassification `json:"source_classification"`
	AdditionalSources []AttributedSource   `json:"additional_sources,omitempty"`
}

// Quality holds the two orthogonal extraction scores. They are never combined
// into a single number: confidence says "the text asserts this", clarity says
// "the assertion itself is specific".
type Quality struct {
	ExtractionConfidence float64 `json:"extraction_confidence"` // [0,1]
	ClaimClarity         float64 `json:"claim_clarity"`         // [0,1]
	ExtractionTrace      string  `json:"extraction_trace,omitempty"`
}

// ExtractionType marks whether a fact is stated or inferred.
type ExtractionType string

const (
	ExtractionExplicit ExtractionType = "explicit"
	ExtractionInferred ExtractionType = "inferred"
)

// ExtractionInfo records how and when a fact was extracted.
type ExtractionInfo struct {
	ExtractedAt  time.Time      `json:"extracted_at"`
	ModelVersion string         `json:"model_version"`
	Type         ExtractionType `json:"extraction_type"`
}

// RelationType classifies inter-fact relationships.
type RelationType string

const (
	RelationSupports         RelationType = "supports"
	RelationContradicts      RelationType = "contradicts"
	RelationTemporalSequence RelationType = "temporal_sequence"
)

// Relationship links a fact to another fact.
type Relationship struct {
	Type         RelationType `json:"type"`
	TargetFactID string       `json:"target_fact_id"`
	Confidence   float64      `json:"confidence"`
}

// ExtractedFact is a single subject-predicate-object assertion extracted from
// source text. Immutable once the consolidator has made it canonical or
// linked it as a variant.
type ExtractedFact struct {
	FactID          string         `json:"fact_id"`
	InvestigationID string         `json:"investigation_id"`
	SchemaVersion   string         `json:"schema_version"`
	ContentHash     string         `json:"content_hash"` // SHA-256 of Claim.Text
	Claim           Claim          `json:"claim"`
	Entities        []Entity       `json:"entities,omitempty"`
	Temporal        *Temporal      `json:"temporal,omitempty"`
	Provenance      Provenance     `json:"provenance"`
	Quality         Quality        `json:"quality"`
	Extraction      ExtractionInfo `json:"extraction"`
	Relationships   []Relationship `json:"relationships,omitempty"`
	Variants        []string       `json:"variants,omitempty"` // fact IDs sharing ContentHash
}

// HashClaim computes the canonical content hash for a claim text.
// The hash must be reproducible from the claim text alone.
func HashClaim(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewFactID returns a fresh fact identifier.
func NewFactID() string {
	return uuid.New().String()
}

// SealHash recomputes and stamps the content hash from the claim text.
func (f *ExtractedFact) SealHash() {
	f.ContentHash = HashClaim(f.Claim.Text)
}

// ImpactTier ranks a fact's significance for the investigation.
type ImpactTier string

const (
	TierCritical     ImpactTier = "critical"
	TierLessCritical ImpactTier = "less_critical"
)

// DubiousFlag names one species of the dubious taxonomy.
type DubiousFlag string

const (
	FlagPhantom DubiousFlag = "phantom" // echo without a primary root
	FlagFog     DubiousFlag = "fog"     // vague claim or vague attribution
	FlagAnomaly DubiousFlag = "anomaly" // contradicted by another trusted fact
	FlagNoise   DubiousFlag = "noise"   // known-unreliable source
)

// VerificationStatus is the reclassifier state machine's state for a fact.
type VerificationStatus string

const (
	StatusPending      VerificationStatus = "pending"
	StatusInProgress   VerificationStatus = "in_progress"
	StatusConfirmed    VerificationStatus = "confirmed"
	StatusRefuted      VerificationStatus = "refuted"
	StatusUnverifiable VerificationStatus = "unverifiable"
	StatusSuperseded   VerificationStatus = "superseded"
)

// FlagReasoning explains why one dubious gate fired.
type FlagReasoning struct {
	TriggerValues map[string]float64 `json:"trigger_values,omitempty"`
	Explanation   string             `json:"explanation"`
}

// CredibilityBreakdown decomposes the credibility formula so the score is
// auditable.
type CredibilityBreakdown struct {
	SourceCred     float64            `json:"source_cred"`
	Proximity      float64            `json:"proximity"`
	Precision      float64            `json:"precision"`
	RootScore      float64            `json:"root_score"`
	EchoSum        float64            `json:"echo_sum"`
	EchoBonus      float64            `json:"echo_bonus"`
	UniqueRoots    int                `json:"unique_roots"`
	CircularReport bool               `json:"circular_report"`
	PerSource      map[string]float64 `json:"per_source,omitempty"`
}

// HistoryEntry is one append-only audit record of a classification change.
type HistoryEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	PreviousState string    `json:"previous_state"`
	Trigger       string    `json:"trigger"`
}

// ContradictionType labels how two facts disagree.
type ContradictionType string

const (
	ContradictionNegation    ContradictionType = "negation"
	ContradictionAttribution ContradictionType = "attribution"
	ContradictionNumeric     ContradictionType = "numeric"
	ContradictionTemporal    ContradictionType = "temporal"
)

// Contradiction records one detected disagreement between two facts.
type Contradiction struct {
	FactID       string            `json:"fact_id"`
	OtherFactID  string            `json:"other_fact_id"`
	Type         ContradictionType `json:"type"`
	Confidence   float64           `json:"confidence"`
	SharedTokens []string          `json:"shared_tokens,omitempty"`
}

// FactClassification is the mutable sifting record for a fact. It references
// the fact by ID rather than embedding it; the pairing is 1-to-1 per
// investigation.
type FactClassification struct {
	FactID          string `json:"fact_id"`
	InvestigationID string `json:"investigation_id"`

	ImpactTier        ImpactTier    `json:"impact_tier"`
	DubiousFlags      []DubiousFlag `json:"dubious_flags,omitempty"`
	OriginDubiousFlags []DubiousFlag `json:"origin_dubious_flags,omitempty"`

	PriorityScore        float64                       `json:"priority_score"`
	CredibilityScore     float64                       `json:"credibility_score"`
	CredibilityBreakdown CredibilityBreakdown          `json:"credibility_breakdown"`
	Reasoning            map[DubiousFlag]FlagReasoning `json:"classification_reasoning,omitempty"`
	Contradictions       []Contradiction               `json:"contradictions,omitempty"`

	VerificationStatus VerificationStatus `json:"verification_status"`
	History            []HistoryEntry     `json:"history,omitempty"`
}

// HasFlag reports whether the classification currently carries flag.
func (c *FactClassification) HasFlag(flag DubiousFlag) bool {
	for _, f := range c.DubiousFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// NoiseOnly reports whether NOISE is the sole dubious flag. NOISE-only facts
// are excluded from the verification priority queue.
func (c *FactClassification) NoiseOnly() bool {
	return len(c.DubiousFlags) == 1 && c.DubiousFlags[0] == FlagNoise
}

// AppendHistory records a state transition in the audit trail.
func (c *FactClassification) AppendHistory(previous, trigger string) {
	c.History = append(c.History, HistoryEntry{
		Timestamp:     time.Now().UTC(),
		PreviousState: previous,
		Trigger:       trigger,
	})
}

// Evidence is one search hit considered during verification.
type Evidence struct {
	URL            string     `json:"url"`
	Domain         string     `json:"domain"`
	SourceType     SourceType `json:"source_type"`
	AuthorityScore float64    `json:"authority_score"`
	Snippet        string     `json:"snippet,omitempty"`
	Supports       bool       `json:"supports"`
	RelevanceScore float64    `json:"relevance_score"`
	RetrievedAt    time.Time  `json:"retrieved_at"`
}

// VerificationResult records one terminal classification change for audit.
type VerificationResult struct {
	FactID          string             `json:"fact_id"`
	InvestigationID string             `json:"investigation_id"`
	Status          VerificationStatus `json:"status"`

	OriginalConfidence float64 `json:"original_confidence"`
	ConfidenceBoost    float64 `json:"confidence_boost"`
	FinalConfidence    float64 `json:"final_confidence"` // capped at 1.0

	SupportingEvidence []Evidence `json:"supporting_evidence,omitempty"`
	RefutingEvidence   []Evidence `json:"refuting_evidence,omitempty"`

	QueryAttempts int      `json:"query_attempts"`
	QueriesUsed   []string `json:"queries_used,omitempty"`

	RelatedFactID     string            `json:"related_fact_id,omitempty"`
	ContradictionType ContradictionType `json:"contradiction_type,omitempty"`

	RequiresHumanReview  bool      `json:"requires_human_review"`
	HumanReviewCompleted bool      `json:"human_review_completed"`
	CompletedAt          time.Time `json:"completed_at"`
}

// Finalize computes FinalConfidence from the original confidence and the
// accumulated boost, capping at 1.0.
func (r *VerificationResult) Finalize() {
	r.FinalConfidence = r.OriginalConfidence + r.ConfidenceBoost
	if r.FinalConfidence > 1.0 {
		r.FinalConfidence = 1.0
	}
	if r.FinalConfidence < 0 {
		r.FinalConfidence = 0
	}
}
