package verify

import (
	"context"
	"math"
	"strings"
	"testing"

	"sleuth/internal/classify"
	"sleuth/internal/sources"
	"sleuth/internal/store"
	"sleuth/internal/types"
)

func newFact(inv, sourceID, claim string) *types.ExtractedFact {
	f := &types.ExtractedFact{
		FactID:          types.NewFactID(),
		InvestigationID: inv,
		SchemaVersion:   types.SchemaVersion,
		Claim:           types.Claim{Text: claim, AssertionType: types.AssertionStatement},
		Provenance: types.Provenance{
			SourceID:       sourceID,
			SourceType:     types.SourceRSS,
			Classification: types.SourceSecondary,
			HopCount:       1,
		},
		Quality: types.Quality{ExtractionConfidence: 0.9, ClaimClarity: 0.9},
	}
	f.SealHash()
	return f
}

func newRecord(fact *types.ExtractedFact, flags ...types.DubiousFlag) *types.FactClassification {
	return &types.FactClassification{
		FactID:             fact.FactID,
		InvestigationID:    fact.InvestigationID,
		ImpactTier:         types.TierLessCritical,
		DubiousFlags:       flags,
		PriorityScore:      classify.PriorityScore(types.TierLessCritical, flags),
		CredibilityScore:   0.4,
		VerificationStatus: types.StatusPending,
	}
}

// echoSearcher returns one hit whose snippet repeats the query, so every
// query term matches and relevance is 1.0.
type echoSearcher struct {
	url    string
	title  string
	called []string
}

func (s *echoSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	s.called = append(s.called, query)
	return []SearchResult{{Title: s.title, URL: s.url, Snippet: query}}, nil
}

func TestQueryGeneratorBudget(t *testing.T) {
	gen := NewQueryGenerator()
	fact := newFact("inv-1", "blog.example", "[E1:Ministry] announced dozens of new facilities recently")
	fact.Entities = []types.Entity{{ID: "E1", Text: "Ministry", Type: types.EntityOrganization}}

	queries := gen.Generate(fact, []types.DubiousFlag{types.FlagPhantom, types.FlagFog, types.FlagNoise})
	if len(queries) > maxQueriesPerFact {
		t.Fatalf("got %d queries, budget is %d", len(queries), maxQueriesPerFact)
	}
	if len(queries) == 0 {
		t.Fatal("flagged fact should get queries")
	}
}

func TestQueryGeneratorNoiseOnlySkipped(t *testing.T) {
	gen := NewQueryGenerator()
	fact := newFact("inv-1", "spam.example", "Something happened somewhere")
	if queries := gen.Generate(fact, []types.DubiousFlag{types.FlagNoise}); len(queries) != 0 {
		t.Errorf("NOISE should produce no queries, got %v", queries)
	}
}

func TestAnomalyCompoundBundle(t *testing.T) {
	gen := NewQueryGenerator()
	fact := newFact("inv-1", "reuters.com", "150,000 troops stationed at the border")
	fact.Temporal = &types.Temporal{ID: "T1", Value: "2026-02-20", Precision: "day", TemporalPrecision: types.TemporalExplicit}

	queries := gen.Generate(fact, []types.DubiousFlag{types.FlagAnomaly})
	if len(queries) != 3 {
		t.Fatalf("compound bundle should have all 3 dimensions, got %d: %v", len(queries), queries)
	}
	joined := strings.Join(queries, " | ")
	for _, dimension := range []string{"2026-02-20", ".gov", "exact"} {
		if !strings.Contains(joined, dimension) {
			t.Errorf("bundle missing %q dimension: %v", dimension, queries)
		}
	}
}

func TestFogVagueQuantityQuery(t *testing.T) {
	gen := NewQueryGenerator()
	fact := newFact("inv-1", "blog.example", "Dozens of vehicles crossed the checkpoint")
	queries := gen.Generate(fact, []types.DubiousFlag{types.FlagFog})
	if len(queries) == 0 {
		t.Fatal("no queries")
	}
	if !strings.Contains(queries[0], "exact number") {
		t.Errorf("vague quantity should seek specifics: %q", queries[0])
	}
}

func TestMockModeReturnsEmptyWithoutFailing(t *testing.T) {
	executor := NewSearchExecutor(nil, sources.NewAuthorityScorer(nil), 10)
	evidence, err := executor.Execute(context.Background(), []string{"anything"})
	if err != nil {
		t.Fatalf("mock mode must not fail: %v", err)
	}
	if len(evidence) != 0 {
		t.Errorf("mock mode should return no evidence, got %d", len(evidence))
	}
}

// A missing search backend must not burn the query budget: the whole batch
// ends UNVERIFIABLE with zero attempts charged, so the facts verify for
// real once a backend is configured.
func TestMockModeBatchChargesNoAttempts(t *testing.T) {
	facts := store.NewFactStore()
	classifications := store.NewClassificationStore()
	results := store.NewVerificationStore()

	fact := newFact("inv-1", "blog.example", "[E1:Ministry] opened a new facility")
	fact.Provenance.HopCount = 3
	fact.Provenance.Classification = types.SourceTertiary
	if err := facts.Save(fact); err != nil {
		t.Fatal(err)
	}
	if err := classifications.Save(newRecord(fact, types.FlagPhantom)); err != nil {
		t.Fatal(err)
	}

	reclassifier := NewReclassifier(facts, classifications, results, classify.NewImpactAssessor("facility"), true)
	batch := NewBatch(NewQueryGenerator(), NewSearchExecutor(nil, sources.NewAuthorityScorer(nil), 10),
		reclassifier, facts, classifications, nil, nil, 5, 3)

	stats, err := batch.Run(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Unverifiable != 1 {
		t.Fatalf("unverifiable = %d, want 1 (stats %+v)", stats.Unverifiable, stats)
	}

	result, ok := results.Latest(fact.FactID)
	if !ok {
		t.Fatal("no verification result")
	}
	if result.Status != types.StatusUnverifiable {
		t.Errorf("status = %v", result.Status)
	}
	if result.QueryAttempts != 0 {
		t.Errorf("query attempts = %d, want 0 without a backend", result.QueryAttempts)
	}
	if len(result.QueriesUsed) != 0 {
		t.Errorf("queries used = %v, want none", result.QueriesUsed)
	}
}

// An unresolved fact stays flagged: UNVERIFIABLE neither clears the live
// flags nor populates the origin set, which is reserved for facts the
// evidence actually settled.
func TestUnverifiableKeepsLiveFlags(t *testing.T) {
	facts := store.NewFactStore()
	classifications := store.NewClassificationStore()
	results := store.NewVerificationStore()

	fact := newFact("inv-1", "blog.example", "[E1:Ministry] opened a new facility")
	if err := facts.Save(fact); err != nil {
		t.Fatal(err)
	}
	if err := classifications.Save(newRecord(fact, types.FlagPhantom)); err != nil {
		t.Fatal(err)
	}

	reclassifier := NewReclassifier(facts, classifications, results, classify.NewImpactAssessor("facility"), true)
	if err := reclassifier.Begin("inv-1", fact.FactID); err != nil {
		t.Fatal(err)
	}
	result, err := reclassifier.Apply("inv-1", fact.FactID, Assessment{}, []string{"some query"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != types.StatusUnverifiable {
		t.Fatalf("status = %v", result.Status)
	}

	updated, _ := classifications.Get(fact.FactID)
	if len(updated.OriginDubiousFlags) != 0 {
		t.Errorf("origin flags = %v, want none for an unresolved fact", updated.OriginDubiousFlags)
	}
	if len(updated.DubiousFlags) != 1 || updated.DubiousFlags[0] != types.FlagPhantom {
		t.Errorf("live flags = %v, want [phantom] retained", updated.DubiousFlags)
	}
}

func TestExecutorDedupsAcrossQueries(t *testing.T) {
	searcher := &echoSearcher{url: "https://example.com/one", title: "Example"}
	executor := NewSearchExecutor(searcher, sources.NewAuthorityScorer(nil), 10)

	evidence, err := executor.Execute(context.Background(), []string{"query one", "query two"})
	if err != nil {
		t.Fatal(err)
	}
	if len(evidence) != 1 {
		t.Fatalf("same URL across queries should dedup to 1, got %d", len(evidence))
	}
	if evidence[0].Domain != "example.com" {
		t.Errorf("domain = %q", evidence[0].Domain)
	}
}

func TestAggregatorRules(t *testing.T) {
	agg := NewAggregator()
	supporting := func(domain string, authority, relevance float64) types.Evidence {
		return types.Evidence{
			URL: "https://" + domain + "/a", Domain: domain,
			AuthorityScore: authority, RelevanceScore: relevance,
			Snippet: "matching coverage of the claim",
		}
	}

	t.Run("single_strong_source_confirms", func(t *testing.T) {
		a := agg.Assess([]types.Evidence{supporting("state.gov", 0.85, 0.9)})
		if !a.Confirmed {
			t.Error("authority 0.85 should confirm alone")
		}
		if math.Abs(a.ConfidenceBoost-boostOfficial) > 1e-9 {
			t.Errorf("boost = %v, want %v", a.ConfidenceBoost, boostOfficial)
		}
	})

	t.Run("two_independent_sources_confirm", func(t *testing.T) {
		a := agg.Assess([]types.Evidence{
			supporting("guardian.example", 0.7, 0.8),
			supporting("lemonde.example", 0.7, 0.8),
		})
		if !a.Confirmed {
			t.Error("two independent 0.7 sources should confirm")
		}
	})

	t.Run("same_domain_pair_does_not_confirm", func(t *testing.T) {
		a := agg.Assess([]types.Evidence{
			supporting("guardian.example", 0.7, 0.8),
			supporting("guardian.example", 0.7, 0.9),
		})
		if a.Confirmed {
			t.Error("two hits on one domain are not independent")
		}
	})

	t.Run("refutation_needs_authority_and_relevance", func(t *testing.T) {
		refuting := types.Evidence{
			URL: "https://apnews.com/check", Domain: "apnews.com",
			AuthorityScore: 0.9, RelevanceScore: 0.9,
			Snippet: "officials said the report was debunked",
		}
		a := agg.Assess([]types.Evidence{refuting})
		if !a.Refuted {
			t.Error("high-authority high-relevance refutation should refute")
		}

		weak := refuting
		weak.RelevanceScore = 0.3
		if a := agg.Assess([]types.Evidence{weak}); a.Refuted {
			t.Error("low-relevance refutation should not refute")
		}
	})

	t.Run("wire_boost_outranks_social", func(t *testing.T) {
		a := agg.Assess([]types.Evidence{
			supporting("reuters.com", 0.9, 0.9),
			supporting("reddit.com", 0.3, 0.9),
		})
		want := boostWire + boostSocial
		if math.Abs(a.ConfidenceBoost-want) > 1e-9 {
			t.Errorf("boost = %v, want %v", a.ConfidenceBoost, want)
		}
	})
}

// Phantom resolution: a sourceless deep-hop fact, confirmed by a .gov press
// release, ends CONFIRMED with the origin flag preserved.
func TestPhantomConfirmedPipeline(t *testing.T) {
	facts := store.NewFactStore()
	classifications := store.NewClassificationStore()
	results := store.NewVerificationStore()

	fact := newFact("inv-1", "blog.example", "[E1:Ministry] opened a new enrichment facility")
	fact.Entities = []types.Entity{{ID: "E1", Text: "Ministry", Type: types.EntityOrganization}}
	fact.Provenance.HopCount = 3
	fact.Provenance.Classification = types.SourceTertiary
	if err := facts.Save(fact); err != nil {
		t.Fatal(err)
	}

	record := newRecord(fact, types.FlagPhantom)
	if err := classifications.Save(record); err != nil {
		t.Fatal(err)
	}
	// Confirmation overwrites the stored credibility with the boosted
	// value, so the baseline must be captured before the run.
	originalCred := record.CredibilityScore

	scorer := sources.NewAuthorityScorer(nil)
	searcher := &echoSearcher{url: "https://energy.gov/press/1234", title: "Press release"}
	reclassifier := NewReclassifier(facts, classifications, results, classify.NewImpactAssessor("facility investigation"), true)
	batch := NewBatch(NewQueryGenerator(), NewSearchExecutor(searcher, scorer, 10), reclassifier,
		facts, classifications, nil, nil, 5, 3)

	stats, err := batch.Run(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Confirmed != 1 {
		t.Fatalf("confirmed = %d, want 1 (stats %+v)", stats.Confirmed, stats)
	}

	result, ok := results.Latest(fact.FactID)
	if !ok {
		t.Fatal("no verification result")
	}
	if result.Status != types.StatusConfirmed {
		t.Errorf("status = %v", result.Status)
	}
	if math.Abs(result.ConfidenceBoost-boostOfficial) > 1e-9 {
		t.Errorf("boost = %v, want %v", result.ConfidenceBoost, boostOfficial)
	}
	if math.Abs(result.FinalConfidence-(originalCred+boostOfficial)) > 1e-9 {
		t.Errorf("final confidence = %v", result.FinalConfidence)
	}

	updated, _ := classifications.Get(fact.FactID)
	if len(updated.DubiousFlags) != 0 {
		t.Errorf("flags should clear on confirmation: %v", updated.DubiousFlags)
	}
	if len(updated.OriginDubiousFlags) != 1 || updated.OriginDubiousFlags[0] != types.FlagPhantom {
		t.Errorf("origin flags = %v, want [phantom]", updated.OriginDubiousFlags)
	}
	if updated.VerificationStatus != types.StatusConfirmed {
		t.Errorf("record status = %v", updated.VerificationStatus)
	}
	if len(updated.History) == 0 {
		t.Error("transition should append history")
	}
}

// Temporal anomaly resolution: the superseded fact was true, it is no
// longer current. It must not be marked REFUTED.
func TestAnomalyTemporalSupersedes(t *testing.T) {
	facts := store.NewFactStore()
	classifications := store.NewClassificationStore()
	results := store.NewVerificationStore()

	older := newFact("inv-1", "reuters.com", "100,000 troops stationed at the border")
	older.Temporal = &types.Temporal{ID: "T1", Value: "2026-01-15", Precision: "day", TemporalPrecision: types.TemporalExplicit}
	newer := newFact("inv-1", "apnews.com", "150,000 troops stationed at the border")
	newer.Temporal = &types.Temporal{ID: "T1", Value: "2026-02-20", Precision: "day", TemporalPrecision: types.TemporalExplicit}
	for _, f := range []*types.ExtractedFact{older, newer} {
		if err := facts.Save(f); err != nil {
			t.Fatal(err)
		}
	}

	olderRecord := newRecord(older, types.FlagAnomaly)
	newerRecord := newRecord(newer, types.FlagAnomaly)
	olderRecord.Contradictions = []types.Contradiction{{FactID: older.FactID, OtherFactID: newer.FactID, Type: types.ContradictionTemporal, Confidence: 0.8}}
	newerRecord.Contradictions = []types.Contradiction{{FactID: newer.FactID, OtherFactID: older.FactID, Type: types.ContradictionTemporal, Confidence: 0.8}}
	for _, r := range []*types.FactClassification{olderRecord, newerRecord} {
		if err := classifications.Save(r); err != nil {
			t.Fatal(err)
		}
	}

	reclassifier := NewReclassifier(facts, classifications, results, classify.NewImpactAssessor("border buildup"), true)
	winnerAssessment := Assessment{
		Confirmed:       true,
		ConfidenceBoost: boostOfficial,
		Supporting: []types.Evidence{{
			URL: "https://defense.gov/briefing", Domain: "defense.gov",
			AuthorityScore: 0.85, RelevanceScore: 0.9, Supports: true,
		}},
	}

	winner, loser, err := reclassifier.ResolveAnomaly("inv-1", newer.FactID, older.FactID,
		types.ContradictionTemporal, winnerAssessment, []string{"150,000 troops border as of 2026-02-20"}, 1)
	if err != nil {
		t.Fatalf("ResolveAnomaly: %v", err)
	}

	if winner.Status != types.StatusConfirmed {
		t.Errorf("winner status = %v", winner.Status)
	}
	if loser.Status != types.StatusSuperseded {
		t.Errorf("loser status = %v, want superseded (was true, no longer current)", loser.Status)
	}
	if winner.RelatedFactID != older.FactID || loser.RelatedFactID != newer.FactID {
		t.Error("winner and loser must be bidirectionally linked")
	}
	if loser.ContradictionType != types.ContradictionTemporal {
		t.Errorf("loser contradiction type = %v", loser.ContradictionType)
	}

	updatedLoser, _ := classifications.Get(older.FactID)
	if updatedLoser.VerificationStatus != types.StatusSuperseded {
		t.Errorf("loser record status = %v", updatedLoser.VerificationStatus)
	}
	if len(updatedLoser.OriginDubiousFlags) != 1 || updatedLoser.OriginDubiousFlags[0] != types.FlagAnomaly {
		t.Errorf("loser origin flags = %v", updatedLoser.OriginDubiousFlags)
	}
}

// A confirmed ANOMALY fact in a batch arbitrates against its pending
// counterpart instead of leaving it dangling.
func TestBatchAnomalyArbitration(t *testing.T) {
	facts := store.NewFactStore()
	classifications := store.NewClassificationStore()
	results := store.NewVerificationStore()

	older := newFact("inv-1", "reuters.com", "100,000 troops stationed at the border")
	newer := newFact("inv-1", "apnews.com", "150,000 troops stationed at the border")
	for _, f := range []*types.ExtractedFact{older, newer} {
		if err := facts.Save(f); err != nil {
			t.Fatal(err)
		}
	}

	olderRecord := newRecord(older, types.FlagAnomaly)
	newerRecord := newRecord(newer, types.FlagAnomaly)
	olderRecord.Contradictions = []types.Contradiction{{FactID: older.FactID, OtherFactID: newer.FactID, Type: types.ContradictionTemporal, Confidence: 0.8}}
	newerRecord.Contradictions = []types.Contradiction{{FactID: newer.FactID, OtherFactID: older.FactID, Type: types.ContradictionTemporal, Confidence: 0.8}}
	// The older fact is already claimed by a (conceptually) parallel worker;
	// the batch must resolve it through arbitration, not verify it twice.
	olderRecord.VerificationStatus = types.StatusInProgress
	for _, r := range []*types.FactClassification{olderRecord, newerRecord} {
		if err := classifications.Save(r); err != nil {
			t.Fatal(err)
		}
	}

	searcher := &echoSearcher{url: "https://defense.gov/briefing", title: "Briefing"}
	reclassifier := NewReclassifier(facts, classifications, results, classify.NewImpactAssessor("border buildup"), true)
	batch := NewBatch(NewQueryGenerator(), NewSearchExecutor(searcher, sources.NewAuthorityScorer(nil), 10),
		reclassifier, facts, classifications, nil, nil, 5, 3)

	if _, err := batch.Run(context.Background(), "inv-1"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	newerResult, ok := results.Latest(newer.FactID)
	if !ok || newerResult.Status != types.StatusConfirmed {
		t.Fatalf("newer fact should be confirmed, got %+v", newerResult)
	}
	olderResult, ok := results.Latest(older.FactID)
	if !ok || olderResult.Status != types.StatusSuperseded {
		t.Fatalf("older fact should be superseded, got %+v", olderResult)
	}
}

func TestCancelRevertsToPending(t *testing.T) {
	facts := store.NewFactStore()
	classifications := store.NewClassificationStore()
	results := store.NewVerificationStore()

	fact := newFact("inv-1", "blog.example", "Something dubious happened")
	if err := facts.Save(fact); err != nil {
		t.Fatal(err)
	}
	record := newRecord(fact, types.FlagFog)
	if err := classifications.Save(record); err != nil {
		t.Fatal(err)
	}

	reclassifier := NewReclassifier(facts, classifications, results, nil, false)
	if err := reclassifier.Begin("inv-1", fact.FactID); err != nil {
		t.Fatal(err)
	}
	if err := reclassifier.Cancel("inv-1", fact.FactID); err != nil {
		t.Fatal(err)
	}

	updated, _ := classifications.Get(fact.FactID)
	if updated.VerificationStatus != types.StatusPending {
		t.Errorf("status = %v, want pending after cancel", updated.VerificationStatus)
	}
	if len(updated.DubiousFlags) != 1 {
		t.Errorf("cancel must not touch flags: %v", updated.DubiousFlags)
	}
}
