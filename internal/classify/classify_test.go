package classify

import (
	"context"
	"math"
	"testing"

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
			Quote:          "as quoted in the article",
			SourceType:     types.SourceRSS,
			Classification: types.SourceSecondary,
			HopCount:       1,
		},
		Quality: types.Quality{ExtractionConfidence: 0.9, ClaimClarity: 0.9},
	}
	f.SealHash()
	return f
}

func TestProximityDecay(t *testing.T) {
	c := NewCredibility(sources.NewAuthorityScorer(nil), 0, 0)
	if got := c.Proximity(0); got != 1.0 {
		t.Errorf("hop 0 = %v, want 1.0", got)
	}
	if got := c.Proximity(1); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("hop 1 = %v, want 0.7", got)
	}
	if got := c.Proximity(10); math.Abs(got-math.Pow(0.7, 10)) > 1e-9 {
		t.Errorf("hop 10 = %v, want %v", got, math.Pow(0.7, 10))
	}
}

func TestCredibilityFormulaReproducible(t *testing.T) {
	scorer := sources.NewAuthorityScorer(nil)
	c := NewCredibility(scorer, 0, 0)

	fact := newFact("inv-1", "reuters.com", "The [E1:ministry] confirmed the agreement on [T1] per the communique")
	fact.Entities = []types.Entity{
		{ID: "E1", Text: "ministry", Type: types.EntityOrganization},
		{ID: "E2", Text: "communique", Type: types.EntityOrganization},
	}
	fact.Temporal = &types.Temporal{ID: "T1", Value: "2026-03-01", Precision: "day", TemporalPrecision: types.TemporalExplicit}
	fact.Provenance.Quote = "we have signed"
	fact.Provenance.HopCount = 2

	// Hand-computed: precision = 0.3*(1-2^-2) + 0.3*1.0 + 0.2*1.0 + 0.2*0.0
	wantPrecision := 0.3*0.75 + 0.3 + 0.2
	if got := Precision(fact); math.Abs(got-wantPrecision) > 1e-9 {
		t.Fatalf("precision = %v, want %v", got, wantPrecision)
	}

	wantPerSource := 0.9 * math.Pow(0.7, 2) * wantPrecision
	if got := c.PerSource("reuters.com", fact, 2); math.Abs(got-wantPerSource) > 1e-9 {
		t.Errorf("per-source = %v, want %v", got, wantPerSource)
	}

	total, breakdown := c.Score(fact, nil)
	if math.Abs(total-wantPerSource) > 1e-9 {
		t.Errorf("single-source total = %v, want %v", total, wantPerSource)
	}
	if breakdown.EchoBonus != 0 {
		t.Errorf("single source should have no echo bonus, got %v", breakdown.EchoBonus)
	}
}

func TestEchoBonusBoundary(t *testing.T) {
	// One root at 0.9 plus echoes that all score zero: the bonus must be
	// exactly alpha*log10(1+0) = 0, leaving the total at the root score.
	scorer := sources.NewAuthorityScorer(map[string]float64{
		"root.example": 1.0,
		"echo.example": 0.0,
	})
	c := NewCredibility(scorer, 0, 0)

	fact := newFact("inv-1", "root.example", "Troops were moved to the border region overnight")
	fact.Provenance.HopCount = 0
	fact.Provenance.Quote = "moved overnight"
	fact.Entities = nil
	fact.Temporal = nil

	rootScore, _ := c.Score(fact, nil)

	var echoes []*types.ExtractedFact
	for i := 0; i < 10; i++ {
		echo := newFact("inv-1", "echo.example", fact.Claim.Text)
		echo.Provenance.HopCount = 0
		echoes = append(echoes, echo)
	}

	total, breakdown := c.Score(fact, echoes)
	if math.Abs(total-rootScore) > 1e-9 {
		t.Errorf("zero-score echoes changed the total: %v vs %v", total, rootScore)
	}
	if breakdown.EchoBonus != 0 {
		t.Errorf("echo bonus = %v, want 0", breakdown.EchoBonus)
	}
}

func TestEchoDampeningRewardsIndependentRoots(t *testing.T) {
	scorer := sources.NewAuthorityScorer(nil)
	c := NewCredibility(scorer, 0, 0)

	claim := "Officials confirmed the troop movement near the border"
	fact := newFact("inv-1", "reuters.com", claim)
	single, _ := c.Score(fact, nil)

	corroborated, breakdown := c.Score(fact, []*types.ExtractedFact{
		newFact("inv-1", "apnews.com", claim),
		newFact("inv-1", "afp.com", claim),
	})
	if corroborated <= single {
		t.Errorf("independent corroboration should raise credibility: %v <= %v", corroborated, single)
	}
	if breakdown.UniqueRoots != 3 {
		t.Errorf("unique roots = %d, want 3", breakdown.UniqueRoots)
	}

	// Ten echoes of one root are worth less than one extra independent root.
	var sameRoot []*types.ExtractedFact
	for i := 0; i < 10; i++ {
		echo := newFact("inv-1", "blog.example", claim)
		echo.Provenance.AttributionChain = []string{"reuters.com"}
		echo.Provenance.HopCount = 2
		sameRoot = append(sameRoot, echo)
	}
	echoed, _ := c.Score(fact, sameRoot)
	if echoed >= corroborated {
		t.Errorf("echoes of one root (%v) should be worth less than independent roots (%v)", echoed, corroborated)
	}
}

func TestCircularReportingWarning(t *testing.T) {
	scorer := sources.NewAuthorityScorer(nil)
	c := NewCredibility(scorer, 0, 0)

	claim := "An unnamed agency reported unusual activity"
	fact := newFact("inv-1", "blog-a.example", claim)
	fact.Provenance.AttributionChain = []string{"obscure-wire.example"}
	fact.Provenance.HopCount = 2

	var variants []*types.ExtractedFact
	for _, src := range []string{"blog-b.example", "blog-c.example", "blog-d.example"} {
		v := newFact("inv-1", src, claim)
		v.Provenance.AttributionChain = []string{"obscure-wire.example"}
		v.Provenance.HopCount = 2
		variants = append(variants, v)
	}

	_, breakdown := c.Score(fact, variants)
	if !breakdown.CircularReport {
		t.Error("four sources tracing to one non-primary root should warn")
	}
	if breakdown.UniqueRoots != 1 {
		t.Errorf("unique roots = %d, want 1", breakdown.UniqueRoots)
	}
}

func TestImpactTiers(t *testing.T) {
	assessor := NewImpactAssessor("border troop movements")

	critical := newFact("inv-1", "reuters.com", "The president ordered a military mobilization")
	critical.Entities = []types.Entity{{ID: "E1", Text: "the president", Type: types.EntityPerson}}
	if _, tier := assessor.Assess(critical); tier != types.TierCritical {
		t.Error("world leader + military event should be critical")
	}

	routine := newFact("inv-1", "reuters.com", "A local bakery reopened after renovation")
	routine.Entities = []types.Entity{{ID: "E1", Text: "bakery", Type: types.EntityOrganization}}
	if score, tier := assessor.Assess(routine); tier != types.TierLessCritical {
		t.Errorf("routine fact scored %v, should be less_critical", score)
	}
}

func TestDubiousGates(t *testing.T) {
	cases := []struct {
		name           string
		mutate         func(*types.ExtractedFact)
		credibility    float64
		contradictions int
		want           []types.DubiousFlag
	}{
		{
			name: "phantom_deep_hop_no_primary",
			mutate: func(f *types.ExtractedFact) {
				f.Provenance.HopCount = 3
				f.Provenance.Classification = types.SourceTertiary
			},
			credibility: 0.6,
			want:        []types.DubiousFlag{types.FlagPhantom},
		},
		{
			name: "deep_hop_with_primary_is_clean",
			mutate: func(f *types.ExtractedFact) {
				f.Provenance.HopCount = 3
				f.Provenance.Classification = types.SourcePrimary
			},
			credibility: 0.6,
			want:        nil,
		},
		{
			name:        "fog_low_clarity",
			mutate:      func(f *types.ExtractedFact) { f.Quality.ClaimClarity = 0.3 },
			credibility: 0.6,
			want:        []types.DubiousFlag{types.FlagFog},
		},
		{
			name: "fog_vague_attribution",
			mutate: func(f *types.ExtractedFact) {
				f.Claim.Text = "Officials familiar with the matter said talks had stalled"
			},
			credibility: 0.6,
			want:        []types.DubiousFlag{types.FlagFog},
		},
		{
			name:           "anomaly_contradicted",
			mutate:         func(f *types.ExtractedFact) {},
			credibility:    0.6,
			contradictions: 2,
			want:           []types.DubiousFlag{types.FlagAnomaly},
		},
		{
			name:        "noise_untrusted_source",
			mutate:      func(f *types.ExtractedFact) {},
			credibility: 0.2,
			want:        []types.DubiousFlag{types.FlagNoise},
		},
		{
			name: "multiple_flags",
			mutate: func(f *types.ExtractedFact) {
				f.Provenance.HopCount = 4
				f.Provenance.Classification = types.SourceTertiary
				f.Quality.ClaimClarity = 0.2
			},
			credibility: 0.1,
			want:        []types.DubiousFlag{types.FlagPhantom, types.FlagFog, types.FlagNoise},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fact := newFact("inv-1", "example.com", "A thing happened in the capital")
			tc.mutate(fact)

			result := RunGates(fact, tc.credibility, tc.contradictions)
			if len(result.Flags) != len(tc.want) {
				t.Fatalf("flags = %v, want %v", result.Flags, tc.want)
			}
			for i, flag := range tc.want {
				if result.Flags[i] != flag {
					t.Errorf("flag[%d] = %v, want %v", i, result.Flags[i], flag)
				}
				if _, ok := result.Reasoning[flag]; !ok {
					t.Errorf("no reasoning recorded for %v", flag)
				}
			}
		})
	}
}

func TestPriorityScore(t *testing.T) {
	cases := []struct {
		name  string
		tier  types.ImpactTier
		flags []types.DubiousFlag
		want  float64
	}{
		{"critical_fog", types.TierCritical, []types.DubiousFlag{types.FlagFog}, 0.9},
		{"critical_anomaly", types.TierCritical, []types.DubiousFlag{types.FlagAnomaly}, 0.8},
		{"less_critical_phantom", types.TierLessCritical, []types.DubiousFlag{types.FlagPhantom}, 0.3},
		{"best_flag_wins", types.TierCritical, []types.DubiousFlag{types.FlagPhantom, types.FlagFog}, 0.9},
		{"noise_plus_other_uses_other", types.TierCritical, []types.DubiousFlag{types.FlagNoise, types.FlagPhantom}, 0.6},
		{"clean_fact", types.TierCritical, nil, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PriorityScore(tc.tier, tc.flags); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("priority = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestContradictionDetection(t *testing.T) {
	detector := NewContradictionDetector()

	t.Run("attribution_statement_vs_denial", func(t *testing.T) {
		statement := newFact("inv-1", "reuters.com", "[E1:Russia] moved troops across the border")
		statement.Entities = []types.Entity{{ID: "E1", Text: "Russia", Type: types.EntityOrganization}}

		denial := newFact("inv-1", "tass.example", "[E1:Russia] involvement in the border movement")
		denial.Claim.AssertionType = types.AssertionDenial
		denial.Claim.Asserter = "Russia"
		denial.Entities = []types.Entity{{ID: "E1", Text: "Russia", Type: types.EntityOrganization}}

		found := detector.Detect([]*types.ExtractedFact{statement, denial})
		got := found[statement.FactID]
		if len(got) != 1 || got[0].Type != types.ContradictionAttribution {
			t.Fatalf("got %+v, want one attribution contradiction", got)
		}
		// Bidirectional: the denial side carries the mirror record.
		if mirror := found[denial.FactID]; len(mirror) != 1 || mirror[0].OtherFactID != statement.FactID {
			t.Errorf("mirror record missing or wrong: %+v", mirror)
		}
	})

	t.Run("temporal_same_precision_different_dates", func(t *testing.T) {
		a := newFact("inv-1", "reuters.com", "100,000 troops were stationed at the [E1:border]")
		a.Entities = []types.Entity{{ID: "E1", Text: "border", Type: types.EntityLocation}}
		a.Temporal = &types.Temporal{ID: "T1", Value: "2026-01-15", Precision: "day", TemporalPrecision: types.TemporalExplicit}

		b := newFact("inv-1", "apnews.com", "150,000 troops were stationed at the [E1:border]")
		b.Entities = []types.Entity{{ID: "E1", Text: "border", Type: types.EntityLocation}}
		b.Temporal = &types.Temporal{ID: "T1", Value: "2026-02-20", Precision: "day", TemporalPrecision: types.TemporalExplicit}

		found := detector.Detect([]*types.ExtractedFact{a, b})
		got := found[a.FactID]
		if len(got) != 1 || got[0].Type != types.ContradictionTemporal {
			t.Fatalf("got %+v, want one temporal contradiction", got)
		}
	})

	t.Run("numeric_disjoint_values", func(t *testing.T) {
		a := newFact("inv-1", "reuters.com", "[E1:plant] produced 500 units")
		a.Entities = []types.Entity{{ID: "E1", Text: "plant", Type: types.EntityOrganization}}
		b := newFact("inv-1", "apnews.com", "[E1:plant] produced 900 units")
		b.Entities = []types.Entity{{ID: "E1", Text: "plant", Type: types.EntityOrganization}}

		found := detector.Detect([]*types.ExtractedFact{a, b})
		if got := found[a.FactID]; len(got) != 1 || got[0].Type != types.ContradictionNumeric {
			t.Fatalf("got %+v, want one numeric contradiction", got)
		}
	})

	t.Run("negation_with_token_overlap", func(t *testing.T) {
		a := newFact("inv-1", "reuters.com", "The pipeline explosion damaged the terminal")
		b := newFact("inv-1", "blog.example", "The pipeline explosion never damaged the terminal")

		found := detector.Detect([]*types.ExtractedFact{a, b})
		got := found[a.FactID]
		if len(got) != 1 || got[0].Type != types.ContradictionNegation {
			t.Fatalf("got %+v, want one negation contradiction", got)
		}
		if len(got[0].SharedTokens) < minNegationOverlap {
			t.Errorf("shared tokens = %v", got[0].SharedTokens)
		}
	})

	t.Run("unrelated_facts_do_not_contradict", func(t *testing.T) {
		a := newFact("inv-1", "reuters.com", "The summit opened in Geneva")
		b := newFact("inv-1", "apnews.com", "Grain exports resumed through the corridor")
		if found := detector.Detect([]*types.ExtractedFact{a, b}); len(found) != 0 {
			t.Errorf("got %+v, want none", found)
		}
	})
}

func TestEngineRun(t *testing.T) {
	facts := store.NewFactStore()
	classifications := store.NewClassificationStore()
	engine := NewEngine(sources.NewAuthorityScorer(nil), facts, classifications, nil, 0, 0)

	// A clean corroborated fact, a phantom, and noise.
	clean := newFact("inv-1", "reuters.com", "The minister announced sanctions against the [E1:consortium]")
	clean.Entities = []types.Entity{{ID: "E1", Text: "consortium", Type: types.EntityOrganization}}

	phantom := newFact("inv-1", "blog.example", "A secret facility was reported near the [E1:border]")
	phantom.Entities = []types.Entity{{ID: "E1", Text: "border", Type: types.EntityLocation}}
	phantom.Provenance.HopCount = 3
	phantom.Provenance.Classification = types.SourceTertiary

	noise := newFact("inv-1", "reddit.com", "Something strange is happening at the port")
	noise.Provenance.HopCount = 2
	noise.Provenance.SourceType = types.SourceReddit

	for _, f := range []*types.ExtractedFact{clean, phantom, noise} {
		if err := facts.Save(f); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := engine.Run(context.Background(), "inv-1", "sanctions investigation")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Classified != 3 {
		t.Fatalf("classified = %d, want 3", stats.Classified)
	}

	record, ok := classifications.Get(phantom.FactID)
	if !ok {
		t.Fatal("phantom fact has no classification")
	}
	if !record.HasFlag(types.FlagPhantom) {
		t.Errorf("phantom flags = %v", record.DubiousFlags)
	}
	if record.VerificationStatus != types.StatusPending {
		t.Errorf("status = %v, want pending", record.VerificationStatus)
	}
	if record.PriorityScore <= 0 {
		t.Error("phantom fact should carry a verification priority")
	}

	// The priority queue excludes any NOISE-only records.
	for _, queued := range classifications.GetPriorityQueue("inv-1") {
		if queued.NoiseOnly() {
			t.Errorf("NOISE-only fact %s in priority queue", queued.FactID)
		}
	}
}
