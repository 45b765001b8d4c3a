package store

import (
	"testing"

	"sleuth/internal/types"
)

func testClassification(inv, factID string, tier types.ImpactTier, priority float64, flags ...types.DubiousFlag) *types.FactClassification {
	return &types.FactClassification{
		FactID:             factID,
		InvestigationID:    inv,
		ImpactTier:         tier,
		DubiousFlags:       flags,
		PriorityScore:      priority,
		VerificationStatus: types.StatusPending,
	}
}

func TestPriorityQueueExcludesNoiseOnly(t *testing.T) {
	s := NewClassificationStore()

	must := func(c *types.FactClassification) {
		t.Helper()
		if err := s.Save(c); err != nil {
			t.Fatal(err)
		}
	}
	must(testClassification("inv-1", "f-phantom", types.TierCritical, 0.6, types.FlagPhantom))
	must(testClassification("inv-1", "f-noise", types.TierCritical, 0.1, types.FlagNoise))
	must(testClassification("inv-1", "f-noise-fog", types.TierLessCritical, 0.45, types.FlagNoise, types.FlagFog))
	must(testClassification("inv-1", "f-clean", types.TierLessCritical, 0))

	queue := s.GetPriorityQueue("inv-1")
	if len(queue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(queue))
	}
	for _, c := range queue {
		if c.NoiseOnly() {
			t.Errorf("NOISE-only fact %s in queue", c.FactID)
		}
		if len(c.DubiousFlags) == 0 {
			t.Errorf("clean fact %s in queue", c.FactID)
		}
	}
	// Highest priority first.
	if queue[0].FactID != "f-phantom" {
		t.Errorf("queue head = %s, want f-phantom", queue[0].FactID)
	}
}

func TestFlagAndTierIndexes(t *testing.T) {
	s := NewClassificationStore()
	if err := s.Save(testClassification("inv-1", "f1", types.TierCritical, 0.9, types.FlagAnomaly)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(testClassification("inv-1", "f2", types.TierLessCritical, 0.45, types.FlagAnomaly, types.FlagFog)); err != nil {
		t.Fatal(err)
	}

	if got := s.GetByFlag("inv-1", types.FlagAnomaly); len(got) != 2 {
		t.Errorf("anomaly index = %v", got)
	}
	if got := s.GetByFlag("inv-1", types.FlagFog); len(got) != 1 || got[0] != "f2" {
		t.Errorf("fog index = %v", got)
	}
	if got := s.GetByTier("inv-1", types.TierCritical); len(got) != 1 || got[0] != "f1" {
		t.Errorf("critical tier = %v", got)
	}
}

func TestUpdateReindexes(t *testing.T) {
	s := NewClassificationStore()
	if err := s.Save(testClassification("inv-1", "f1", types.TierCritical, 0.6, types.FlagPhantom)); err != nil {
		t.Fatal(err)
	}

	// Verification confirms the fact: flags clear, origin preserved.
	err := s.Update("inv-1", "f1", func(c *types.FactClassification) {
		c.OriginDubiousFlags = c.DubiousFlags
		c.DubiousFlags = nil
		c.VerificationStatus = types.StatusConfirmed
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got := s.GetByFlag("inv-1", types.FlagPhantom); len(got) != 0 {
		t.Errorf("cleared flag still indexed: %v", got)
	}
	if queue := s.GetPriorityQueue("inv-1"); len(queue) != 0 {
		t.Errorf("confirmed fact still queued")
	}
	c, _ := s.Get("f1")
	if len(c.OriginDubiousFlags) != 1 || c.OriginDubiousFlags[0] != types.FlagPhantom {
		t.Errorf("origin flags = %v", c.OriginDubiousFlags)
	}
}

func TestGetCriticalDubious(t *testing.T) {
	s := NewClassificationStore()
	for _, c := range []*types.FactClassification{
		testClassification("inv-1", "f1", types.TierCritical, 0.6, types.FlagPhantom),
		testClassification("inv-1", "f2", types.TierCritical, 0),
		testClassification("inv-1", "f3", types.TierLessCritical, 0.45, types.FlagFog),
	} {
		if err := s.Save(c); err != nil {
			t.Fatal(err)
		}
	}
	got := s.GetCriticalDubious("inv-1")
	if len(got) != 1 || got[0].FactID != "f1" {
		t.Errorf("critical dubious = %v", got)
	}
}

func TestVerificationStoreReviewGate(t *testing.T) {
	s := NewVerificationStore()
	r := &types.VerificationResult{
		FactID:              "f1",
		InvestigationID:     "inv-1",
		Status:              types.StatusConfirmed,
		RequiresHumanReview: true,
	}
	if err := s.Save(r); err != nil {
		t.Fatal(err)
	}

	if s.IsFinal("f1") {
		t.Error("result final before review completed")
	}
	if got := s.PendingHumanReview("inv-1"); len(got) != 1 {
		t.Errorf("pending review = %d, want 1", len(got))
	}
	if err := s.CompleteHumanReview("f1"); err != nil {
		t.Fatalf("CompleteHumanReview: %v", err)
	}
	if !s.IsFinal("f1") {
		t.Error("result not final after review")
	}
	if got := s.PendingHumanReview("inv-1"); len(got) != 0 {
		t.Errorf("pending review after completion = %d", len(got))
	}
}
