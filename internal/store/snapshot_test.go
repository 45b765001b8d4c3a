package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sleuth/internal/types"
)

func populatedStores(t *testing.T) *Stores {
	t.Helper()
	s := NewStores()

	s.Articles.SaveArticles([]*types.Article{testArticle("inv-1", "https://example.com/a")})

	a := testFact("inv-1", "shared claim", "reuters")
	b := testFact("inv-1", "shared claim", "apnews")
	for _, f := range []*types.ExtractedFact{a, b} {
		if err := s.Facts.Save(f); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Facts.LinkVariants("inv-1", a.FactID, b.FactID); err != nil {
		t.Fatal(err)
	}

	if err := s.Classifications.Save(testClassification("inv-1", a.FactID, types.TierCritical, 0.6, types.FlagPhantom)); err != nil {
		t.Fatal(err)
	}
	if err := s.Verifications.Save(&types.VerificationResult{
		FactID:          a.FactID,
		InvestigationID: "inv-1",
		Status:          types.StatusConfirmed,
	}); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := populatedStores(t)

	if err := s.WriteSnapshot(dir, "inv-1"); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	loaded := NewStores()
	inv, err := loaded.LoadSnapshot(filepath.Join(dir, "inv-1.json"))
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if inv != "inv-1" {
		t.Errorf("investigation = %q", inv)
	}

	if got := loaded.Articles.RetrieveByInvestigation("inv-1").TotalArticles; got != 1 {
		t.Errorf("articles after load = %d", got)
	}
	if got := len(loaded.Facts.List("inv-1")); got != 2 {
		t.Errorf("facts after load = %d", got)
	}
	if err := loaded.Facts.CheckVariantSymmetry("inv-1"); err != nil {
		t.Errorf("variant symmetry after load: %v", err)
	}
	if got := len(loaded.Classifications.List("inv-1")); got != 1 {
		t.Errorf("classifications after load = %d", got)
	}
}

func TestSnapshotLoadSnapshotByteIdentical(t *testing.T) {
	dir := t.TempDir()
	s := populatedStores(t)

	if err := s.WriteSnapshot(dir, "inv-1"); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "inv-1.json"))
	if err != nil {
		t.Fatal(err)
	}

	loaded := NewStores()
	if _, err := loaded.LoadSnapshot(filepath.Join(dir, "inv-1.json")); err != nil {
		t.Fatal(err)
	}

	second := t.TempDir()
	if err := loaded.WriteSnapshot(second, "inv-1"); err != nil {
		t.Fatal(err)
	}
	reread, err := os.ReadFile(filepath.Join(second, "inv-1.json"))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, reread) {
		t.Error("snapshot -> load -> snapshot is not byte-identical")
	}
}

func TestSnapshotRefusesUnknownMajor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inv-x.json")
	payload := `{"investigation_id":"inv-x","schema_version":"9.0.0"}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStores().LoadSnapshot(path); err == nil {
		t.Error("expected schema version refusal")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	archive, err := OpenArchive(path)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer archive.Close()

	r := &types.VerificationResult{
		FactID:          "f1",
		InvestigationID: "inv-1",
		Status:          types.StatusRefuted,
		ConfidenceBoost: 0.25,
		QueryAttempts:   2,
	}
	if err := archive.Record(r); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := archive.ListByInvestigation("inv-1")
	if err != nil {
		t.Fatalf("ListByInvestigation: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("archived results = %d, want 1", len(got))
	}
	if diff := cmp.Diff(r, got[0]); diff != "" {
		t.Errorf("archived result mismatch (-want +got):\n%s", diff)
	}
}
