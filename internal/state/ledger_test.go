package state

import (
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

var ledgerTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newEntry(fp models.Fingerprint, eventID string, outcome models.Outcome) *models.LedgerEntry {
	return &models.LedgerEntry{
		Fingerprint: fp,
		TaskID:      "T1",
		EventID:     eventID,
		Outcome:     outcome,
		RecordedAt:  ledgerTime,
	}
}

func TestGetEntry_Missing(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetEntry("T1@2026-03-02T09:00:00Z")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing entry, got %+v", got)
	}
}

func TestRecordOutcome_FirstWriteWins(t *testing.T) {
	db := setupTestDB(t)
	fp := models.NewFingerprint("T1", ledgerTime)

	stored, inserted, err := db.RecordOutcome(newEntry(fp, "e1", models.SuccessorCreated("S1")))
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if !inserted {
		t.Fatal("first write should insert")
	}
	if stored.Outcome.SuccessorID != "S1" {
		t.Errorf("SuccessorID = %q, want S1", stored.Outcome.SuccessorID)
	}

	stored, inserted, err = db.RecordOutcome(newEntry(fp, "e2", models.NoSuccessorNeeded()))
	if err != nil {
		t.Fatalf("second RecordOutcome failed: %v", err)
	}
	if inserted {
		t.Error("second write must not insert")
	}
	if stored.Outcome.Kind != models.OutcomeSuccessorCreated || stored.EventID != "e1" {
		t.Errorf("stored entry changed: %+v", stored)
	}
}

func TestRecordOutcome_InvalidKind(t *testing.T) {
	db := setupTestDB(t)

	_, _, err := db.RecordOutcome(newEntry("fp", "e1", models.Outcome{Kind: "bogus"}))
	if err == nil {
		t.Error("expected error for invalid outcome kind")
	}
}

func TestRecordOutcome_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	fp := models.NewFingerprint("T1", ledgerTime)

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserts := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, inserted, err := db.RecordOutcome(newEntry(fp, "e", models.SuccessorCreated("S")))
			if err != nil {
				t.Errorf("RecordOutcome failed: %v", err)
				return
			}
			if inserted {
				mu.Lock()
				inserts++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if inserts != 1 {
		t.Errorf("inserts = %d, want exactly 1", inserts)
	}
}

func TestListEntries(t *testing.T) {
	db := setupTestDB(t)

	outcomes := []models.Outcome{
		models.SuccessorCreated("S1"),
		models.NoSuccessorNeeded(),
		models.FailedOutcome("invalid list"),
	}
	for i, o := range outcomes {
		e := newEntry(models.NewFingerprint("T1", ledgerTime.Add(time.Duration(i)*time.Hour)), "e", o)
		e.RecordedAt = ledgerTime.Add(time.Duration(i) * time.Hour)
		if _, _, err := db.RecordOutcome(e); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	all, err := db.ListEntries(nil, 0)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].Outcome.Kind != models.OutcomeFailed {
		t.Errorf("expected newest first, got %s", all[0].Outcome.Kind)
	}

	failed := models.OutcomeFailed
	onlyFailed, err := db.ListEntries(&failed, 0)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(onlyFailed) != 1 || onlyFailed[0].Outcome.Reason != "invalid list" {
		t.Errorf("unexpected failed entries: %+v", onlyFailed)
	}

	limited, err := db.ListEntries(nil, 2)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}

func TestClaimFingerprint(t *testing.T) {
	db := setupTestDB(t)
	fp := models.NewFingerprint("T1", ledgerTime)

	ok, err := db.ClaimFingerprint(fp, "a", ledgerTime, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = db.ClaimFingerprint(fp, "b", ledgerTime.Add(10*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("ClaimFingerprint failed: %v", err)
	}
	if ok {
		t.Error("live claim must not be taken by another owner")
	}

	ok, err = db.ClaimFingerprint(fp, "b", ledgerTime.Add(2*time.Minute), time.Minute)
	if err != nil || !ok {
		t.Errorf("expired claim should be taken over, got (%v, %v)", ok, err)
	}
}

func TestClaimFingerprint_SameOwnerRefused(t *testing.T) {
	db := setupTestDB(t)
	fp := models.NewFingerprint("T1", ledgerTime)

	ok, err := db.ClaimFingerprint(fp, "a", ledgerTime, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = db.ClaimFingerprint(fp, "a", ledgerTime.Add(time.Second), time.Minute)
	if err != nil {
		t.Fatalf("ClaimFingerprint failed: %v", err)
	}
	if ok {
		t.Error("a live claim must refuse a second claim even from the same owner")
	}
}

func TestReleaseClaim(t *testing.T) {
	db := setupTestDB(t)
	fp := models.NewFingerprint("T1", ledgerTime)

	if _, err := db.ClaimFingerprint(fp, "a", ledgerTime, time.Minute); err != nil {
		t.Fatalf("ClaimFingerprint failed: %v", err)
	}
	if err := db.ReleaseClaim(fp, "someone-else"); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}
	if ok, _ := db.ClaimFingerprint(fp, "b", ledgerTime, time.Minute); ok {
		t.Error("release by a non-owner must not drop the claim")
	}

	if err := db.ReleaseClaim(fp, "a"); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}
	if ok, _ := db.ClaimFingerprint(fp, "b", ledgerTime, time.Minute); !ok {
		t.Error("claim should be available after release")
	}
}

func TestRecordOutcome_ReleasesClaim(t *testing.T) {
	db := setupTestDB(t)
	fp := models.NewFingerprint("T1", ledgerTime)

	if _, err := db.ClaimFingerprint(fp, "a", ledgerTime, time.Hour); err != nil {
		t.Fatalf("ClaimFingerprint failed: %v", err)
	}
	if _, _, err := db.RecordOutcome(newEntry(fp, "e1", models.NoSuccessorNeeded())); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	claims, err := db.ListClaims()
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("expected claim to be released, got %+v", claims)
	}
}
