package state

import (
	"testing"
	"time"
)

var budgetTime = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestBudgetCounter_CreatesPeriod(t *testing.T) {
	db := setupTestDB(t)

	c, err := db.BudgetCounter("2026-03", 5, budgetTime)
	if err != nil {
		t.Fatalf("BudgetCounter failed: %v", err)
	}
	if c.Period != "2026-03" || c.Spent != 0 || c.Cap != 5 {
		t.Errorf("counter = %+v", c)
	}
}

func TestChargeBudget_StopsAtCap(t *testing.T) {
	db := setupTestDB(t)

	ok, spent, err := db.ChargeBudget("2026-03", 3, 5, budgetTime)
	if err != nil || !ok || spent != 3 {
		t.Fatalf("first charge = (%v, %v, %v)", ok, spent, err)
	}

	// Below cap before the charge, so it is accepted even though it overshoots.
	ok, spent, err = db.ChargeBudget("2026-03", 3, 5, budgetTime)
	if err != nil || !ok || spent != 6 {
		t.Fatalf("second charge = (%v, %v, %v)", ok, spent, err)
	}

	ok, spent, err = db.ChargeBudget("2026-03", 0.01, 5, budgetTime)
	if err != nil {
		t.Fatalf("ChargeBudget failed: %v", err)
	}
	if ok {
		t.Error("charge at or above cap must be refused")
	}
	if spent != 6 {
		t.Errorf("refused charge changed spend to %v", spent)
	}
}

func TestChargeBudget_PeriodsAreIndependent(t *testing.T) {
	db := setupTestDB(t)

	db.ChargeBudget("2026-03", 10, 5, budgetTime)
	ok, spent, err := db.ChargeBudget("2026-04", 1, 5, budgetTime.AddDate(0, 1, 0))
	if err != nil || !ok || spent != 1 {
		t.Errorf("new period charge = (%v, %v, %v), want (true, 1, nil)", ok, spent, err)
	}
}

func TestAdjustBudget(t *testing.T) {
	db := setupTestDB(t)

	db.ChargeBudget("2026-03", 1, 5, budgetTime)
	spent, err := db.AdjustBudget("2026-03", 0.5, 5, budgetTime)
	if err != nil || spent != 1.5 {
		t.Fatalf("AdjustBudget = (%v, %v), want (1.5, nil)", spent, err)
	}

	spent, err = db.AdjustBudget("2026-03", -10, 5, budgetTime)
	if err != nil || spent != 0 {
		t.Errorf("AdjustBudget = (%v, %v), want spend clamped at 0", spent, err)
	}
}

func TestListBudgetCounters(t *testing.T) {
	db := setupTestDB(t)

	db.BudgetCounter("2026-02", 5, budgetTime)
	db.BudgetCounter("2026-03", 5, budgetTime)

	counters, err := db.ListBudgetCounters()
	if err != nil {
		t.Fatalf("ListBudgetCounters failed: %v", err)
	}
	if len(counters) != 2 || counters[0].Period != "2026-03" {
		t.Errorf("counters = %+v, want newest first", counters)
	}
}
