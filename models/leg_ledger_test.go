package models

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func fragment(amount int64) SaleFragment {
	return SaleFragment{
		SaleID:      primitive.NewObjectID(),
		PlotNumber:  "101",
		BuyerID:     primitive.NewObjectID(),
		BuyerName:   "Test Buyer",
		TotalAmount: amount,
		SaleDate:    time.Now(),
	}
}

func mustAddSale(t *testing.T, ledger *LegLedger, position string, frag SaleFragment) {
	t.Helper()
	added, err := ledger.AddSale(position, frag)
	if err != nil {
		t.Fatalf("AddSale(%s, %d): %v", position, frag.TotalAmount, err)
	}
	if !added {
		t.Fatalf("AddSale(%s, %d): unexpectedly skipped as duplicate", position, frag.TotalAmount)
	}
}

func TestAddSaleRejectsNonPositiveAmounts(t *testing.T) {
	ledger := NewLegLedger(primitive.NewObjectID())

	for _, amount := range []int64{0, -100} {
		_, err := ledger.AddSale(PositionLeft, fragment(amount))
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("AddSale with amount %d: got %v, want ErrInvalidAmount", amount, err)
		}
	}
	if ledger.LeftLeg.TotalSales != 0 {
		t.Errorf("rejected sale mutated the leg: TotalSales = %d", ledger.LeftLeg.TotalSales)
	}
}

func TestAddSaleRejectsUnknownPosition(t *testing.T) {
	ledger := NewLegLedger(primitive.NewObjectID())
	if _, err := ledger.AddSale("middle", fragment(100)); err == nil {
		t.Fatal("AddSale with unknown position succeeded")
	}
}

func TestAddSaleSkipsDuplicateSaleID(t *testing.T) {
	ledger := NewLegLedger(primitive.NewObjectID())
	frag := fragment(100_00)

	mustAddSale(t, ledger, PositionLeft, frag)

	// Same sale replayed, even on the other leg, must be a no-op.
	for _, position := range []string{PositionLeft, PositionRight} {
		added, err := ledger.AddSale(position, frag)
		if err != nil {
			t.Fatalf("replayed AddSale(%s): %v", position, err)
		}
		if added {
			t.Errorf("replayed AddSale(%s) was not skipped", position)
		}
	}
	if ledger.LeftLeg.TotalSales != 100_00 {
		t.Errorf("LeftLeg.TotalSales = %d, want %d", ledger.LeftLeg.TotalSales, 100_00)
	}
}

func TestMatchWithOneEmptyLeg(t *testing.T) {
	ledger := NewLegLedger(primitive.NewObjectID())
	mustAddSale(t, ledger, PositionLeft, fragment(500_00))

	result := ledger.Match()
	if result.Matched {
		t.Fatal("Match with an empty right leg reported a match")
	}
	if ledger.LeftLeg.AvailableBalance != 500_00 {
		t.Errorf("left balance changed to %d on a no-op match", ledger.LeftLeg.AvailableBalance)
	}
}

func TestMatchConsumesFIFO(t *testing.T) {
	ledger := NewLegLedger(primitive.NewObjectID())

	fragA := fragment(100_00)
	fragB := fragment(50_00)
	mustAddSale(t, ledger, PositionLeft, fragA)
	mustAddSale(t, ledger, PositionLeft, fragB)
	mustAddSale(t, ledger, PositionRight, fragment(120_00))

	result := ledger.Match()
	if !result.Matched {
		t.Fatal("Match reported no match")
	}
	if result.MatchedAmount != 120_00 {
		t.Fatalf("MatchedAmount = %d, want %d", result.MatchedAmount, 120_00)
	}

	// Oldest fragment drains fully before the next one is touched.
	if got := ledger.LeftLeg.UnmatchedSales[0].RemainingAmount; got != 0 {
		t.Errorf("fragment A remaining = %d, want 0", got)
	}
	if got := ledger.LeftLeg.UnmatchedSales[1].RemainingAmount; got != 30_00 {
		t.Errorf("fragment B remaining = %d, want %d", got, 30_00)
	}

	if len(result.LeftConsumed) != 2 {
		t.Fatalf("LeftConsumed has %d slices, want 2", len(result.LeftConsumed))
	}
	if result.LeftConsumed[0].SaleID != fragA.SaleID || result.LeftConsumed[0].AmountUsed != 100_00 {
		t.Errorf("first consumed slice = %+v, want sale A fully used", result.LeftConsumed[0])
	}
	if result.LeftConsumed[1].SaleID != fragB.SaleID || result.LeftConsumed[1].AmountUsed != 20_00 {
		t.Errorf("second consumed slice = %+v, want 2000 of sale B", result.LeftConsumed[1])
	}
}

func TestMatchKeepsLegsBalanced(t *testing.T) {
	ledger := NewLegLedger(primitive.NewObjectID())

	amounts := []struct {
		position string
		amount   int64
	}{
		{PositionLeft, 300_00},
		{PositionRight, 100_00},
		{PositionRight, 250_00},
		{PositionLeft, 80_00},
		{PositionRight, 40_00},
	}
	for _, step := range amounts {
		mustAddSale(t, ledger, step.position, fragment(step.amount))
		ledger.Match()

		if ledger.LeftLeg.MatchedAmount != ledger.RightLeg.MatchedAmount {
			t.Fatalf("legs diverged after %+v: left matched %d, right matched %d",
				step, ledger.LeftLeg.MatchedAmount, ledger.RightLeg.MatchedAmount)
		}
		if ledger.LeftLeg.AvailableBalance < 0 || ledger.RightLeg.AvailableBalance < 0 {
			t.Fatalf("negative balance after %+v: left %d, right %d",
				step, ledger.LeftLeg.AvailableBalance, ledger.RightLeg.AvailableBalance)
		}
		for _, leg := range []*Leg{&ledger.LeftLeg, &ledger.RightLeg} {
			var sum int64
			for _, frag := range leg.UnmatchedSales {
				sum += frag.RemainingAmount
			}
			if sum != leg.AvailableBalance {
				t.Fatalf("fragment sum %d != AvailableBalance %d after %+v", sum, leg.AvailableBalance, step)
			}
		}
	}

	// 380 on the left, 390 on the right: everything but 10 matches.
	if ledger.TotalMatchedAmount != 380_00 {
		t.Errorf("TotalMatchedAmount = %d, want %d", ledger.TotalMatchedAmount, 380_00)
	}
	cfLeg, cfAmount := ledger.CarryForward()
	if cfLeg != PositionRight || cfAmount != 10_00 {
		t.Errorf("CarryForward = (%s, %d), want (right, %d)", cfLeg, cfAmount, 10_00)
	}
}

func TestCarryForwardAcrossSales(t *testing.T) {
	ledger := NewLegLedger(primitive.NewObjectID())

	// 2,00,000 on the left, then 1,50,000 on the right.
	mustAddSale(t, ledger, PositionLeft, fragment(200_000_00))
	if result := ledger.Match(); result.Matched {
		t.Fatal("match fired with an empty right leg")
	}

	mustAddSale(t, ledger, PositionRight, fragment(150_000_00))
	result := ledger.Match()
	if !result.Matched || result.MatchedAmount != 150_000_00 {
		t.Fatalf("Match = %+v, want matched amount %d", result, 150_000_00)
	}

	cfLeg, cfAmount := ledger.CarryForward()
	if cfLeg != PositionLeft || cfAmount != 50_000_00 {
		t.Fatalf("CarryForward = (%s, %d), want (left, %d)", cfLeg, cfAmount, 50_000_00)
	}

	// The surplus stays matchable: a later right-side sale consumes it.
	mustAddSale(t, ledger, PositionRight, fragment(50_000_00))
	result = ledger.Match()
	if !result.Matched || result.MatchedAmount != 50_000_00 {
		t.Fatalf("carry-forward match = %+v, want matched amount %d", result, 50_000_00)
	}
	if leg, amount := ledger.CarryForward(); leg != "none" || amount != 0 {
		t.Errorf("CarryForward after full consumption = (%s, %d), want (none, 0)", leg, amount)
	}
	if ledger.MatchingCount != 2 {
		t.Errorf("MatchingCount = %d, want 2", ledger.MatchingCount)
	}
}

func TestUnmatchedFragmentsFiltersConsumed(t *testing.T) {
	ledger := NewLegLedger(primitive.NewObjectID())

	mustAddSale(t, ledger, PositionLeft, fragment(100_00))
	mustAddSale(t, ledger, PositionLeft, fragment(60_00))
	mustAddSale(t, ledger, PositionRight, fragment(100_00))
	ledger.Match()

	fragments, err := ledger.UnmatchedFragments(PositionLeft)
	if err != nil {
		t.Fatal(err)
	}
	if len(fragments) != 1 {
		t.Fatalf("got %d unmatched fragments, want 1", len(fragments))
	}
	if fragments[0].RemainingAmount != 60_00 {
		t.Errorf("remaining = %d, want %d", fragments[0].RemainingAmount, 60_00)
	}

	// The drained fragment stays on the leg itself for audit.
	if len(ledger.LeftLeg.UnmatchedSales) != 2 {
		t.Errorf("leg holds %d fragments, want 2", len(ledger.LeftLeg.UnmatchedSales))
	}
}

func TestSummary(t *testing.T) {
	sponsorID := primitive.NewObjectID()
	ledger := NewLegLedger(sponsorID)
	mustAddSale(t, ledger, PositionLeft, fragment(300_00))
	mustAddSale(t, ledger, PositionRight, fragment(100_00))
	ledger.Match()

	summary := ledger.Summary()
	if summary.SponsorID != sponsorID {
		t.Errorf("SponsorID = %s, want %s", summary.SponsorID.Hex(), sponsorID.Hex())
	}
	if summary.LeftAvailable != 200_00 || summary.RightAvailable != 0 {
		t.Errorf("available = (%d, %d), want (%d, 0)", summary.LeftAvailable, summary.RightAvailable, 200_00)
	}
	if summary.CarryForwardLeg != PositionLeft || summary.CarryForwardAmount != 200_00 {
		t.Errorf("carry forward = (%s, %d), want (left, %d)", summary.CarryForwardLeg, summary.CarryForwardAmount, 200_00)
	}
	if summary.LastMatchedDate == nil {
		t.Error("LastMatchedDate not set after a match")
	}
}
