// models/leg_ledger.go
package models

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidAmount is returned when a sale carries a non-positive amount.
var ErrInvalidAmount = errors.New("sale amount must be positive")

// SaleFragment is one sale's contribution to a leg. UsedAmount only ever
// grows; fragments are never removed, fully consumed ones stay for audit.
// All amounts are minor units (paise).
type SaleFragment struct {
	SaleID          primitive.ObjectID `json:"saleId" bson:"saleId"`
	PlotNumber      string             `json:"plotNumber" bson:"plotNumber"`
	BuyerID         primitive.ObjectID `json:"buyerId" bson:"buyerId"`
	BuyerName       string             `json:"buyerName" bson:"buyerName"`
	TotalAmount     int64              `json:"totalAmount" bson:"totalAmount"`
	UsedAmount      int64              `json:"usedAmount" bson:"usedAmount"`
	RemainingAmount int64              `json:"remainingAmount" bson:"remainingAmount"`
	SaleDate        time.Time          `json:"saleDate" bson:"saleDate"`
}

// Leg holds one side's sale fragments in insertion order, which is also the
// FIFO consumption order. AvailableBalance always equals the sum of the
// fragments' RemainingAmount.
type Leg struct {
	TotalSales       int64          `json:"totalSales" bson:"totalSales"`
	MatchedAmount    int64          `json:"matchedAmount" bson:"matchedAmount"`
	AvailableBalance int64          `json:"availableBalance" bson:"availableBalance"`
	UnmatchedSales   []SaleFragment `json:"unmatchedSales" bson:"unmatchedSales"`
}

// LegLedger is the per-sponsor carry-forward record. One document per
// sponsor, created lazily on the first sale reaching their subtree.
type LegLedger struct {
	ID                  primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	SponsorID           primitive.ObjectID `json:"sponsorId" bson:"sponsorId"`
	LeftLeg             Leg                `json:"leftLeg" bson:"leftLeg"`
	RightLeg            Leg                `json:"rightLeg" bson:"rightLeg"`
	TotalMatchedAmount  int64              `json:"totalMatchedAmount" bson:"totalMatchedAmount"`
	TotalMatchingIncome int64              `json:"totalMatchingIncome" bson:"totalMatchingIncome"`
	MatchingCount       int64              `json:"matchingCount" bson:"matchingCount"`
	LastMatchedDate     *time.Time         `json:"lastMatchedDate,omitempty" bson:"lastMatchedDate,omitempty"`
	Version             int64              `json:"-" bson:"version"`
	CreatedAt           time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ConsumedSlice records how much of a fragment one match consumed, for
// income-record attribution.
type ConsumedSlice struct {
	SaleID          primitive.ObjectID `json:"saleId" bson:"saleId"`
	PlotNumber      string             `json:"plotNumber" bson:"plotNumber"`
	BuyerID         primitive.ObjectID `json:"buyerId" bson:"buyerId"`
	BuyerName       string             `json:"buyerName" bson:"buyerName"`
	Leg             string             `json:"leg" bson:"leg"`
	AmountUsed      int64              `json:"amountUsed" bson:"amountUsed"`
	RemainingAmount int64              `json:"remainingAmount" bson:"remainingAmount"`
	SaleDate        time.Time          `json:"saleDate" bson:"saleDate"`
}

// MatchResult is the outcome of one Match call.
type MatchResult struct {
	Matched       bool            `json:"matched"`
	MatchedAmount int64           `json:"matchedAmount"`
	LeftConsumed  []ConsumedSlice `json:"leftConsumed"`
	RightConsumed []ConsumedSlice `json:"rightConsumed"`
}

// NewLegLedger returns an empty ledger for a sponsor.
func NewLegLedger(sponsorID primitive.ObjectID) *LegLedger {
	now := time.Now()
	return &LegLedger{
		SponsorID: sponsorID,
		LeftLeg:   Leg{UnmatchedSales: []SaleFragment{}},
		RightLeg:  Leg{UnmatchedSales: []SaleFragment{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (l *LegLedger) leg(position string) (*Leg, error) {
	switch position {
	case PositionLeft:
		return &l.LeftLeg, nil
	case PositionRight:
		return &l.RightLeg, nil
	default:
		return nil, fmt.Errorf("unknown leg position %q", position)
	}
}

// HasSale reports whether a fragment from the given source sale already
// exists on either leg. A sale passes through each ancestor exactly once, so
// this is the idempotency check for event redelivery.
func (l *LegLedger) HasSale(saleID primitive.ObjectID) bool {
	for _, leg := range []*Leg{&l.LeftLeg, &l.RightLeg} {
		for i := range leg.UnmatchedSales {
			if leg.UnmatchedSales[i].SaleID == saleID {
				return true
			}
		}
	}
	return false
}

// AddSale appends a fragment to the named leg and bumps the leg's totals.
// Returns false without mutation when a fragment with the same source sale id
// is already present (replayed event).
func (l *LegLedger) AddSale(position string, fragment SaleFragment) (bool, error) {
	if fragment.TotalAmount <= 0 {
		return false, ErrInvalidAmount
	}
	leg, err := l.leg(position)
	if err != nil {
		return false, err
	}
	if l.HasSale(fragment.SaleID) {
		return false, nil
	}

	fragment.UsedAmount = 0
	fragment.RemainingAmount = fragment.TotalAmount
	leg.UnmatchedSales = append(leg.UnmatchedSales, fragment)
	leg.TotalSales += fragment.TotalAmount
	leg.AvailableBalance += fragment.TotalAmount
	l.UpdatedAt = time.Now()
	return true, nil
}

// Match consumes min(left, right) available balance from both legs, oldest
// fragments first, and records every consumed slice. After a match the
// cumulative matched amounts of the two legs stay equal.
func (l *LegLedger) Match() MatchResult {
	matchAmount := l.LeftLeg.AvailableBalance
	if l.RightLeg.AvailableBalance < matchAmount {
		matchAmount = l.RightLeg.AvailableBalance
	}
	if matchAmount <= 0 {
		return MatchResult{Matched: false}
	}

	leftConsumed := consumeFIFO(&l.LeftLeg, PositionLeft, matchAmount)
	rightConsumed := consumeFIFO(&l.RightLeg, PositionRight, matchAmount)

	l.TotalMatchedAmount += matchAmount
	l.MatchingCount++
	now := time.Now()
	l.LastMatchedDate = &now
	l.UpdatedAt = now

	return MatchResult{
		Matched:       true,
		MatchedAmount: matchAmount,
		LeftConsumed:  leftConsumed,
		RightConsumed: rightConsumed,
	}
}

// consumeFIFO walks the leg's fragments in insertion order and uses up
// `needed` from their remaining amounts.
func consumeFIFO(leg *Leg, position string, needed int64) []ConsumedSlice {
	consumed := []ConsumedSlice{}
	remaining := needed
	for i := range leg.UnmatchedSales {
		if remaining <= 0 {
			break
		}
		frag := &leg.UnmatchedSales[i]
		if frag.RemainingAmount <= 0 {
			continue
		}
		use := frag.RemainingAmount
		if remaining < use {
			use = remaining
		}
		frag.UsedAmount += use
		frag.RemainingAmount -= use
		remaining -= use

		consumed = append(consumed, ConsumedSlice{
			SaleID:          frag.SaleID,
			PlotNumber:      frag.PlotNumber,
			BuyerID:         frag.BuyerID,
			BuyerName:       frag.BuyerName,
			Leg:             position,
			AmountUsed:      use,
			RemainingAmount: frag.RemainingAmount,
			SaleDate:        frag.SaleDate,
		})
	}
	leg.MatchedAmount += needed - remaining
	leg.AvailableBalance -= needed - remaining
	return consumed
}

// UnmatchedFragments returns the leg's fragments that still carry balance.
func (l *LegLedger) UnmatchedFragments(position string) ([]SaleFragment, error) {
	leg, err := l.leg(position)
	if err != nil {
		return nil, err
	}
	out := []SaleFragment{}
	for _, frag := range leg.UnmatchedSales {
		if frag.RemainingAmount > 0 {
			out = append(out, frag)
		}
	}
	return out, nil
}

// CarryForward reports which leg carries surplus balance and how much.
func (l *LegLedger) CarryForward() (leg string, amount int64) {
	if l.LeftLeg.AvailableBalance > l.RightLeg.AvailableBalance {
		return PositionLeft, l.LeftLeg.AvailableBalance - l.RightLeg.AvailableBalance
	}
	if l.RightLeg.AvailableBalance > l.LeftLeg.AvailableBalance {
		return PositionRight, l.RightLeg.AvailableBalance - l.LeftLeg.AvailableBalance
	}
	return "none", 0
}

// LegSummary is the lightweight reporting view of a ledger.
type LegSummary struct {
	SponsorID           primitive.ObjectID `json:"sponsorId"`
	LeftTotal           int64              `json:"leftTotal"`
	LeftMatched         int64              `json:"leftMatched"`
	LeftAvailable       int64              `json:"leftAvailable"`
	RightTotal          int64              `json:"rightTotal"`
	RightMatched        int64              `json:"rightMatched"`
	RightAvailable      int64              `json:"rightAvailable"`
	TotalMatchedAmount  int64              `json:"totalMatchedAmount"`
	TotalMatchingIncome int64              `json:"totalMatchingIncome"`
	MatchingCount       int64              `json:"matchingCount"`
	CarryForwardLeg     string             `json:"carryForwardLeg"`
	CarryForwardAmount  int64              `json:"carryForwardAmount"`
	LastMatchedDate     *time.Time         `json:"lastMatchedDate,omitempty"`
}

// Summary builds the reporting view.
func (l *LegLedger) Summary() LegSummary {
	cfLeg, cfAmount := l.CarryForward()
	return LegSummary{
		SponsorID:           l.SponsorID,
		LeftTotal:           l.LeftLeg.TotalSales,
		LeftMatched:         l.LeftLeg.MatchedAmount,
		LeftAvailable:       l.LeftLeg.AvailableBalance,
		RightTotal:          l.RightLeg.TotalSales,
		RightMatched:        l.RightLeg.MatchedAmount,
		RightAvailable:      l.RightLeg.AvailableBalance,
		TotalMatchedAmount:  l.TotalMatchedAmount,
		TotalMatchingIncome: l.TotalMatchingIncome,
		MatchingCount:       l.MatchingCount,
		CarryForwardLeg:     cfLeg,
		CarryForwardAmount:  cfAmount,
		LastMatchedDate:     l.LastMatchedDate,
	}
}
