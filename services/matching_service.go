package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
	"github.com/landvest/landvest_backend/utils"
)

// ErrChainIncomplete is returned when an ancestor referenced by the chain
// walk cannot be loaded. The event stays unprocessed and should be
// retried; commissions already written for lower ancestors are safe to
// replay thanks to the income idempotency index.
var ErrChainIncomplete = errors.New("sponsor chain incomplete")

// ErrMatchingDepthExceeded is returned when a sponsor chain is longer
// than MATCHING_MAX_DEPTH. That depth on a binary tree means either a
// corrupted chain with a cycle or a tree far beyond design size; both
// need an operator, not silent truncation.
var ErrMatchingDepthExceeded = errors.New("sponsor chain exceeds maximum depth")

// TreeDirectory is the slice of the member directory the chain walk needs.
type TreeDirectory interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// LedgerStore persists leg ledgers with optimistic concurrency.
type LedgerStore interface {
	GetOrCreate(ctx context.Context, sponsorID primitive.ObjectID) (*models.LegLedger, error)
	Save(ctx context.Context, ledger *models.LegLedger) error
}

// IncomeStore writes commission records idempotently.
type IncomeStore interface {
	Insert(ctx context.Context, record *models.IncomeRecord) (bool, error)
	UpsertCalculated(ctx context.Context, record *models.IncomeRecord) (bool, error)
}

// IncomeNotifier pushes a realtime notification when a user earns income.
type IncomeNotifier interface {
	NotifyIncome(userID string, record *models.IncomeRecord)
}

// SaleApprovedEvent is the unit of work for the matching engine: one
// approved plot sale. Amount is in minor units.
type SaleApprovedEvent struct {
	EventID    string             `json:"eventId"`
	SaleID     primitive.ObjectID `json:"saleId"`
	PlotNumber string             `json:"plotNumber"`
	BuyerID    primitive.ObjectID `json:"buyerId"`
	BuyerName  string             `json:"buyerName"`
	Amount     int64              `json:"amount"`
	SaleDate   time.Time          `json:"saleDate"`
	RetryCount int                `json:"retryCount,omitempty"`
}

// MatchingService runs the commission pipeline for an approved sale: a
// personal-sale commission for the buyer, then one ledger update per
// ancestor up the sponsor chain, matching balanced volume as it goes.
//
// Every step is idempotent, so the whole event can be reprocessed from
// the top after any failure.
type MatchingService struct {
	directory TreeDirectory
	ledgers   LedgerStore
	incomes   IncomeStore
	locker    SponsorLocker
	notifier  IncomeNotifier
	rate      decimal.Decimal
	maxDepth  int
}

func NewMatchingService(directory TreeDirectory, ledgers LedgerStore, incomes IncomeStore, locker SponsorLocker, notifier IncomeNotifier) *MatchingService {
	rate := decimal.NewFromInt(5)
	if v := os.Getenv("COMMISSION_PERCENT"); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil || parsed.IsNegative() {
			log.Printf("Invalid COMMISSION_PERCENT value %q, using 5", v)
		} else {
			rate = parsed
		}
	}

	maxDepth := 10000
	if v := os.Getenv("MATCHING_MAX_DEPTH"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxDepth = parsed
		}
	}

	return &MatchingService{
		directory: directory,
		ledgers:   ledgers,
		incomes:   incomes,
		locker:    locker,
		notifier:  notifier,
		rate:      rate,
		maxDepth:  maxDepth,
	}
}

// CommissionRate returns the configured percentage.
func (s *MatchingService) CommissionRate() decimal.Decimal {
	return s.rate
}

// ProcessSaleApproved credits the buyer's personal commission and walks
// the sponsor chain from the buyer to the root, updating each ancestor's
// ledger. Safe to call again with the same event after a partial failure.
func (s *MatchingService) ProcessSaleApproved(ctx context.Context, event SaleApprovedEvent) error {
	if event.Amount <= 0 {
		return models.ErrInvalidAmount
	}

	buyer, err := s.directory.FindByID(ctx, event.BuyerID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return fmt.Errorf("buyer %s: %w", event.BuyerID.Hex(), ErrChainIncomplete)
		}
		return err
	}

	if err := s.creditPersonalSale(ctx, buyer, event); err != nil {
		return err
	}

	// The walk goes one level at a time: at each ancestor the volume is
	// attributed to the direct child it came up through, not the original
	// purchaser.
	current := buyer
	for depth := 0; current.SponsorID != nil; depth++ {
		if depth >= s.maxDepth {
			return fmt.Errorf("sale %s stopped at depth %d: %w", event.SaleID.Hex(), depth, ErrMatchingDepthExceeded)
		}

		sponsorID := *current.SponsorID
		if err := s.processAncestor(ctx, sponsorID, current, event); err != nil {
			return err
		}

		current, err = s.directory.FindByID(ctx, sponsorID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return fmt.Errorf("ancestor %s: %w", sponsorID.Hex(), ErrChainIncomplete)
			}
			return err
		}
	}
	return nil
}

func (s *MatchingService) creditPersonalSale(ctx context.Context, buyer *models.User, event SaleApprovedEvent) error {
	record := &models.IncomeRecord{
		UserID:               buyer.ID,
		IncomeType:           models.IncomeTypePersonalSale,
		SourceSaleID:         event.SaleID,
		PlotNumber:           event.PlotNumber,
		BuyerID:              event.BuyerID,
		BuyerName:            event.BuyerName,
		LegType:              models.LegTypePersonal,
		SaleAmount:           event.Amount,
		CommissionPercentage: s.rate.String(),
		IncomeAmount:         utils.Percentage(event.Amount, s.rate),
		SaleDate:             event.SaleDate,
	}

	inserted, err := s.incomes.Insert(ctx, record)
	if err != nil {
		return fmt.Errorf("personal sale income for %s: %w", buyer.ID.Hex(), err)
	}
	if inserted {
		s.notify(buyer.ID, record)
	}
	return nil
}

// processAncestor adds the sale fragment to the ancestor's ledger on the
// side the sale came up through, runs matching, and credits any bonus.
//
// Write order matters for crash safety: the income record goes in before
// the ledger is saved. A crash between the two replays as a fresh
// AddSale producing the identical match, whose income write then leaves
// the record untouched. When a version conflict forces a retry inside
// the lock, the recomputed match can carry different numbers than the
// record written by the earlier attempt; the upsert rewrites it so the
// record always agrees with the ledger state that actually got saved.
func (s *MatchingService) processAncestor(ctx context.Context, sponsorID primitive.ObjectID, child *models.User, event SaleApprovedEvent) error {
	release, err := s.locker.Acquire(ctx, "lock:ledger:"+sponsorID.Hex())
	if err != nil {
		return fmt.Errorf("ledger lock for %s: %w", sponsorID.Hex(), err)
	}
	defer release()

	for attempt := 0; attempt < 3; attempt++ {
		ledger, err := s.ledgers.GetOrCreate(ctx, sponsorID)
		if err != nil {
			return err
		}

		added, err := ledger.AddSale(child.Position, models.SaleFragment{
			SaleID:      event.SaleID,
			PlotNumber:  event.PlotNumber,
			BuyerID:     child.ID,
			BuyerName:   child.FullName,
			TotalAmount: event.Amount,
			SaleDate:    event.SaleDate,
		})
		if err != nil {
			return err
		}
		if !added {
			// This ancestor already absorbed the sale on a previous run.
			return nil
		}

		result := ledger.Match()
		if result.Matched {
			record := s.matchingBonusRecord(sponsorID, child.Position, event, result)
			inserted, err := s.incomes.UpsertCalculated(ctx, record)
			if err != nil {
				return fmt.Errorf("matching bonus for %s: %w", sponsorID.Hex(), err)
			}
			ledger.TotalMatchingIncome += record.IncomeAmount
			if inserted {
				s.notify(sponsorID, record)
			}
		}

		err = s.ledgers.Save(ctx, ledger)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrConcurrentModification) {
			return err
		}
		// Stale read despite the lock (a previous holder's write landed
		// after our load). Reload and redo the whole step.
	}
	return fmt.Errorf("ledger for %s: %w", sponsorID.Hex(), repositories.ErrConcurrentModification)
}

func (s *MatchingService) matchingBonusRecord(sponsorID primitive.ObjectID, position string, event SaleApprovedEvent, result models.MatchResult) *models.IncomeRecord {
	paired := make([]models.ConsumedSlice, 0, len(result.LeftConsumed)+len(result.RightConsumed))
	paired = append(paired, result.LeftConsumed...)
	paired = append(paired, result.RightConsumed...)

	return &models.IncomeRecord{
		UserID:               sponsorID,
		IncomeType:           models.IncomeTypeMatchingBonus,
		SourceSaleID:         event.SaleID,
		PlotNumber:           event.PlotNumber,
		BuyerID:              event.BuyerID,
		BuyerName:            event.BuyerName,
		LegType:              position,
		SaleAmount:           event.Amount,
		BalancedAmount:       result.MatchedAmount,
		CommissionPercentage: s.rate.String(),
		IncomeAmount:         utils.Percentage(result.MatchedAmount, s.rate),
		PairedFragments:      paired,
		SaleDate:             event.SaleDate,
	}
}

func (s *MatchingService) notify(userID primitive.ObjectID, record *models.IncomeRecord) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyIncome(userID.Hex(), record)
}
