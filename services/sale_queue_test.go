package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/landvest/landvest_backend/models"
	"github.com/landvest/landvest_backend/repositories"
)

func TestDispositionClassifiesOutcomes(t *testing.T) {
	q := &SaleQueue{maxRetries: 10}

	tests := []struct {
		name       string
		err        error
		retryCount int
		want       saleDisposition
	}{
		{"success", nil, 0, saleDone},
		{"chain gap", fmt.Errorf("ancestor x: %w", ErrChainIncomplete), 0, saleRequeue},
		{"storage conflict", fmt.Errorf("ledger for x: %w", repositories.ErrConcurrentModification), 0, saleRequeue},
		{"lock contention", fmt.Errorf("ledger lock for x: %w", ErrLockNotAcquired), 0, saleRequeue},
		{"plain io error", errors.New("connection reset"), 0, saleRequeue},
		{"invalid amount", models.ErrInvalidAmount, 0, saleDeadLettered},
		{"depth exceeded", fmt.Errorf("sale x stopped: %w", ErrMatchingDepthExceeded), 0, saleDeadLettered},
		{"budget exhausted", fmt.Errorf("ancestor x: %w", ErrChainIncomplete), 10, saleDeadLettered},
		{"last budgeted attempt", errors.New("flaky"), 9, saleRequeue},
	}

	for _, tt := range tests {
		if got := q.disposition(tt.err, tt.retryCount); got != tt.want {
			t.Errorf("%s: disposition = %d, want %d", tt.name, got, tt.want)
		}
	}
}

// saveErrorLedgerStore rejects every save with the configured error.
type saveErrorLedgerStore struct {
	err error
}

func (s *saveErrorLedgerStore) GetOrCreate(_ context.Context, sponsorID primitive.ObjectID) (*models.LegLedger, error) {
	return models.NewLegLedger(sponsorID), nil
}

func (s *saveErrorLedgerStore) Save(context.Context, *models.LegLedger) error {
	return s.err
}

func TestTransientStorageFailureIsRequeuedNotDropped(t *testing.T) {
	tree, _, _, b, _ := buildTestTree()
	ledgers := &saveErrorLedgerStore{err: errors.New("mongo: socket closed")}
	svc := NewMatchingService(tree, ledgers, newFakeIncomeStore(), noopLocker{}, nil)

	err := svc.ProcessSaleApproved(context.Background(), saleEvent(b, 100_000_00))
	if err == nil {
		t.Fatal("expected a storage failure")
	}
	if errors.Is(err, ErrChainIncomplete) {
		t.Fatalf("storage failure reported as chain gap: %v", err)
	}

	// The failure classifies as retryable, so the event survives.
	q := &SaleQueue{maxRetries: 10}
	if got := q.disposition(err, 0); got != saleRequeue {
		t.Fatalf("disposition = %d, want requeue", got)
	}
	if got := q.disposition(err, 10); got != saleDeadLettered {
		t.Fatalf("exhausted disposition = %d, want dead letter", got)
	}
}
