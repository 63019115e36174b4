package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/landvest/landvest_backend/models"
)

const (
	saleRetryQueueKey = "queue:sale-retry"
	saleDeadLetterKey = "queue:sale-dead-letter"
)

// SaleQueue is the retry channel for sale events that could not finish.
// Events are JSON blobs on a Redis list; the worker blocks on BRPOP and
// reprocesses them through the same idempotent pipeline. An event is
// never dropped: failures go back on the list with a bounded retry
// count, and events that exhaust it (or that no retry can fix) land on a
// dead-letter list for manual reconciliation.
type SaleQueue struct {
	client     *redis.Client
	maxRetries int
}

func NewSaleQueue(client *redis.Client) *SaleQueue {
	maxRetries := 10
	if v := os.Getenv("SALE_RETRY_LIMIT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxRetries = parsed
		}
	}
	return &SaleQueue{client: client, maxRetries: maxRetries}
}

// Enqueue pushes the event for later reprocessing, assigning an event id
// if the caller did not.
func (q *SaleQueue) Enqueue(ctx context.Context, event SaleApprovedEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, saleRetryQueueKey, payload).Err()
}

// DeadLetter parks the event on the dead-letter list. Entries there
// represent commissions that need an operator before they can be
// re-driven.
func (q *SaleQueue) DeadLetter(ctx context.Context, event SaleApprovedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, saleDeadLetterKey, payload).Err()
}

type saleDisposition int

const (
	saleDone saleDisposition = iota
	saleRequeue
	saleDeadLettered
)

// disposition classifies one processing attempt. Invalid amounts and
// over-deep chains cannot succeed no matter how often they are retried;
// everything else (chain gaps, lock contention, storage errors) is
// transient and goes back on the queue until the retry budget runs out.
func (q *SaleQueue) disposition(err error, retryCount int) saleDisposition {
	if err == nil {
		return saleDone
	}
	if errors.Is(err, models.ErrInvalidAmount) || errors.Is(err, ErrMatchingDepthExceeded) {
		return saleDeadLettered
	}
	if retryCount >= q.maxRetries {
		return saleDeadLettered
	}
	return saleRequeue
}

// Run consumes the retry queue until ctx is cancelled.
func (q *SaleQueue) Run(ctx context.Context, matcher *MatchingService) {
	log.Println("Sale retry worker started")
	for {
		if ctx.Err() != nil {
			log.Println("Sale retry worker stopped")
			return
		}

		result, err := q.client.BRPop(ctx, 5*time.Second, saleRetryQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			log.Printf("Sale retry worker: BRPOP error: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var event SaleApprovedEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			log.Printf("Sale retry worker: parking malformed payload on dead letter: %v", err)
			q.client.LPush(ctx, saleDeadLetterKey, result[1])
			continue
		}

		processCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		err = matcher.ProcessSaleApproved(processCtx, event)
		cancel()

		switch q.disposition(err, event.RetryCount) {
		case saleDone:
			log.Printf("Sale retry worker: event %s for sale %s completed", event.EventID, event.SaleID.Hex())
		case saleRequeue:
			event.RetryCount++
			log.Printf("Sale retry worker: event %s attempt %d/%d failed, requeueing: %v",
				event.EventID, event.RetryCount, q.maxRetries, err)
			time.Sleep(5 * time.Second)
			if enqueueErr := q.Enqueue(ctx, event); enqueueErr != nil {
				log.Printf("Sale retry worker: requeue failed for event %s, parking on dead letter: %v", event.EventID, enqueueErr)
				if dlErr := q.DeadLetter(ctx, event); dlErr != nil {
					log.Printf("Sale retry worker: dead letter failed for event %s: %v", event.EventID, dlErr)
				}
			}
		case saleDeadLettered:
			log.Printf("Sale retry worker: event %s for sale %s moved to dead letter: %v",
				event.EventID, event.SaleID.Hex(), err)
			if dlErr := q.DeadLetter(ctx, event); dlErr != nil {
				log.Printf("Sale retry worker: dead letter failed for event %s: %v", event.EventID, dlErr)
			}
		}
	}
}
