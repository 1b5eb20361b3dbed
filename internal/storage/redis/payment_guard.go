package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"binary-comp-engine/internal/storage"
)

const paymentRefKeyPrefix = "binary:payment_ref:"

// PaymentRefGuard claims payment references with SETNX so a replayed
// payment is rejected before it reaches the database.
type PaymentRefGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPaymentRefGuard creates a guard. A zero ttl keeps claims forever.
func NewPaymentRefGuard(client *redis.Client, ttl time.Duration) *PaymentRefGuard {
	return &PaymentRefGuard{client: client, ttl: ttl}
}

// Compile-time interface check.
var _ storage.PaymentRefGuard = (*PaymentRefGuard)(nil)

// Claim records ref. Returns false if it was already claimed.
func (g *PaymentRefGuard) Claim(ctx context.Context, ref string) (bool, error) {
	ok, err := g.client.SetNX(ctx, paymentRefKeyPrefix+ref, time.Now().UnixMilli(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim payment ref: %w", err)
	}
	return ok, nil
}

// Release forgets ref so a failed investment can be re-driven.
func (g *PaymentRefGuard) Release(ctx context.Context, ref string) error {
	if err := g.client.Del(ctx, paymentRefKeyPrefix+ref).Err(); err != nil {
		return fmt.Errorf("release payment ref: %w", err)
	}
	return nil
}
