package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"taskforge/backend/internal/lock"
)

// HTTPPaymentClient is an HTTP implementation of the PaymentClient
// interface. When a lock manager is provided, escrow-moving calls are
// guarded by a named distributed lock because the payment provider sits
// outside the database transaction.
type HTTPPaymentClient struct {
	url   string
	locks *lock.Manager
}

// NewHTTPPaymentClient creates a new HTTPPaymentClient. locks may be nil.
func NewHTTPPaymentClient(url string, locks *lock.Manager) *HTTPPaymentClient {
	return &HTTPPaymentClient{url: url, locks: locks}
}

const escrowLockTTL = 30 * time.Second

func (c *HTTPPaymentClient) withEscrowLock(ctx context.Context, escrowID string, fn func() error) error {
	if c.locks == nil {
		return fn()
	}
	name := "escrow:" + escrowID
	owner, ok, err := c.locks.Acquire(ctx, name, escrowLockTTL)
	if err != nil {
		return fmt.Errorf("acquire escrow lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("escrow %s is locked by a concurrent payment call", escrowID)
	}
	defer func() {
		_, _ = c.locks.Release(context.WithoutCancel(ctx), name, owner)
	}()
	return fn()
}

func (c *HTTPPaymentClient) post(ctx context.Context, path string, body any, out any) error {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+path, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return nil
}

// FundEscrow charges the company and returns the provider reference.
func (c *HTTPPaymentClient) FundEscrow(ctx context.Context, escrowID string, grossCents int64) (string, error) {
	var ref string
	err := c.withEscrowLock(ctx, escrowID, func() error {
		var result struct {
			Reference string `json:"reference"`
		}
		if err := c.post(ctx, "/escrows/fund", map[string]any{
			"escrow_id":   escrowID,
			"gross_cents": grossCents,
		}, &result); err != nil {
			return err
		}
		ref = result.Reference
		return nil
	})
	return ref, err
}

// ReleaseToPayout moves the net amount to the contractor payout.
func (c *HTTPPaymentClient) ReleaseToPayout(ctx context.Context, escrowID string, netCents int64, payoutID string) error {
	return c.withEscrowLock(ctx, escrowID, func() error {
		return c.post(ctx, "/escrows/release", map[string]any{
			"escrow_id": escrowID,
			"net_cents": netCents,
			"payout_id": payoutID,
		}, nil)
	})
}

// RefundEscrow returns the held funds to the company.
func (c *HTTPPaymentClient) RefundEscrow(ctx context.Context, escrowID string) error {
	return c.withEscrowLock(ctx, escrowID, func() error {
		return c.post(ctx, "/escrows/refund", map[string]any{
			"escrow_id": escrowID,
		}, nil)
	})
}
