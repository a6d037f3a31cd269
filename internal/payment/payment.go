// Package payment defines the payment provider collaborator and the
// providers shipped with the service.
package payment

import (
	"context"
	"errors"
	"fmt"
)

// ErrProvider matches every *ProviderError with errors.Is.
var ErrProvider = errors.New("payment provider error")

// ProviderError reports a declined, failed, timed out or abandoned charge.
// The booking it belonged to is always cancelled before the error reaches
// the caller.
type ProviderError struct {
	Code string // declined, unavailable, timeout, abandoned
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "payment " + e.Code
	}
	return fmt.Sprintf("payment %s: %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// Provider error codes.
const (
	CodeDeclined    = "declined"
	CodeUnavailable = "unavailable"
	CodeTimeout     = "timeout"
	CodeAbandoned   = "abandoned"
)

// ChargeRequest is one monetary charge.  IdempotencyKey is stable for a
// booking so a retried charge is not billed twice.
type ChargeRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	BookingRef     string `json:"booking_reference"`
	UserID         uint64 `json:"user_id"`
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
}

// Receipt is returned by a successful charge.
type Receipt struct {
	Reference string `json:"reference"`
}

// Provider charges customers.  Charge returns a *ProviderError for a
// declined or failed charge and must honour ctx cancellation.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
}

// Refunder is implemented by providers that can return a captured charge.
type Refunder interface {
	Refund(ctx context.Context, reference string, amount int64) error
}
