package payment

import (
	"context"

	"github.com/google/uuid"
)

// AutoApprove approves every charge.  It is the provider used when no
// gateway URL is configured.
type AutoApprove struct{}

func (AutoApprove) Charge(ctx context.Context, _ ChargeRequest) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, &ProviderError{Code: CodeAbandoned, Err: err}
	}
	return Receipt{Reference: "auto-" + uuid.NewString()}, nil
}

func (AutoApprove) Refund(context.Context, string, int64) error { return nil }
