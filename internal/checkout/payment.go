package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrPaymentDeclined is returned by collaborators that refuse a charge.
var ErrPaymentDeclined = errors.New("payment declined")

// PaymentRequest is what the payment collaborator is asked to authorize.
type PaymentRequest struct {
	SessionID  string
	ProviderID string
	Amount     float64
	Instrument Instrument
}

// PaymentCollaborator authorizes a charge and returns a processor reference.
type PaymentCollaborator interface {
	Authorize(ctx context.Context, req PaymentRequest) (string, error)
}

// SimulatedPayments approves every valid request after Delay.
type SimulatedPayments struct {
	Delay time.Duration
}

func (p SimulatedPayments) Authorize(ctx context.Context, req PaymentRequest) (string, error) {
	if req.Amount < 0 {
		return "", ErrPaymentDeclined
	}
	if p.Delay > 0 {
		timer := time.NewTimer(p.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "sim_" + uuid.NewString(), nil
}
