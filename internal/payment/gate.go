package payment

import (
	"context"

	"github.com/telecare/platform/internal/consultation"
	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Processor is the slice of the payment adapter the gate needs
type Processor interface {
	Configured() bool
}

// Records is the slice of the payment store the gate needs
type Records interface {
	FindByConsultation(ctx context.Context, consultationID types.ID) (*Payment, error)
}

// Gate decides whether a principal may receive video session credentials
// for a consultation. Doctors and admins always clear; patients clear once
// a payment exists for the consultation. Deployments without a payment
// processor waive the requirement entirely.
type Gate struct {
	records   Records
	processor Processor
}

// NewGate creates a session gate
func NewGate(records Records, processor Processor) *Gate {
	return &Gate{records: records, processor: processor}
}

// Clear implements consultation.SessionGate
func (g *Gate) Clear(ctx context.Context, p *auth.Principal, c *consultation.Consultation) (bool, error) {
	if p.Role == auth.RoleDoctor || p.Role == auth.RoleAdmin {
		return true, nil
	}

	if !g.processor.Configured() {
		// No processor in this deployment; sessions are free
		return true, nil
	}

	_, err := g.records.FindByConsultation(ctx, c.ID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
