package payment

import (
	"math"
	"time"

	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Status is the platform's view of a payment
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Payment links a consultation to a processor charge. At most one payment
// row exists per consultation, whatever its status.
type Payment struct {
	ID                 types.ID  `json:"id"`
	ConsultationID     types.ID  `json:"consultationId"`
	PatientID          types.ID  `json:"patientId"`
	AmountCents        int64     `json:"amountCents"`
	Currency           string    `json:"currency"`
	Status             Status    `json:"status"`
	ProcessorPaymentID string    `json:"processorPaymentId,omitempty"`
	ReceiptURL         string    `json:"receiptUrl,omitempty"`
	SourceType         string    `json:"sourceType,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// New creates a payment record for a consultation. The amount arrives in
// decimal dollars and is stored in integer cents.
func New(consultationID, patientID types.ID, amountDollars float64) (*Payment, error) {
	if amountDollars <= 0 {
		return nil, errors.Validation("amount must be positive", nil)
	}

	now := time.Now().UTC()
	return &Payment{
		ID:             types.NewID(),
		ConsultationID: consultationID,
		PatientID:      patientID,
		AmountCents:    int64(math.Round(amountDollars * 100)),
		Currency:       "USD",
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ApplyProcessorStatus maps the processor's status vocabulary onto ours
func (p *Payment) ApplyProcessorStatus(processorStatus string) {
	switch processorStatus {
	case "COMPLETED":
		p.Status = StatusCompleted
	case "FAILED", "CANCELED":
		p.Status = StatusFailed
	default:
		p.Status = StatusPending
	}
	p.UpdatedAt = time.Now().UTC()
}
