package payment

import (
	"context"
	"testing"
	"time"

	"github.com/telecare/platform/internal/consultation"
	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

type fakeProcessor struct{ configured bool }

func (f fakeProcessor) Configured() bool { return f.configured }

type fakeRecords struct {
	payments map[types.ID]*Payment
}

func (f fakeRecords) FindByConsultation(_ context.Context, consultationID types.ID) (*Payment, error) {
	if p, ok := f.payments[consultationID]; ok {
		return p, nil
	}
	return nil, errors.NotFound("payment", consultationID.String())
}

func testConsultation(t *testing.T, patientID types.ID) *consultation.Consultation {
	t.Helper()
	c, err := consultation.New(patientID, "general", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGateClear(t *testing.T) {
	patientID := types.NewID()
	c := testConsultation(t, patientID)

	paid := fakeRecords{payments: map[types.ID]*Payment{
		c.ID: {ID: types.NewID(), ConsultationID: c.ID, Status: StatusCompleted},
	}}
	unpaid := fakeRecords{payments: map[types.ID]*Payment{}}

	patient := &auth.Principal{ID: patientID, Role: auth.RolePatient}
	doctor := &auth.Principal{ID: types.NewID(), Role: auth.RoleDoctor}
	admin := &auth.Principal{ID: types.NewID(), Role: auth.RoleAdmin}

	tests := []struct {
		name      string
		principal *auth.Principal
		records   Records
		processor Processor
		want      bool
	}{
		{"doctor bypasses payment", doctor, unpaid, fakeProcessor{true}, true},
		{"admin bypasses payment", admin, unpaid, fakeProcessor{true}, true},
		{"paid patient clears", patient, paid, fakeProcessor{true}, true},
		{"unpaid patient blocked", patient, unpaid, fakeProcessor{true}, false},
		{"no processor waives payment", patient, unpaid, fakeProcessor{false}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.records, tt.processor)
			got, err := gate.Clear(context.Background(), tt.principal, c)
			if err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Clear = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestGatePendingPaymentStillClears(t *testing.T) {
	patientID := types.NewID()
	c := testConsultation(t, patientID)

	// A pending record is still "a payment exists"; gating on settlement
	// would lock patients out of sessions they paid for
	records := fakeRecords{payments: map[types.ID]*Payment{
		c.ID: {ID: types.NewID(), ConsultationID: c.ID, Status: StatusPending},
	}}

	gate := NewGate(records, fakeProcessor{true})
	cleared, err := gate.Clear(context.Background(), &auth.Principal{ID: patientID, Role: auth.RolePatient}, c)
	if err != nil {
		t.Fatal(err)
	}
	if !cleared {
		t.Fatal("pending payment must clear the gate")
	}
}

func TestNewPayment(t *testing.T) {
	tests := []struct {
		name      string
		amount    float64
		wantCents int64
		wantErr   bool
	}{
		{"whole dollars", 50, 5000, false},
		{"fractional cents round", 19.999, 2000, false},
		{"typical price", 75.50, 7550, false},
		{"zero rejected", 0, 0, true},
		{"negative rejected", -5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(types.NewID(), types.NewID(), tt.amount)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrValidation) {
					t.Fatalf("err = %v; want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.AmountCents != tt.wantCents {
				t.Fatalf("cents = %d; want %d", p.AmountCents, tt.wantCents)
			}
			if p.Status != StatusPending {
				t.Fatalf("status = %s; want pending before the processor answers", p.Status)
			}
		})
	}
}

func TestApplyProcessorStatus(t *testing.T) {
	tests := []struct {
		processor string
		want      Status
	}{
		{"COMPLETED", StatusCompleted},
		{"FAILED", StatusFailed},
		{"CANCELED", StatusFailed},
		{"APPROVED", StatusPending},
		{"", StatusPending},
	}

	for _, tt := range tests {
		p := &Payment{}
		p.ApplyProcessorStatus(tt.processor)
		if p.Status != tt.want {
			t.Fatalf("ApplyProcessorStatus(%q) = %s; want %s", tt.processor, p.Status, tt.want)
		}
	}
}
