package payment

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	processor "github.com/telecare/platform/internal/adapters/payment"
	"github.com/telecare/platform/internal/consultation"
	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/events"
	"github.com/telecare/platform/internal/shared/metrics"
	"github.com/telecare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the payment module
type Handler struct {
	repo          *Repository
	consultations *consultation.Repository
	processor     *processor.Client
	bus           *events.Bus // nil when the event store is not configured
}

// NewHandler creates a new payment handler
func NewHandler(repo *Repository, consultations *consultation.Repository, client *processor.Client, bus *events.Bus) *Handler {
	return &Handler{repo: repo, consultations: consultations, processor: client, bus: bus}
}

// Routes registers the payment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/config", h.GetConfig)
	r.With(auth.RequireRole(auth.RolePatient)).Post("/consultation/{consultationID}", h.Initiate)
	r.Get("/{paymentID}", h.Get)

	return r
}

// AdminRoutes registers the admin listing route
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(auth.RoleAdmin))
	r.Get("/", h.ListAll)
	return r
}

// GetConfig tells clients whether and how to tokenize cards
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"configured":    h.processor.Configured(),
		"applicationId": h.processor.ApplicationID(),
		"environment":   h.processor.Environment(),
	})
}

type initiateRequest struct {
	Amount   float64 `json:"amount"` // decimal dollars
	SourceID string  `json:"sourceId"`
}

// Initiate charges the patient for a consultation. Each consultation can be
// paid for exactly once, regardless of the outcome of the first attempt.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	consultationID, err := types.ParseID(chi.URLParam(r, "consultationID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid consultation id"))
		return
	}

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.SourceID == "" {
		writeError(w, errors.Validation("sourceId is required", nil))
		return
	}

	c, err := h.consultations.FindByID(r.Context(), consultationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if c.PatientID != p.ID {
		metrics.RecordAuthorizationDecision("payment", "initiate", false)
		writeError(w, errors.Forbidden("you can only pay for your own consultations"))
		return
	}
	metrics.RecordAuthorizationDecision("payment", "initiate", true)

	// One payment per consultation, any status
	if _, err := h.repo.FindByConsultation(r.Context(), consultationID); err == nil {
		writeError(w, errors.Conflict("consultation has already been paid for"))
		return
	} else if !errors.Is(err, errors.ErrNotFound) {
		writeError(w, err)
		return
	}

	payment, err := New(consultationID, p.ID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	// Fresh idempotency key per initiation; the processor deduplicates
	// network-level retries of this exact charge
	idempotencyKey := uuid.New().String()
	charge, err := h.processor.CreatePayment(r.Context(),
		payment.AmountCents, payment.Currency, req.SourceID, idempotencyKey, consultationID.String())
	if err != nil {
		writeError(w, err)
		return
	}

	payment.ProcessorPaymentID = charge.ID
	payment.ReceiptURL = charge.ReceiptURL
	payment.SourceType = charge.SourceType
	payment.ApplyProcessorStatus(charge.Status)

	if err := h.repo.Save(r.Context(), payment); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordPayment(string(payment.Status))
	h.publish(r, p, payment)

	writeJSON(w, http.StatusCreated, map[string]any{"payment": payment})
}

// Get returns a payment, refreshing its processor status on the way out.
// Patients see only their own payments.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	id, err := types.ParseID(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid payment id"))
		return
	}

	payment, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if p.Role == auth.RolePatient && payment.PatientID != p.ID {
		writeError(w, errors.Forbidden("you do not have access to this payment"))
		return
	}

	// Refresh from the processor; stale local status is better than an
	// error when the processor is down
	if h.processor.Configured() && payment.ProcessorPaymentID != "" {
		if charge, err := h.processor.GetPayment(r.Context(), payment.ProcessorPaymentID); err == nil {
			before := payment.Status
			payment.ReceiptURL = charge.ReceiptURL
			payment.ApplyProcessorStatus(charge.Status)
			if payment.Status != before {
				if err := h.repo.UpdateStatus(r.Context(), payment); err != nil {
					log.Printf("failed to persist refreshed payment %s: %v", payment.ID, err)
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"payment": payment})
}

// ListAll returns a page of payments for the admin dashboard
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	payments, err := h.repo.ListAll(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"payments": payments, "limit": limit, "offset": offset})
}

func (h *Handler) publish(r *http.Request, p *auth.Principal, payment *Payment) {
	if h.bus == nil {
		return
	}
	event := events.NewEvent(events.TypePaymentRecorded, "payment", map[string]any{
		"payment_id":      payment.ID,
		"consultation_id": payment.ConsultationID,
		"amount_cents":    payment.AmountCents,
		"status":          payment.Status,
	}).WithActor(p.ID, p.Role.String())
	if err := h.bus.Publish(r.Context(), event); err != nil {
		log.Printf("failed to publish payment event: %v", err)
	}
}

// --- Helpers ---

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
