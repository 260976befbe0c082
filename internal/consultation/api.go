package consultation

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telecare/platform/internal/adapters/video"
	"github.com/telecare/platform/internal/phi"
	"github.com/telecare/platform/internal/principal"
	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/events"
	"github.com/telecare/platform/internal/shared/metrics"
	"github.com/telecare/platform/internal/shared/types"
)

// SessionGate decides whether a principal may receive video credentials for
// a consultation. Implemented by the payment module.
type SessionGate interface {
	Clear(ctx context.Context, p *auth.Principal, c *Consultation) (bool, error)
}

// Handler provides HTTP handlers for the consultation module
type Handler struct {
	repo  *Repository
	video *video.Client
	gate  SessionGate
	codec *phi.Codec
	bus   *events.Bus // nil when the event store is not configured
}

// NewHandler creates a new consultation handler
func NewHandler(repo *Repository, videoClient *video.Client, gate SessionGate, codec *phi.Codec, bus *events.Bus) *Handler {
	return &Handler{repo: repo, video: videoClient, gate: gate, codec: codec, bus: bus}
}

// Routes registers patient-facing consultation routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.RequireRole(auth.RolePatient)).Post("/", h.Create)
	r.With(auth.RequireRole(auth.RolePatient)).Get("/", h.ListOwn)

	r.Route("/{consultationID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/status", h.Transition)
		r.With(auth.RequireRole(auth.RoleDoctor)).Put("/notes", h.SaveNotes)
	})

	return r
}

// DoctorRoutes registers the doctor work-queue routes
func (h *Handler) DoctorRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(auth.RoleDoctor))

	r.Get("/", h.ListForDoctor)
	r.Get("/queue", h.Queue)
	r.Post("/{consultationID}/accept", h.Accept)

	return r
}

// AdminRoutes registers the admin listing route
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(auth.RoleAdmin))
	r.Get("/", h.ListAll)
	return r
}

// --- Creation ---

type createRequest struct {
	Specialty string `json:"specialty"`
	StartTime string `json:"startTime"` // RFC 3339
}

type consultationResponse struct {
	Consultation *Consultation `json:"consultation"`
	RoomToken    string        `json:"roomToken,omitempty"`
	PaymentDue   bool          `json:"paymentDue,omitempty"`
}

// Create books a consultation and provisions its video room. The room
// expires 24 hours after the scheduled start so late joins still work.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if !principal.ValidSpecialty(req.Specialty) {
		writeError(w, errors.Validation("unknown specialty", map[string]string{"specialty": req.Specialty}))
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, errors.Validation("startTime must be RFC 3339", map[string]string{"startTime": req.StartTime}))
		return
	}

	c, err := New(p.ID, req.Specialty, startTime)
	if err != nil {
		writeError(w, err)
		return
	}

	room, err := h.video.CreateRoom(r.Context(), c.ID, c.RoomExpiry())
	if err != nil {
		if errors.Is(err, errors.ErrNotConfigured) {
			// Booking still works without a video deployment;
			// sessions fall back to chat only
			log.Printf("video provider not configured, consultation %s has no room", c.ID)
		} else {
			writeError(w, err)
			return
		}
	} else {
		c.RoomID = room.ID
		c.RoomURL = room.URL
	}

	if err := h.repo.Save(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordConsultationCreated(c.Specialty)
	h.publish(r.Context(), events.TypeConsultationCreated, p, map[string]any{
		"consultation_id": c.ID,
		"specialty":       c.Specialty,
		"scheduled_start": c.ScheduledStart,
	})

	token := h.issueToken(r.Context(), c, p)
	writeJSON(w, http.StatusCreated, consultationResponse{Consultation: c, RoomToken: token})
}

// --- Listings ---

// ListOwn returns the calling patient's consultations
func (h *Handler) ListOwn(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	consultations, err := h.repo.ListByPatient(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"consultations": stripPHI(consultations)})
}

// ListForDoctor returns the calling doctor's consultations
func (h *Handler) ListForDoctor(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	consultations, err := h.repo.ListByDoctor(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"consultations": stripPHI(consultations)})
}

// Queue returns unassigned consultations matching the doctor's specialty
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	consultations, err := h.repo.ListQueue(r.Context(), p.Specialty)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"consultations": stripPHI(consultations)})
}

// ListAll returns a page of every consultation for the admin dashboard
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	consultations, err := h.repo.ListAll(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"consultations": stripPHI(consultations),
		"limit":         limit,
		"offset":        offset,
	})
}

// --- Single consultation ---

// Get returns one consultation with decrypted notes and, when the session
// gate clears the caller, a fresh video room token. A cleared patient
// joining an accepted consultation drives it to in-progress.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if !c.AccessibleBy(p) {
		metrics.RecordAuthorizationDecision("consultation", "read", false)
		writeError(w, errors.Forbidden("you do not have access to this consultation"))
		return
	}
	metrics.RecordAuthorizationDecision("consultation", "read", true)

	cleared, err := h.gate.Clear(r.Context(), p, c)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := consultationResponse{Consultation: c, PaymentDue: !cleared}

	if cleared {
		// Join drives the accepted -> in-progress transition
		if c.Status == StatusAccepted && p.Role != auth.RoleAdmin {
			from := c.Status
			if err := c.Start(); err == nil {
				if err := h.repo.Update(r.Context(), c); err != nil {
					writeError(w, err)
					return
				}
				metrics.RecordConsultationTransition(string(from), string(c.Status))
				h.publish(r.Context(), events.TypeConsultationTransition, p, map[string]any{
					"consultation_id": c.ID,
					"from":            from,
					"to":              c.Status,
				})
			}
		}
		resp.RoomToken = h.issueToken(r.Context(), c, p)
	}

	notes, err := h.codec.Decrypt(c.Notes)
	if err != nil {
		writeError(w, errors.Integrity("consultation notes cannot be read", err))
		return
	}
	c.Notes = notes

	writeJSON(w, http.StatusOK, resp)
}

type transitionRequest struct {
	Status Status `json:"status"`
}

// Transition applies a requested status change through the aggregate guards
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if !c.AccessibleBy(p) {
		metrics.RecordAuthorizationDecision("consultation", "transition", false)
		writeError(w, errors.Forbidden("you do not have access to this consultation"))
		return
	}
	metrics.RecordAuthorizationDecision("consultation", "transition", true)

	from := c.Status
	if err := c.TransitionTo(req.Status); err != nil {
		writeError(w, err)
		return
	}

	if c.Status != from {
		if err := h.repo.Update(r.Context(), c); err != nil {
			writeError(w, err)
			return
		}
		metrics.RecordConsultationTransition(string(from), string(c.Status))
		h.publish(r.Context(), events.TypeConsultationTransition, p, map[string]any{
			"consultation_id": c.ID,
			"from":            from,
			"to":              c.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"consultation": c})
}

// Accept assigns the calling doctor to an unassigned consultation
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// In-memory guard first for readable failures; the conditional
	// update below settles races
	if err := c.Accept(p.ID, p.Specialty); err != nil {
		writeError(w, err)
		return
	}

	accepted, err := h.repo.Accept(r.Context(), c.ID, p.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordConsultationTransition(string(StatusScheduled), string(StatusAccepted))
	h.publish(r.Context(), events.TypeConsultationAccepted, p, map[string]any{
		"consultation_id": accepted.ID,
		"doctor_id":       p.ID,
	})

	writeJSON(w, http.StatusOK, map[string]any{"consultation": accepted})
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// SaveNotes stores the assigned doctor's clinical notes, encrypted at rest
func (h *Handler) SaveNotes(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if !c.AccessibleBy(p) {
		writeError(w, errors.Forbidden("you do not have access to this consultation"))
		return
	}

	encrypted, err := h.codec.Encrypt(req.Notes)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	c.Notes = encrypted
	c.UpdatedAt = time.Now().UTC()
	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// --- Helpers ---

func (h *Handler) load(r *http.Request) (*Consultation, error) {
	id, err := types.ParseID(chi.URLParam(r, "consultationID"))
	if err != nil {
		return nil, errors.BadRequest("invalid consultation id")
	}
	return h.repo.FindByID(r.Context(), id)
}

// issueToken issues a fresh room token, soft-skipping when video is not
// deployed. Doctors get owner tokens with room controls.
func (h *Handler) issueToken(ctx context.Context, c *Consultation, p *auth.Principal) string {
	if c.RoomID == "" {
		return ""
	}

	isOwner := p.Role == auth.RoleDoctor
	token, err := h.video.CreateToken(ctx, c.RoomID, p.ID, isOwner)
	if err != nil {
		if !errors.Is(err, errors.ErrNotConfigured) {
			log.Printf("failed to issue room token for consultation %s: %v", c.ID, err)
		}
		return ""
	}

	metrics.RecordVideoToken()
	return token
}

func (h *Handler) publish(ctx context.Context, eventType string, p *auth.Principal, data map[string]any) {
	if h.bus == nil {
		return
	}
	event := events.NewEvent(eventType, "consultation", data).WithActor(p.ID, p.Role.String())
	if err := h.bus.Publish(ctx, event); err != nil {
		log.Printf("failed to publish %s: %v", eventType, err)
	}
}

// stripPHI blanks encrypted fields in listings; single-consultation reads
// decrypt them instead
func stripPHI(consultations []*Consultation) []*Consultation {
	for _, c := range consultations {
		c.Notes = ""
		c.Transcript = ""
	}
	return consultations
}

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
