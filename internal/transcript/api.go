// Package transcript stores encrypted session transcripts alongside their
// consultations and hands out transcription provider configuration.
package transcript

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telecare/platform/internal/adapters/transcribe"
	"github.com/telecare/platform/internal/consultation"
	"github.com/telecare/platform/internal/phi"
	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for transcripts
type Handler struct {
	consultations *consultation.Repository
	codec         *phi.Codec
	provider      *transcribe.Provider
}

// NewHandler creates a new transcript handler
func NewHandler(consultations *consultation.Repository, codec *phi.Codec, provider *transcribe.Provider) *Handler {
	return &Handler{consultations: consultations, codec: codec, provider: provider}
}

// Routes registers the transcript routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/config", h.GetConfig)
	r.Route("/consultation/{consultationID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/", h.Save)
	})

	return r
}

// GetConfig returns streaming session configuration for the client
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	session, err := h.provider.Session()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Get returns a consultation's transcript, decrypted
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if !c.AccessibleBy(p) {
		writeError(w, errors.Forbidden("you do not have access to this consultation"))
		return
	}

	transcript, err := h.codec.Decrypt(c.Transcript)
	if err != nil {
		writeError(w, errors.Integrity("transcript cannot be read", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"transcript": transcript})
}

type saveRequest struct {
	Transcript string `json:"transcript"`
}

// Save stores a session transcript, encrypted at rest. Participants only.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if !c.IsParticipant(p) {
		writeError(w, errors.Forbidden("you are not a participant in this consultation"))
		return
	}

	encrypted, err := h.codec.Encrypt(req.Transcript)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	c.Transcript = encrypted
	c.UpdatedAt = time.Now().UTC()
	if err := h.consultations.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) load(r *http.Request) (*consultation.Consultation, error) {
	id, err := types.ParseID(chi.URLParam(r, "consultationID"))
	if err != nil {
		return nil, errors.BadRequest("invalid consultation id")
	}
	return h.consultations.FindByID(r.Context(), id)
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
