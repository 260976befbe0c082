package chat

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telecare/platform/internal/consultation"
	"github.com/telecare/platform/internal/phi"
	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/events"
	"github.com/telecare/platform/internal/shared/metrics"
	"github.com/telecare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the chat module
type Handler struct {
	repo          *Repository
	consultations *consultation.Repository
	codec         *phi.Codec
	hub           *Hub
	bus           *events.Bus // nil when the event store is not configured
}

// NewHandler creates a new chat handler
func NewHandler(repo *Repository, consultations *consultation.Repository, codec *phi.Codec, hub *Hub, bus *events.Bus) *Handler {
	return &Handler{repo: repo, consultations: consultations, codec: codec, hub: hub, bus: bus}
}

// Routes registers the chat routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/consultation/{consultationID}", func(r chi.Router) {
		r.Get("/", h.History)
		r.Post("/", h.Send)
		r.Get("/stream", h.Stream)
	})

	return r
}

// scope loads the consultation and checks the caller is one of its two
// participants. Chat is participant-only; admins review the audit trail,
// not message bodies.
func (h *Handler) scope(r *http.Request) (*consultation.Consultation, error) {
	p := auth.GetPrincipal(r.Context())

	id, err := types.ParseID(chi.URLParam(r, "consultationID"))
	if err != nil {
		return nil, errors.BadRequest("invalid consultation id")
	}

	c, err := h.consultations.FindByID(r.Context(), id)
	if err != nil {
		return nil, err
	}

	if !c.IsParticipant(p) {
		metrics.RecordAuthorizationDecision("chat", "access", false)
		return nil, errors.Forbidden("you are not a participant in this consultation")
	}
	metrics.RecordAuthorizationDecision("chat", "access", true)

	return c, nil
}

// History returns the consultation's messages, decrypted, oldest first
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	c, err := h.scope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	messages, err := h.repo.ListByConsultation(r.Context(), c.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, m := range messages {
		body, err := h.codec.Decrypt(m.Body)
		if err != nil {
			writeError(w, errors.Integrity("chat history cannot be read", err))
			return
		}
		m.Body = body
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type sendRequest struct {
	Body string `json:"body"`
	Kind Kind   `json:"kind"`
}

// Send persists a message and then broadcasts it. Persistence comes first:
// a message a subscriber saw but history lost would be worse than the
// reverse.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	c, err := h.scope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	msg, err := New(c.ID, p, req.Kind, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	plaintext := msg.Body
	encrypted, err := h.codec.Encrypt(plaintext)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	msg.Body = encrypted
	if err := h.repo.Save(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordChatMessage(string(msg.Kind))

	// Live delivery carries the plaintext; the stored row keeps only the
	// ciphertext
	msg.Body = plaintext
	h.hub.Broadcast(*msg)

	if h.bus != nil {
		event := events.NewEvent(events.TypeChatMessageSent, "chat", map[string]any{
			"message_id":      msg.ID,
			"consultation_id": msg.ConsultationID,
			"kind":            msg.Kind,
		}).WithActor(p.ID, p.Role.String())
		if err := h.bus.Publish(r.Context(), event); err != nil {
			log.Printf("failed to publish chat event: %v", err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

// Stream delivers live messages over server-sent events until the client
// disconnects
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	c, err := h.scope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.Internal(fmt.Errorf("response writer does not support streaming")))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messages, unsubscribe := h.hub.Subscribe(c.ID)
	defer unsubscribe()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-messages:
			if !open {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", msg.ID, data)
			flusher.Flush()
		}
	}
}

// --- Helpers ---

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
