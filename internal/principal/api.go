package principal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/telecare/platform/internal/adapters/ehr"
	"github.com/telecare/platform/internal/phi"
	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/config"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for patients, doctors, and admins
type Handler struct {
	repo     *Repository
	codec    *phi.Codec
	authCfg  config.AuthConfig
	importer *ehr.Importer
}

// NewHandler creates a new principal handler. The importer may be nil when
// no upstream HIS is configured.
func NewHandler(repo *Repository, codec *phi.Codec, authCfg config.AuthConfig, importer *ehr.Importer) *Handler {
	return &Handler{repo: repo, codec: codec, authCfg: authCfg, importer: importer}
}

// AuthRoutes registers unauthenticated patient signup/login routes
func (h *Handler) AuthRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.RegisterPatient)
	r.Post("/login", h.LoginPatient)
	return r
}

// PatientRoutes registers authenticated patient routes
func (h *Handler) PatientRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(auth.RolePatient))
	r.Get("/me", h.GetPatientProfile)
	r.Put("/me/medical-history", h.UpdateMedicalHistory)
	return r
}

// --- Registration and login ---

type registerPatientRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Gender   string `json:"gender"`
}

type authResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
	User  any    `json:"user"`
}

// RegisterPatient creates a patient account and returns a signed token
func (h *Handler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req registerPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	patient, err := NewPatient(req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	patient.Phone = req.Phone
	patient.Gender = req.Gender

	if err := h.repo.CreatePatient(r.Context(), patient); err != nil {
		writeError(w, err)
		return
	}

	token, err := auth.IssueToken(h.authCfg, patient.ID, patient.Email, auth.RolePatient)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, Role: "patient", User: patient})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginPatient authenticates a patient
func (h *Handler) LoginPatient(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	patient, err := h.repo.FindPatientByEmail(r.Context(), req.Email)
	if err != nil || !CheckPassword(patient.PasswordHash, req.Password) {
		// Same answer whether the account or the password is wrong
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	token, err := auth.IssueToken(h.authCfg, patient.ID, patient.Email, auth.RolePatient)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, Role: "patient", User: patient})
}

type registerDoctorRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	Phone           string `json:"phone"`
	Specialty       string `json:"specialty"`
	LicenseNumber   string `json:"licenseNumber"`
	YearsExperience int    `json:"yearsExperience"`
}

// RegisterDoctor creates a doctor account and returns a signed token
func (h *Handler) RegisterDoctor(w http.ResponseWriter, r *http.Request) {
	var req registerDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	doctor, err := NewDoctor(req.Name, req.Email, req.Password, req.Specialty, req.LicenseNumber, req.YearsExperience)
	if err != nil {
		writeError(w, err)
		return
	}
	doctor.Phone = req.Phone

	if err := h.repo.CreateDoctor(r.Context(), doctor); err != nil {
		writeError(w, err)
		return
	}

	token, err := auth.IssueToken(h.authCfg, doctor.ID, doctor.Email, auth.RoleDoctor)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, Role: "doctor", User: doctor})
}

// LoginDoctor authenticates a doctor
func (h *Handler) LoginDoctor(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	doctor, err := h.repo.FindDoctorByEmail(r.Context(), req.Email)
	if err != nil || !CheckPassword(doctor.PasswordHash, req.Password) {
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	token, err := auth.IssueToken(h.authCfg, doctor.ID, doctor.Email, auth.RoleDoctor)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, Role: "doctor", User: doctor})
}

// LoginAdmin authenticates an admin. There is no admin registration.
func (h *Handler) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	admin, err := h.repo.FindAdminByEmail(r.Context(), req.Email)
	if err != nil || !CheckPassword(admin.PasswordHash, req.Password) {
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	token, err := auth.IssueToken(h.authCfg, admin.ID, admin.Email, auth.RoleAdmin)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, Role: "admin", User: admin})
}

// --- Profiles ---

// GetPatientProfile returns the caller's profile with medical history decrypted
func (h *Handler) GetPatientProfile(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())

	patient, err := h.repo.FindPatientByID(r.Context(), principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := h.codec.Decrypt(patient.MedicalHistory)
	if err != nil {
		writeError(w, errors.Integrity("medical history cannot be read", err))
		return
	}
	patient.MedicalHistory = history

	writeJSON(w, http.StatusOK, patient)
}

type updateHistoryRequest struct {
	MedicalHistory string `json:"medicalHistory"`
}

// UpdateMedicalHistory replaces the caller's medical history, encrypted at rest
func (h *Handler) UpdateMedicalHistory(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())

	var req updateHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	encrypted, err := h.codec.Encrypt(req.MedicalHistory)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	if err := h.repo.UpdatePatientHistory(r.Context(), principal.ID, encrypted); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// GetDoctorProfile returns the caller's doctor profile
func (h *Handler) GetDoctorProfile(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())

	doctor, err := h.repo.FindDoctorByID(r.Context(), principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doctor)
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

// SetAvailability toggles whether the doctor appears available for new work
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if err := h.repo.SetDoctorAvailability(r.Context(), principal.ID, req.Available); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"available": req.Available})
}

// GetDoctorStats returns the caller's workload summary
func (h *Handler) GetDoctorStats(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())

	stats, err := h.repo.GetDoctorStats(r.Context(), principal.ID, principal.Specialty)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// --- Admin dashboard ---

// GetPlatformStats returns the admin dashboard summary
func (h *Handler) GetPlatformStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetPlatformStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// ListPatients returns a page of patients
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	patients, err := h.repo.ListPatients(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	// Medical history stays encrypted in admin listings; the dashboard
	// has no clinical need for it
	for _, p := range patients {
		p.MedicalHistory = ""
	}

	writeJSON(w, http.StatusOK, map[string]any{"patients": patients, "limit": limit, "offset": offset})
}

// ListDoctors returns a page of doctors
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	doctors, err := h.repo.ListDoctors(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"doctors": doctors, "limit": limit, "offset": offset})
}

// ImportMedicalHistory pulls a patient's legacy records from the upstream
// HIS and stores them as the encrypted medical history. Existing history is
// replaced; the upstream system is the source of truth for legacy records.
func (h *Handler) ImportMedicalHistory(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil || !h.importer.Enabled() {
		writeError(w, errors.NotConfigured("ehr importer"))
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient id"))
		return
	}

	patient, err := h.repo.FindPatientByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.importer.FetchHistory(r.Context(), patient.Email)
	if err != nil {
		writeError(w, errors.Dependency("ehr importer", err))
		return
	}

	history := ehr.FormatHistory(records)
	encrypted, err := h.codec.Encrypt(history)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	if err := h.repo.UpdatePatientHistory(r.Context(), patient.ID, encrypted); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"imported": len(records)})
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
