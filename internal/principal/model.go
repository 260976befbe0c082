package principal

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Patient is a care recipient. MedicalHistory is PHI and is stored
// encrypted; the struct carries whichever form the caller put in it.
type Patient struct {
	ID             types.ID   `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Phone          string     `json:"phone,omitempty"`
	DateOfBirth    *time.Time `json:"dateOfBirth,omitempty"`
	Gender         string     `json:"gender,omitempty"`
	MedicalHistory string     `json:"medicalHistory,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Doctor is a practitioner with exactly one specialty.
type Doctor struct {
	ID              types.ID  `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Phone           string    `json:"phone,omitempty"`
	Specialty       string    `json:"specialty"`
	LicenseNumber   string    `json:"licenseNumber"`
	YearsExperience int       `json:"yearsExperience"`
	Available       bool      `json:"available"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Admin accounts are provisioned out of band; there is no admin signup.
type Admin struct {
	ID           types.ID  `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Specialties recognized by the platform. Consultations and doctors must
// both name one of these.
var Specialties = []string{
	"general",
	"cardiology",
	"dermatology",
	"neurology",
	"orthopedics",
	"pediatrics",
	"psychiatry",
}

// ValidSpecialty reports whether s names a recognized specialty
func ValidSpecialty(s string) bool {
	for _, known := range Specialties {
		if s == known {
			return true
		}
	}
	return false
}

// NewPatient creates a patient with a hashed password
func NewPatient(name, email, password string) (*Patient, error) {
	if err := validateCredentials(name, email, password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Patient{
		ID:           types.NewID(),
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewDoctor creates a doctor with a hashed password
func NewDoctor(name, email, password, specialty, licenseNumber string, yearsExperience int) (*Doctor, error) {
	if err := validateCredentials(name, email, password); err != nil {
		return nil, err
	}
	if !ValidSpecialty(specialty) {
		return nil, errors.Validation("unknown specialty", map[string]string{"specialty": specialty})
	}
	if strings.TrimSpace(licenseNumber) == "" {
		return nil, errors.Validation("license number is required", nil)
	}
	if yearsExperience < 0 {
		return nil, errors.Validation("years of experience cannot be negative", nil)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Doctor{
		ID:              types.NewID(),
		Name:            strings.TrimSpace(name),
		Email:           normalizeEmail(email),
		PasswordHash:    hash,
		Specialty:       specialty,
		LicenseNumber:   strings.TrimSpace(licenseNumber),
		YearsExperience: yearsExperience,
		Available:       true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func validateCredentials(name, email, password string) error {
	details := map[string]string{}
	if strings.TrimSpace(name) == "" {
		details["name"] = "required"
	}
	if !strings.Contains(email, "@") {
		details["email"] = "invalid"
	}
	if len(password) < 8 {
		details["password"] = "must be at least 8 characters"
	}
	if len(details) > 0 {
		return errors.Validation("invalid registration data", details)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}

// CheckPassword compares a password against its stored hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DoctorStats summarizes a doctor's workload
type DoctorStats struct {
	Total      int `json:"total"`
	Accepted   int `json:"accepted"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	QueueDepth int `json:"queueDepth"`
}

// PlatformStats is the admin dashboard summary
type PlatformStats struct {
	Patients               int   `json:"patients"`
	Doctors                int   `json:"doctors"`
	Consultations          int   `json:"consultations"`
	ActiveConsultations    int   `json:"activeConsultations"`
	CompletedConsultations int   `json:"completedConsultations"`
	Payments               int   `json:"payments"`
	RevenueCents           int64 `json:"revenueCents"`
}
