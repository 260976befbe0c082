package principal

import (
	"testing"

	"github.com/telecare/platform/internal/shared/errors"
)

func TestNewPatientValidation(t *testing.T) {
	tests := []struct {
		name     string
		fullName string
		email    string
		password string
		wantErr  bool
	}{
		{"valid", "Ana Marić", "ana@example.com", "longenough", false},
		{"missing name", "  ", "ana@example.com", "longenough", true},
		{"bad email", "Ana", "not-an-email", "longenough", true},
		{"short password", "Ana", "ana@example.com", "short", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPatient(tt.fullName, tt.email, tt.password)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrValidation) {
					t.Fatalf("err = %v; want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ID.IsZero() {
				t.Fatal("patient ID not assigned")
			}
			if p.PasswordHash == tt.password {
				t.Fatal("password stored in plaintext")
			}
		})
	}
}

func TestNewPatientNormalizesEmail(t *testing.T) {
	p, err := NewPatient("Ana", "  Ana@Example.COM ", "longenough")
	if err != nil {
		t.Fatal(err)
	}
	if p.Email != "ana@example.com" {
		t.Fatalf("email = %q; want lowercase trimmed", p.Email)
	}
}

func TestNewDoctorValidation(t *testing.T) {
	tests := []struct {
		name       string
		specialty  string
		license    string
		experience int
		wantErr    bool
	}{
		{"valid", "cardiology", "LIC-1234", 5, false},
		{"unknown specialty", "astrology", "LIC-1234", 5, true},
		{"missing license", "cardiology", "  ", 5, true},
		{"negative experience", "cardiology", "LIC-1234", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDoctor("Dr. Petrović", "dr@example.com", "longenough", tt.specialty, tt.license, tt.experience)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrValidation) {
					t.Fatalf("err = %v; want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !d.Available {
				t.Fatal("new doctor should start available")
			}
		})
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatal(err)
	}

	if !CheckPassword(hash, "correct horse battery") {
		t.Fatal("correct password rejected")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatal("wrong password accepted")
	}
}

func TestValidSpecialty(t *testing.T) {
	if !ValidSpecialty("general") {
		t.Fatal("general should be a known specialty")
	}
	if ValidSpecialty("Cardiology") {
		t.Fatal("specialty matching must be exact, not case-folded")
	}
}
