package consultation

import (
	"testing"
	"time"

	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

func newTestConsultation(t *testing.T) *Consultation {
	t.Helper()
	c, err := New(types.NewID(), "cardiology", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewConsultation(t *testing.T) {
	c := newTestConsultation(t)

	if c.Status != StatusScheduled {
		t.Fatalf("status = %s; want scheduled", c.Status)
	}
	if c.DoctorID != nil {
		t.Fatal("new consultation must be unassigned")
	}
	if c.ActualStart != nil || c.EndedAt != nil || c.DurationMinutes != nil {
		t.Fatal("session fields must start empty")
	}

	wantExpiry := c.ScheduledStart.Add(24 * time.Hour)
	if !c.RoomExpiry().Equal(wantExpiry) {
		t.Fatalf("room expiry = %v; want %v", c.RoomExpiry(), wantExpiry)
	}
}

func TestNewConsultationValidation(t *testing.T) {
	if _, err := New(types.NewID(), "", time.Now()); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("missing specialty err = %v; want validation error", err)
	}
	if _, err := New(types.NewID(), "cardiology", time.Time{}); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("zero start err = %v; want validation error", err)
	}
}

func TestAccept(t *testing.T) {
	doctorID := types.NewID()

	t.Run("matching specialty", func(t *testing.T) {
		c := newTestConsultation(t)
		if err := c.Accept(doctorID, "cardiology"); err != nil {
			t.Fatalf("Accept: %v", err)
		}
		if c.Status != StatusAccepted {
			t.Fatalf("status = %s; want accepted", c.Status)
		}
		if c.DoctorID == nil || *c.DoctorID != doctorID {
			t.Fatal("doctor not assigned")
		}
	})

	t.Run("wrong specialty", func(t *testing.T) {
		c := newTestConsultation(t)
		err := c.Accept(doctorID, "dermatology")
		if !errors.Is(err, errors.ErrConflict) {
			t.Fatalf("err = %v; want conflict", err)
		}
		if c.Status != StatusScheduled || c.DoctorID != nil {
			t.Fatal("failed accept must not mutate the consultation")
		}
	})

	t.Run("already assigned", func(t *testing.T) {
		c := newTestConsultation(t)
		if err := c.Accept(doctorID, "cardiology"); err != nil {
			t.Fatal(err)
		}
		err := c.Accept(types.NewID(), "cardiology")
		if !errors.Is(err, errors.ErrConflict) {
			t.Fatalf("second accept err = %v; want conflict", err)
		}
		if *c.DoctorID != doctorID {
			t.Fatal("second accept displaced the first doctor")
		}
	})

	t.Run("legacy pending status", func(t *testing.T) {
		c := newTestConsultation(t)
		c.Status = StatusPending
		if err := c.Accept(doctorID, "cardiology"); err != nil {
			t.Fatalf("accept of pending consultation: %v", err)
		}
	})
}

func TestStartIdempotent(t *testing.T) {
	c := newTestConsultation(t)
	if err := c.Accept(types.NewID(), "cardiology"); err != nil {
		t.Fatal(err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if c.ActualStart == nil {
		t.Fatal("first start must pin ActualStart")
	}
	pinned := *c.ActualStart

	time.Sleep(5 * time.Millisecond)
	if err := c.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !c.ActualStart.Equal(pinned) {
		t.Fatal("second start moved ActualStart")
	}
}

func TestStartRequiresAccepted(t *testing.T) {
	c := newTestConsultation(t)
	if err := c.Start(); !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("start from scheduled err = %v; want conflict", err)
	}
}

func TestComplete(t *testing.T) {
	c := newTestConsultation(t)
	if err := c.Accept(types.NewID(), "cardiology"); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	// Pretend the session ran 42 and a bit minutes
	started := time.Now().UTC().Add(-42*time.Minute - 10*time.Second)
	c.ActualStart = &started

	if err := c.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c.Status != StatusCompleted {
		t.Fatalf("status = %s; want completed", c.Status)
	}
	if c.EndedAt == nil || c.DurationMinutes == nil {
		t.Fatal("completion must record end time and duration")
	}
	if *c.DurationMinutes != 42 {
		t.Fatalf("duration = %d; want 42 (rounded minutes)", *c.DurationMinutes)
	}
}

func TestCompleteFallsBackToScheduledStart(t *testing.T) {
	c := newTestConsultation(t)
	if err := c.Accept(types.NewID(), "cardiology"); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	// Simulate a row that predates ActualStart tracking
	c.ActualStart = nil
	c.ScheduledStart = time.Now().UTC().Add(-30 * time.Minute)

	if err := c.Complete(); err != nil {
		t.Fatal(err)
	}
	if *c.DurationMinutes != 30 {
		t.Fatalf("duration = %d; want 30 from scheduled start", *c.DurationMinutes)
	}
}

func TestCompleteRequiresInProgress(t *testing.T) {
	c := newTestConsultation(t)
	if err := c.Complete(); !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("complete from scheduled err = %v; want conflict", err)
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		c := newTestConsultation(t)
		c.Status = terminal

		if err := c.Accept(types.NewID(), "cardiology"); !errors.Is(err, errors.ErrConflict) {
			t.Fatalf("%s: accept err = %v; want conflict", terminal, err)
		}
		if err := c.Start(); !errors.Is(err, errors.ErrConflict) {
			t.Fatalf("%s: start err = %v; want conflict", terminal, err)
		}
		if err := c.Complete(); !errors.Is(err, errors.ErrConflict) {
			t.Fatalf("%s: complete err = %v; want conflict", terminal, err)
		}
		if err := c.Cancel(); !errors.Is(err, errors.ErrConflict) {
			t.Fatalf("%s: cancel err = %v; want conflict", terminal, err)
		}
	}
}

func TestCancelFromAnyOpenState(t *testing.T) {
	open := []func(c *Consultation){
		func(c *Consultation) {},
		func(c *Consultation) { c.Accept(types.NewID(), "cardiology") },
		func(c *Consultation) { c.Accept(types.NewID(), "cardiology"); c.Start() },
	}

	for i, setup := range open {
		c := newTestConsultation(t)
		setup(c)
		if err := c.Cancel(); err != nil {
			t.Fatalf("case %d: Cancel: %v", i, err)
		}
		if c.Status != StatusCancelled || c.EndedAt == nil {
			t.Fatalf("case %d: cancel did not close the consultation", i)
		}
	}
}

func TestTransitionTo(t *testing.T) {
	c := newTestConsultation(t)
	if err := c.TransitionTo("nonsense"); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("unknown status err = %v; want validation error", err)
	}
	if err := c.TransitionTo(StatusScheduled); !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("transition to scheduled err = %v; want conflict", err)
	}
	if err := c.TransitionTo(StatusAccepted); !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("transition to accepted err = %v; want conflict (accept has its own path)", err)
	}
}

func TestAccessibleBy(t *testing.T) {
	patientID := types.NewID()
	doctorID := types.NewID()

	c, err := New(patientID, "cardiology", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	owner := &auth.Principal{ID: patientID, Role: auth.RolePatient}
	stranger := &auth.Principal{ID: types.NewID(), Role: auth.RolePatient}
	doctor := &auth.Principal{ID: doctorID, Role: auth.RoleDoctor}
	otherDoctor := &auth.Principal{ID: types.NewID(), Role: auth.RoleDoctor}
	admin := &auth.Principal{ID: types.NewID(), Role: auth.RoleAdmin}

	if !c.AccessibleBy(owner) {
		t.Fatal("owning patient must have access")
	}
	if c.AccessibleBy(stranger) {
		t.Fatal("other patients must not have access")
	}
	if c.AccessibleBy(doctor) {
		t.Fatal("unassigned doctor must not have access")
	}
	if !c.AccessibleBy(admin) {
		t.Fatal("admin must have access")
	}

	if err := c.Accept(doctorID, "cardiology"); err != nil {
		t.Fatal(err)
	}
	if !c.AccessibleBy(doctor) {
		t.Fatal("assigned doctor must have access")
	}
	if c.AccessibleBy(otherDoctor) {
		t.Fatal("unassigned doctor must not have access after assignment")
	}

	if c.IsParticipant(admin) {
		t.Fatal("admins are not session participants")
	}
	if !c.IsParticipant(owner) || !c.IsParticipant(doctor) {
		t.Fatal("both assigned parties are participants")
	}
}
