package consultation

import (
	"math"
	"time"

	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Status is a consultation lifecycle state
type Status string

const (
	// StatusPending is a legacy alias for an unassigned consultation.
	// Creation never produces it; it is accepted as input and in queue
	// filters so pre-migration rows keep working.
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ValidStatus reports whether s names a known status
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusScheduled, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// unassigned reports whether s means "no doctor has taken this yet"
func (s Status) unassigned() bool {
	return s == StatusScheduled || s == StatusPending
}

// Consultation is the lifecycle aggregate. All transitions go through its
// methods; the repository persists whatever state the methods produce.
type Consultation struct {
	ID        types.ID  `json:"id"`
	PatientID types.ID  `json:"patientId"`
	DoctorID  *types.ID `json:"doctorId,omitempty"`
	Specialty string    `json:"specialty"`
	Status    Status    `json:"status"`

	// Scheduling
	ScheduledStart  time.Time  `json:"scheduledStart"`
	ActualStart     *time.Time `json:"actualStart,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`

	// Video room
	RoomID  string `json:"roomId,omitempty"`
	RoomURL string `json:"roomUrl,omitempty"`

	// PHI, encrypted at rest; handlers decrypt on the way out
	Notes      string `json:"notes,omitempty"`
	Transcript string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates a consultation in the scheduled state. The video room is
// provisioned by the caller before persisting.
func New(patientID types.ID, specialty string, scheduledStart time.Time) (*Consultation, error) {
	details := map[string]string{}
	if specialty == "" {
		details["specialty"] = "required"
	}
	if scheduledStart.IsZero() {
		details["startTime"] = "required"
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid consultation request", details)
	}

	now := time.Now().UTC()
	return &Consultation{
		ID:             types.NewID(),
		PatientID:      patientID,
		Specialty:      specialty,
		Status:         StatusScheduled,
		ScheduledStart: scheduledStart.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// RoomExpiry is when the provisioned video room stops admitting anyone
func (c *Consultation) RoomExpiry() time.Time {
	return c.ScheduledStart.Add(24 * time.Hour)
}

// Accept assigns a doctor. The consultation must still be unassigned and the
// doctor's specialty must match. The repository enforces the same condition
// atomically; this guard gives early, readable failures.
func (c *Consultation) Accept(doctorID types.ID, doctorSpecialty string) error {
	if c.Status.Terminal() {
		return errors.Conflict("consultation is already closed")
	}
	if c.DoctorID != nil || !c.Status.unassigned() {
		return errors.Conflict("consultation has already been accepted")
	}
	if doctorSpecialty != c.Specialty {
		return errors.Conflict("consultation requires a different specialty")
	}

	c.DoctorID = &doctorID
	c.Status = StatusAccepted
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Start moves the consultation to in-progress. The first entry pins
// ActualStart; re-entry is a no-op so both participants can join.
func (c *Consultation) Start() error {
	switch c.Status {
	case StatusInProgress:
		return nil
	case StatusAccepted:
	default:
		return errors.Conflict("consultation cannot start from status " + string(c.Status))
	}

	now := time.Now().UTC()
	c.Status = StatusInProgress
	if c.ActualStart == nil {
		c.ActualStart = &now
	}
	c.UpdatedAt = now
	return nil
}

// Complete closes the consultation and computes its billed duration in
// whole minutes, rounded, measured from the actual start when one was
// recorded and the scheduled start otherwise.
func (c *Consultation) Complete() error {
	if c.Status.Terminal() {
		return errors.Conflict("consultation is already closed")
	}
	if c.Status != StatusInProgress {
		return errors.Conflict("only an in-progress consultation can be completed")
	}

	now := time.Now().UTC()
	start := c.ScheduledStart
	if c.ActualStart != nil {
		start = *c.ActualStart
	}

	minutes := int(math.Round(now.Sub(start).Minutes()))
	if minutes < 0 {
		minutes = 0
	}

	c.Status = StatusCompleted
	c.EndedAt = &now
	c.DurationMinutes = &minutes
	c.UpdatedAt = now
	return nil
}

// Cancel closes the consultation without a session. Allowed from any
// non-terminal state.
func (c *Consultation) Cancel() error {
	if c.Status.Terminal() {
		return errors.Conflict("consultation is already closed")
	}

	now := time.Now().UTC()
	c.Status = StatusCancelled
	c.EndedAt = &now
	c.UpdatedAt = now
	return nil
}

// TransitionTo dispatches a requested status change through the guarded
// methods. Unknown targets and identity transitions are rejected.
func (c *Consultation) TransitionTo(target Status) error {
	if !ValidStatus(target) {
		return errors.Validation("unknown status", map[string]string{"status": string(target)})
	}

	switch target {
	case StatusInProgress:
		return c.Start()
	case StatusCompleted:
		return c.Complete()
	case StatusCancelled:
		return c.Cancel()
	default:
		return errors.Conflict("cannot transition to status " + string(target))
	}
}

// AccessibleBy decides whether a principal may read or act on this
// consultation. Patients must own it, doctors must be assigned to it,
// admins see everything. A false result is an authorization failure,
// distinct from the consultation not existing.
func (c *Consultation) AccessibleBy(p *auth.Principal) bool {
	switch p.Role {
	case auth.RoleAdmin:
		return true
	case auth.RolePatient:
		return c.PatientID == p.ID
	case auth.RoleDoctor:
		return c.DoctorID != nil && *c.DoctorID == p.ID
	}
	return false
}

// IsParticipant reports whether the principal is one of the two people in
// the session. Admins are not participants; they audit, they do not chat.
func (c *Consultation) IsParticipant(p *auth.Principal) bool {
	switch p.Role {
	case auth.RolePatient:
		return c.PatientID == p.ID
	case auth.RoleDoctor:
		return c.DoctorID != nil && *c.DoctorID == p.ID
	}
	return false
}
