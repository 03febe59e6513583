package booking

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a provider-offered time window with a bounded number of
// reservations. CurrentCount is only ever mutated through the guarded
// increment/decrement paths in the store.
type Slot struct {
	ID           uuid.UUID
	ProviderID   uuid.UUID
	CurrentCount int
	MaxCount     int
	StartTime    time.Time
	EndTime      time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Intake holds the clinical intake answers captured when a patient books.
// The values are free-form strings and opaque to the booking engine.
type Intake struct {
	AbnormalSymptom    string
	MissedMedication   string
	BloodTestStatus    string
	OverdueMedication  string
	PartnerHIVPositive string
}

// IntakeUpdate is a partial intake edit; nil fields are left untouched.
type IntakeUpdate struct {
	AbnormalSymptom    *string
	MissedMedication   *string
	BloodTestStatus    *string
	OverdueMedication  *string
	PartnerHIVPositive *string
}

// SlotUpdate is a partial slot edit; nil fields are left untouched.
type SlotUpdate struct {
	MaxCount *int
	EndTime  *time.Time
}

// Appointment is a patient's reservation against exactly one slot.
type Appointment struct {
	ID        uuid.UUID
	SlotID    uuid.UUID
	PatientID uuid.UUID
	Intake    Intake
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ScheduleEntry is one row of the appointment-slot join returned by the
// schedule views, ordered by slot start time then appointment creation time.
type ScheduleEntry struct {
	AppointmentID uuid.UUID
	SlotID        uuid.UUID
	PatientID     uuid.UUID
	Intake        Intake
	Status        Status
	ProviderID    uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
}
