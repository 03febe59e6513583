package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// Business precondition failures. These always abort the enclosing
	// transaction and are never retried by the service itself.
	ErrSlotFull          = errors.New("slot is full")
	ErrSlotEnded         = errors.New("slot already ended")
	ErrSlotOverlap       = errors.New("slot time overlaps an existing slot")
	ErrSlotInUse         = errors.New("slot still has active appointments")
	ErrSlotNotRemovable  = errors.New("slot can only be removed before it starts")
	ErrInvalidInterval   = errors.New("slot start time must be before end time")
	ErrInvalidCapacity   = errors.New("max appointment count must be positive")
	ErrCapacityTooLow    = errors.New("max appointment count below current bookings")
	ErrNotPermitted      = errors.New("appointment is not modifiable by this patient in its current status")
	ErrInvalidTransition = errors.New("invalid condition to change status")
)

// Store is the set of row operations the orchestrators compose. Every method
// observes the soft-delete tombstone: deleted rows are invisible. When the
// Store comes from InTx all operations run inside that transaction.
//
// Guarded updates (UpdateIntake, MoveAppointment, SoftDeleteAppointment,
// UpdateSlot, SoftDeleteSlot) re-validate their preconditions by affected-row
// count, never by a prior read.
type Store interface {
	// Slot rows.
	InsertSlot(ctx context.Context, providerID uuid.UUID, maxCount int, start, end time.Time) (uuid.UUID, error)
	HasOverlappingSlot(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error)
	// LockSlot takes a blocking exclusive lock on the slot row. It fails
	// with ErrSlotNotFound when the row is missing or tombstoned. Callers
	// must lock before any capacity read or mutation in the same
	// transaction.
	LockSlot(ctx context.Context, slotID uuid.UUID) error
	// LockProviderSlot is LockSlot additionally filtered on the owning
	// provider, so a foreign provider fails before any slot state is read.
	LockProviderSlot(ctx context.Context, slotID, providerID uuid.UUID) error
	// TryIncrementSlot bumps current_count as a single conditional update;
	// it reports false when the slot is already at max_count.
	TryIncrementSlot(ctx context.Context, slotID uuid.UUID) (bool, error)
	DecrementSlot(ctx context.Context, slotID uuid.UUID) error
	SlotEndTime(ctx context.Context, slotID uuid.UUID) (time.Time, error)
	SlotCurrentCount(ctx context.Context, slotID uuid.UUID) (int, error)
	SlotStartTime(ctx context.Context, slotID uuid.UUID) (time.Time, error)
	UpdateSlot(ctx context.Context, slotID, providerID uuid.UUID, upd SlotUpdate) (uuid.UUID, error)
	SoftDeleteSlot(ctx context.Context, slotID, providerID uuid.UUID) error

	// Appointment rows.
	InsertAppointment(ctx context.Context, slotID, patientID uuid.UUID, intake Intake) (uuid.UUID, error)
	UpdateIntake(ctx context.Context, appointmentID, patientID uuid.UUID, upd IntakeUpdate) (uuid.UUID, error)
	MoveAppointment(ctx context.Context, appointmentID, patientID, newSlotID uuid.UUID) (uuid.UUID, error)
	SoftDeleteAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) error
	AppointmentSlotID(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error)
	AppointmentStatus(ctx context.Context, appointmentID uuid.UUID) (Status, error)
	// SetAppointmentStatus writes `to` only when the row still holds `from`,
	// as a single compare-and-set update. A stale `from` fails with
	// ErrInvalidTransition even when the caller read `from` moments ago.
	SetAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, from, to Status) (uuid.UUID, error)

	// Views.
	ListSlots(ctx context.Context) ([]Slot, error)
	ListProviderSlots(ctx context.Context, providerID uuid.UUID) ([]Slot, error)
	PatientSchedule(ctx context.Context, patientID uuid.UUID) ([]ScheduleEntry, error)
	ProviderSchedule(ctx context.Context, providerID uuid.UUID) ([]ScheduleEntry, error)
}

// TxStore is a Store that can also demarcate transactions. fn runs against a
// transaction-scoped Store; returning an error aborts the whole transaction.
type TxStore interface {
	Store
	InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
