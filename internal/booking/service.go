package booking

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SlotCache is an optional read-through cache for the slot listing views.
// It is never consulted on a write path; correctness there belongs to the
// store's row locks.
type SlotCache interface {
	GetSlots(ctx context.Context) ([]Slot, bool)
	SetSlots(ctx context.Context, slots []Slot)
	Invalidate(ctx context.Context)
}

// Service orchestrates slot and appointment operations. Every mutating
// operation runs inside a single store transaction; a failure at any step
// aborts the whole transaction, so capacity counters and appointment rows
// never drift apart.
type Service struct {
	store TxStore
	cache SlotCache
	log   zerolog.Logger
}

func NewService(store TxStore, cache SlotCache, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		cache: cache,
		log:   log.With().Str("component", "booking").Logger(),
	}
}

// Slot operations (provider-side)

// AddSlot creates a slot for the provider after checking, inside the same
// transaction as the insert, that no active slot of theirs overlaps the
// [start, end) window.
func (s *Service) AddSlot(ctx context.Context, providerID uuid.UUID, maxCount int, start, end time.Time) (uuid.UUID, error) {
	if maxCount < 1 {
		return uuid.Nil, ErrInvalidCapacity
	}
	if !start.Before(end) {
		return uuid.Nil, ErrInvalidInterval
	}

	var slotID uuid.UUID
	err := s.store.InTx(ctx, func(ctx context.Context, store Store) error {
		overlapping, err := store.HasOverlappingSlot(ctx, providerID, start, end)
		if err != nil {
			return err
		}
		if overlapping {
			return ErrSlotOverlap
		}

		slotID, err = store.InsertSlot(ctx, providerID, maxCount, start, end)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.invalidateSlots(ctx)
	s.log.Info().Stringer("slot_id", slotID).Stringer("provider_id", providerID).Msg("slot created")
	return slotID, nil
}

// EditSlot applies a partial update to max count and end time. The slot must
// still be active and must not have ended; a shrunken max count may not fall
// below the current booking count.
func (s *Service) EditSlot(ctx context.Context, slotID, providerID uuid.UUID, upd SlotUpdate) (uuid.UUID, error) {
	if upd.MaxCount != nil && *upd.MaxCount < 1 {
		return uuid.Nil, ErrInvalidCapacity
	}

	var affectedID uuid.UUID
	err := s.store.InTx(ctx, func(ctx context.Context, store Store) error {
		// Ownership is part of the lock predicate: a foreign provider gets
		// not-found before any slot state is read.
		if err := store.LockProviderSlot(ctx, slotID, providerID); err != nil {
			return err
		}

		end, err := store.SlotEndTime(ctx, slotID)
		if err != nil {
			return err
		}
		if time.Now().UTC().After(end) {
			return ErrSlotEnded
		}

		if upd.EndTime != nil {
			start, err := store.SlotStartTime(ctx, slotID)
			if err != nil {
				return err
			}
			if !start.Before(*upd.EndTime) {
				return ErrInvalidInterval
			}
		}

		if upd.MaxCount != nil {
			count, err := store.SlotCurrentCount(ctx, slotID)
			if err != nil {
				return err
			}
			if *upd.MaxCount < count {
				return ErrCapacityTooLow
			}
		}

		affectedID, err = store.UpdateSlot(ctx, slotID, providerID, upd)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.invalidateSlots(ctx)
	return affectedID, nil
}

// RemoveSlot tombstones a slot. Only allowed while nobody is booked on it and
// its start time is still in the future, both evaluated under the row lock.
func (s *Service) RemoveSlot(ctx context.Context, slotID, providerID uuid.UUID) error {
	err := s.store.InTx(ctx, func(ctx context.Context, store Store) error {
		if err := store.LockProviderSlot(ctx, slotID, providerID); err != nil {
			return err
		}

		count, err := store.SlotCurrentCount(ctx, slotID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrSlotInUse
		}

		start, err := store.SlotStartTime(ctx, slotID)
		if err != nil {
			return err
		}
		if !time.Now().UTC().Before(start) {
			return ErrSlotNotRemovable
		}

		return store.SoftDeleteSlot(ctx, slotID, providerID)
	})
	if err != nil {
		return err
	}

	s.invalidateSlots(ctx)
	s.log.Info().Stringer("slot_id", slotID).Msg("slot removed")
	return nil
}

// Appointment operations (patient-side)

// AddAppointment books a patient onto a slot. Capacity is reserved with a
// conditional increment under the slot's row lock, and the appointment row is
// inserted in the same transaction, so either both happen or neither does.
func (s *Service) AddAppointment(ctx context.Context, slotID, patientID uuid.UUID, intake Intake) (uuid.UUID, error) {
	var appointmentID uuid.UUID

	err := s.store.InTx(ctx, func(ctx context.Context, store Store) error {
		end, err := store.SlotEndTime(ctx, slotID)
		if err != nil {
			return err
		}
		if time.Now().UTC().After(end) {
			return ErrSlotEnded
		}

		if err := store.LockSlot(ctx, slotID); err != nil {
			return err
		}

		free, err := store.TryIncrementSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if !free {
			return ErrSlotFull
		}

		appointmentID, err = store.InsertAppointment(ctx, slotID, patientID, intake)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.log.Info().
		Stringer("appointment_id", appointmentID).
		Stringer("slot_id", slotID).
		Stringer("patient_id", patientID).
		Msg("appointment booked")
	return appointmentID, nil
}

// EditAppointment applies a partial intake edit and, when newSlotID is set,
// first moves the appointment to the new slot. The move is fully
// transactional; the field edit is a single guarded statement.
func (s *Service) EditAppointment(ctx context.Context, appointmentID, patientID uuid.UUID, upd IntakeUpdate, newSlotID *uuid.UUID) error {
	if newSlotID != nil {
		if err := s.reschedule(ctx, appointmentID, patientID, *newSlotID); err != nil {
			return err
		}
	}

	if _, err := s.store.UpdateIntake(ctx, appointmentID, patientID, upd); err != nil {
		return err
	}
	return nil
}

// reschedule atomically moves an appointment between two slots: reserve on
// the destination, release on the origin, repoint the row. Slots are locked
// in ascending id order so concurrent reschedules over the same pair cannot
// deadlock.
func (s *Service) reschedule(ctx context.Context, appointmentID, patientID, newSlotID uuid.UUID) error {
	err := s.store.InTx(ctx, func(ctx context.Context, store Store) error {
		end, err := store.SlotEndTime(ctx, newSlotID)
		if err != nil {
			return err
		}
		if time.Now().UTC().After(end) {
			return ErrSlotEnded
		}

		oldSlotID, err := store.AppointmentSlotID(ctx, appointmentID)
		if err != nil {
			return err
		}

		for _, id := range lockOrder(newSlotID, oldSlotID) {
			if err := store.LockSlot(ctx, id); err != nil {
				return err
			}
		}

		free, err := store.TryIncrementSlot(ctx, newSlotID)
		if err != nil {
			return err
		}
		if !free {
			return ErrSlotFull
		}

		if err := store.DecrementSlot(ctx, oldSlotID); err != nil {
			return err
		}

		_, err = store.MoveAppointment(ctx, appointmentID, patientID, newSlotID)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Stringer("appointment_id", appointmentID).
		Stringer("slot_id", newSlotID).
		Msg("appointment rescheduled")
	return nil
}

// RemoveAppointment tombstones the appointment and releases its capacity unit
// in one transaction. The guarded soft delete is checked by affected rows; a
// guard miss aborts the transaction including the decrement.
func (s *Service) RemoveAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) error {
	err := s.store.InTx(ctx, func(ctx context.Context, store Store) error {
		slotID, err := store.AppointmentSlotID(ctx, appointmentID)
		if err != nil {
			return err
		}

		if err := store.LockSlot(ctx, slotID); err != nil {
			return err
		}

		if err := store.DecrementSlot(ctx, slotID); err != nil {
			return err
		}

		return store.SoftDeleteAppointment(ctx, appointmentID, patientID)
	})
	if err != nil {
		return err
	}

	s.log.Info().Stringer("appointment_id", appointmentID).Msg("appointment removed")
	return nil
}

// Views

func (s *Service) ListSlots(ctx context.Context) ([]Slot, error) {
	if s.cache != nil {
		if slots, ok := s.cache.GetSlots(ctx); ok {
			return slots, nil
		}
	}

	slots, err := s.store.ListSlots(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetSlots(ctx, slots)
	}
	return slots, nil
}

func (s *Service) ListProviderSlots(ctx context.Context, providerID uuid.UUID) ([]Slot, error) {
	return s.store.ListProviderSlots(ctx, providerID)
}

func (s *Service) PatientSchedule(ctx context.Context, patientID uuid.UUID) ([]ScheduleEntry, error) {
	return s.store.PatientSchedule(ctx, patientID)
}

func (s *Service) ProviderSchedule(ctx context.Context, providerID uuid.UUID) ([]ScheduleEntry, error) {
	return s.store.ProviderSchedule(ctx, providerID)
}

func (s *Service) invalidateSlots(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// lockOrder returns the two slot ids in ascending byte order, deduplicated,
// giving every multi-slot transaction the same global lock order.
func lockOrder(a, b uuid.UUID) []uuid.UUID {
	if a == b {
		return []uuid.UUID{a}
	}
	if bytes.Compare(a[:], b[:]) < 0 {
		return []uuid.UUID{a, b}
	}
	return []uuid.UUID{b, a}
}
