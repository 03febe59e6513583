package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is a TxStore used by the orchestrator tests. Transactions take a
// global lock and run against a snapshot; the snapshot only replaces the live
// state on commit, so an aborted transaction leaves no trace. That is the
// same all-or-nothing contract the Postgres store gets from real
// transactions.
type memStore struct {
	mu    sync.Mutex
	slots map[uuid.UUID]Slot
	appts map[uuid.UUID]Appointment
}

func newMemStore() *memStore {
	return &memStore{
		slots: make(map[uuid.UUID]Slot),
		appts: make(map[uuid.UUID]Appointment),
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		slots: cloneMap(s.slots),
		appts: cloneMap(s.appts),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.slots = tx.slots
	s.appts = tx.appts
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Direct Store calls outside InTx behave like single-statement transactions.

func (s *memStore) read() *memTx {
	return &memTx{slots: s.slots, appts: s.appts}
}

func (s *memStore) InsertSlot(ctx context.Context, providerID uuid.UUID, maxCount int, start, end time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.InTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		id, err = st.InsertSlot(ctx, providerID, maxCount, start, end)
		return err
	})
	return id, err
}

func (s *memStore) HasOverlappingSlot(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().HasOverlappingSlot(ctx, providerID, start, end)
}

func (s *memStore) LockSlot(ctx context.Context, slotID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().LockSlot(ctx, slotID)
}

func (s *memStore) LockProviderSlot(ctx context.Context, slotID, providerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().LockProviderSlot(ctx, slotID, providerID)
}

func (s *memStore) TryIncrementSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var ok bool
	err := s.InTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		ok, err = st.TryIncrementSlot(ctx, slotID)
		return err
	})
	return ok, err
}

func (s *memStore) DecrementSlot(ctx context.Context, slotID uuid.UUID) error {
	return s.InTx(ctx, func(ctx context.Context, st Store) error {
		return st.DecrementSlot(ctx, slotID)
	})
}

func (s *memStore) SlotEndTime(ctx context.Context, slotID uuid.UUID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SlotEndTime(ctx, slotID)
}

func (s *memStore) SlotStartTime(ctx context.Context, slotID uuid.UUID) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SlotStartTime(ctx, slotID)
}

func (s *memStore) SlotCurrentCount(ctx context.Context, slotID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SlotCurrentCount(ctx, slotID)
}

func (s *memStore) UpdateSlot(ctx context.Context, slotID, providerID uuid.UUID, upd SlotUpdate) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.InTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		id, err = st.UpdateSlot(ctx, slotID, providerID, upd)
		return err
	})
	return id, err
}

func (s *memStore) SoftDeleteSlot(ctx context.Context, slotID, providerID uuid.UUID) error {
	return s.InTx(ctx, func(ctx context.Context, st Store) error {
		return st.SoftDeleteSlot(ctx, slotID, providerID)
	})
}

func (s *memStore) InsertAppointment(ctx context.Context, slotID, patientID uuid.UUID, intake Intake) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.InTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		id, err = st.InsertAppointment(ctx, slotID, patientID, intake)
		return err
	})
	return id, err
}

func (s *memStore) UpdateIntake(ctx context.Context, appointmentID, patientID uuid.UUID, upd IntakeUpdate) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.InTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		id, err = st.UpdateIntake(ctx, appointmentID, patientID, upd)
		return err
	})
	return id, err
}

func (s *memStore) MoveAppointment(ctx context.Context, appointmentID, patientID, newSlotID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.InTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		id, err = st.MoveAppointment(ctx, appointmentID, patientID, newSlotID)
		return err
	})
	return id, err
}

func (s *memStore) SoftDeleteAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) error {
	return s.InTx(ctx, func(ctx context.Context, st Store) error {
		return st.SoftDeleteAppointment(ctx, appointmentID, patientID)
	})
}

func (s *memStore) AppointmentSlotID(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().AppointmentSlotID(ctx, appointmentID)
}

func (s *memStore) AppointmentStatus(ctx context.Context, appointmentID uuid.UUID) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().AppointmentStatus(ctx, appointmentID)
}

func (s *memStore) SetAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, from, to Status) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.InTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		id, err = st.SetAppointmentStatus(ctx, appointmentID, from, to)
		return err
	})
	return id, err
}

func (s *memStore) ListSlots(ctx context.Context) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListSlots(ctx)
}

func (s *memStore) ListProviderSlots(ctx context.Context, providerID uuid.UUID) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListProviderSlots(ctx, providerID)
}

func (s *memStore) PatientSchedule(ctx context.Context, patientID uuid.UUID) ([]ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().PatientSchedule(ctx, patientID)
}

func (s *memStore) ProviderSchedule(ctx context.Context, providerID uuid.UUID) ([]ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ProviderSchedule(ctx, providerID)
}

// memTx holds the transaction snapshot and implements the row semantics of
// the Postgres store, tombstone filters and affected-row guards included.
type memTx struct {
	slots map[uuid.UUID]Slot
	appts map[uuid.UUID]Appointment
}

func (t *memTx) activeSlot(id uuid.UUID) (Slot, bool) {
	s, ok := t.slots[id]
	if !ok || s.DeletedAt != nil {
		return Slot{}, false
	}
	return s, true
}

func (t *memTx) activeAppt(id uuid.UUID) (Appointment, bool) {
	a, ok := t.appts[id]
	if !ok || a.DeletedAt != nil {
		return Appointment{}, false
	}
	return a, true
}

func (t *memTx) InsertSlot(ctx context.Context, providerID uuid.UUID, maxCount int, start, end time.Time) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()
	t.slots[id] = Slot{
		ID:         id,
		ProviderID: providerID,
		MaxCount:   maxCount,
		StartTime:  start,
		EndTime:    end,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return id, nil
}

func (t *memTx) HasOverlappingSlot(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error) {
	for _, s := range t.slots {
		if s.DeletedAt != nil || s.ProviderID != providerID {
			continue
		}
		if s.StartTime.Before(end) && s.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) LockSlot(ctx context.Context, slotID uuid.UUID) error {
	if _, ok := t.activeSlot(slotID); !ok {
		return ErrSlotNotFound
	}
	return nil
}

func (t *memTx) LockProviderSlot(ctx context.Context, slotID, providerID uuid.UUID) error {
	s, ok := t.activeSlot(slotID)
	if !ok || s.ProviderID != providerID {
		return ErrSlotNotFound
	}
	return nil
}

func (t *memTx) TryIncrementSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	s, ok := t.activeSlot(slotID)
	if !ok || s.CurrentCount >= s.MaxCount {
		return false, nil
	}
	s.CurrentCount++
	s.UpdatedAt = time.Now().UTC()
	t.slots[slotID] = s
	return true, nil
}

func (t *memTx) DecrementSlot(ctx context.Context, slotID uuid.UUID) error {
	s, ok := t.activeSlot(slotID)
	if !ok || s.CurrentCount == 0 {
		return ErrSlotNotFound
	}
	s.CurrentCount--
	s.UpdatedAt = time.Now().UTC()
	t.slots[slotID] = s
	return nil
}

func (t *memTx) SlotEndTime(ctx context.Context, slotID uuid.UUID) (time.Time, error) {
	s, ok := t.activeSlot(slotID)
	if !ok {
		return time.Time{}, ErrSlotNotFound
	}
	return s.EndTime, nil
}

func (t *memTx) SlotStartTime(ctx context.Context, slotID uuid.UUID) (time.Time, error) {
	s, ok := t.activeSlot(slotID)
	if !ok {
		return time.Time{}, ErrSlotNotFound
	}
	return s.StartTime, nil
}

func (t *memTx) SlotCurrentCount(ctx context.Context, slotID uuid.UUID) (int, error) {
	s, ok := t.activeSlot(slotID)
	if !ok {
		return 0, ErrSlotNotFound
	}
	return s.CurrentCount, nil
}

func (t *memTx) UpdateSlot(ctx context.Context, slotID, providerID uuid.UUID, upd SlotUpdate) (uuid.UUID, error) {
	s, ok := t.activeSlot(slotID)
	if !ok || s.ProviderID != providerID {
		return uuid.Nil, ErrSlotNotFound
	}
	if upd.MaxCount != nil {
		s.MaxCount = *upd.MaxCount
	}
	if upd.EndTime != nil {
		s.EndTime = *upd.EndTime
	}
	s.UpdatedAt = time.Now().UTC()
	t.slots[slotID] = s
	return slotID, nil
}

func (t *memTx) SoftDeleteSlot(ctx context.Context, slotID, providerID uuid.UUID) error {
	s, ok := t.activeSlot(slotID)
	if !ok || s.ProviderID != providerID {
		return ErrSlotNotFound
	}
	now := time.Now().UTC()
	s.DeletedAt = &now
	t.slots[slotID] = s
	return nil
}

func (t *memTx) InsertAppointment(ctx context.Context, slotID, patientID uuid.UUID, intake Intake) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()
	t.appts[id] = Appointment{
		ID:        id,
		SlotID:    slotID,
		PatientID: patientID,
		Intake:    intake,
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (t *memTx) guardedAppt(appointmentID, patientID uuid.UUID) (Appointment, bool) {
	a, ok := t.activeAppt(appointmentID)
	if !ok || a.PatientID != patientID || a.Status != StatusWaiting {
		return Appointment{}, false
	}
	return a, true
}

func (t *memTx) UpdateIntake(ctx context.Context, appointmentID, patientID uuid.UUID, upd IntakeUpdate) (uuid.UUID, error) {
	a, ok := t.guardedAppt(appointmentID, patientID)
	if !ok {
		return uuid.Nil, ErrNotPermitted
	}
	if upd.AbnormalSymptom != nil {
		a.Intake.AbnormalSymptom = *upd.AbnormalSymptom
	}
	if upd.MissedMedication != nil {
		a.Intake.MissedMedication = *upd.MissedMedication
	}
	if upd.BloodTestStatus != nil {
		a.Intake.BloodTestStatus = *upd.BloodTestStatus
	}
	if upd.OverdueMedication != nil {
		a.Intake.OverdueMedication = *upd.OverdueMedication
	}
	if upd.PartnerHIVPositive != nil {
		a.Intake.PartnerHIVPositive = *upd.PartnerHIVPositive
	}
	a.UpdatedAt = time.Now().UTC()
	t.appts[appointmentID] = a
	return appointmentID, nil
}

func (t *memTx) MoveAppointment(ctx context.Context, appointmentID, patientID, newSlotID uuid.UUID) (uuid.UUID, error) {
	a, ok := t.guardedAppt(appointmentID, patientID)
	if !ok {
		return uuid.Nil, ErrNotPermitted
	}
	a.SlotID = newSlotID
	a.UpdatedAt = time.Now().UTC()
	t.appts[appointmentID] = a
	return appointmentID, nil
}

func (t *memTx) SoftDeleteAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) error {
	a, ok := t.guardedAppt(appointmentID, patientID)
	if !ok {
		return ErrNotPermitted
	}
	now := time.Now().UTC()
	a.DeletedAt = &now
	t.appts[appointmentID] = a
	return nil
}

func (t *memTx) AppointmentSlotID(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	a, ok := t.activeAppt(appointmentID)
	if !ok {
		return uuid.Nil, ErrAppointmentNotFound
	}
	return a.SlotID, nil
}

func (t *memTx) AppointmentStatus(ctx context.Context, appointmentID uuid.UUID) (Status, error) {
	a, ok := t.activeAppt(appointmentID)
	if !ok {
		return "", ErrAppointmentNotFound
	}
	return a.Status, nil
}

func (t *memTx) SetAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, from, to Status) (uuid.UUID, error) {
	a, ok := t.activeAppt(appointmentID)
	if !ok {
		return uuid.Nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return uuid.Nil, ErrInvalidTransition
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	t.appts[appointmentID] = a
	return appointmentID, nil
}

func (t *memTx) ListSlots(ctx context.Context) ([]Slot, error) {
	var out []Slot
	for _, s := range t.slots {
		if s.DeletedAt == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (t *memTx) ListProviderSlots(ctx context.Context, providerID uuid.UUID) ([]Slot, error) {
	all, _ := t.ListSlots(ctx)
	var out []Slot
	for _, s := range all {
		if s.ProviderID == providerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) schedule(match func(a Appointment, s Slot) bool) []ScheduleEntry {
	var out []ScheduleEntry
	for _, a := range t.appts {
		if a.DeletedAt != nil {
			continue
		}
		s, ok := t.activeSlot(a.SlotID)
		if !ok || !match(a, s) {
			continue
		}
		out = append(out, ScheduleEntry{
			AppointmentID: a.ID,
			SlotID:        a.SlotID,
			PatientID:     a.PatientID,
			Intake:        a.Intake,
			Status:        a.Status,
			ProviderID:    s.ProviderID,
			StartTime:     s.StartTime,
			EndTime:       s.EndTime,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return t.appts[out[i].AppointmentID].CreatedAt.Before(t.appts[out[j].AppointmentID].CreatedAt)
	})
	return out
}

func (t *memTx) PatientSchedule(ctx context.Context, patientID uuid.UUID) ([]ScheduleEntry, error) {
	return t.schedule(func(a Appointment, s Slot) bool { return a.PatientID == patientID }), nil
}

func (t *memTx) ProviderSchedule(ctx context.Context, providerID uuid.UUID) ([]ScheduleEntry, error) {
	return t.schedule(func(a Appointment, s Slot) bool { return s.ProviderID == providerID }), nil
}
