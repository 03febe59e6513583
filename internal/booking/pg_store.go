package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the slice of pgx satisfied by both *pgxpool.Pool and pgx.Tx, so the
// same store code runs inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool *pgxpool.Pool
	db   DBTX
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

// InTx runs fn against a transaction-scoped copy of the store. Any error from
// fn rolls the transaction back; otherwise it commits.
func (s *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &PgStore{pool: s.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.CurrentCount,
		&s.MaxCount,
		&s.StartTime,
		&s.EndTime,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanScheduleEntry(row pgx.Row) (*ScheduleEntry, error) {
	var e ScheduleEntry

	err := row.Scan(
		&e.AppointmentID,
		&e.SlotID,
		&e.PatientID,
		&e.Intake.AbnormalSymptom,
		&e.Intake.MissedMedication,
		&e.Intake.BloodTestStatus,
		&e.Intake.OverdueMedication,
		&e.Intake.PartnerHIVPositive,
		&e.Status,
		&e.ProviderID,
		&e.StartTime,
		&e.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &e, nil
}

// Slot rows

func (s *PgStore) InsertSlot(ctx context.Context, providerID uuid.UUID, maxCount int, start, end time.Time) (uuid.UUID, error) {
	id := uuid.New()

	_, err := s.db.Exec(ctx, `
		INSERT INTO slots (id, provider_id, current_appointment_count, max_appointment_count,
		                   start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $5, now(), now())
	`, id, providerID, maxCount, start, end)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert slot: %w", err)
	}

	return id, nil
}

func (s *PgStore) HasOverlappingSlot(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool

	// Half-open interval overlap: [start, end) collides when the existing
	// slot starts before our end and ends after our start.
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM slots
			WHERE provider_id = $1
			  AND deleted_at IS NULL
			  AND start_time < $3
			  AND end_time > $2
		)
	`, providerID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot overlap: %w", err)
	}

	return exists, nil
}

func (s *PgStore) LockSlot(ctx context.Context, slotID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		SELECT 1
		FROM slots
		WHERE id = $1
		  AND deleted_at IS NULL
		FOR UPDATE
	`, slotID)
	if err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (s *PgStore) LockProviderSlot(ctx context.Context, slotID, providerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		SELECT 1
		FROM slots
		WHERE id = $1
		  AND provider_id = $2
		  AND deleted_at IS NULL
		FOR UPDATE
	`, slotID, providerID)
	if err != nil {
		return fmt.Errorf("lock provider slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (s *PgStore) TryIncrementSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE slots
		SET current_appointment_count = current_appointment_count + 1,
		    updated_at = now()
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND current_appointment_count < max_appointment_count
	`, slotID)
	if err != nil {
		return false, fmt.Errorf("increment slot count: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) DecrementSlot(ctx context.Context, slotID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE slots
		SET current_appointment_count = current_appointment_count - 1,
		    updated_at = now()
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND current_appointment_count > 0
	`, slotID)
	if err != nil {
		return fmt.Errorf("decrement slot count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (s *PgStore) SlotEndTime(ctx context.Context, slotID uuid.UUID) (time.Time, error) {
	var end time.Time

	err := s.db.QueryRow(ctx, `
		SELECT end_time
		FROM slots
		WHERE id = $1
		  AND deleted_at IS NULL
	`, slotID).Scan(&end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrSlotNotFound
		}
		return time.Time{}, fmt.Errorf("get slot end time: %w", err)
	}

	return end, nil
}

func (s *PgStore) SlotStartTime(ctx context.Context, slotID uuid.UUID) (time.Time, error) {
	var start time.Time

	err := s.db.QueryRow(ctx, `
		SELECT start_time
		FROM slots
		WHERE id = $1
		  AND deleted_at IS NULL
	`, slotID).Scan(&start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrSlotNotFound
		}
		return time.Time{}, fmt.Errorf("get slot start time: %w", err)
	}

	return start, nil
}

func (s *PgStore) SlotCurrentCount(ctx context.Context, slotID uuid.UUID) (int, error) {
	var count int

	err := s.db.QueryRow(ctx, `
		SELECT current_appointment_count
		FROM slots
		WHERE id = $1
		  AND deleted_at IS NULL
	`, slotID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSlotNotFound
		}
		return 0, fmt.Errorf("get slot count: %w", err)
	}

	return count, nil
}

func (s *PgStore) UpdateSlot(ctx context.Context, slotID, providerID uuid.UUID, upd SlotUpdate) (uuid.UUID, error) {
	var id uuid.UUID

	err := s.db.QueryRow(ctx, `
		UPDATE slots
		SET max_appointment_count = COALESCE($3, max_appointment_count),
		    end_time = COALESCE($4, end_time),
		    updated_at = now()
		WHERE id = $1
		  AND provider_id = $2
		  AND deleted_at IS NULL
		RETURNING id
	`, slotID, providerID, upd.MaxCount, upd.EndTime).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrSlotNotFound
		}
		return uuid.Nil, fmt.Errorf("update slot: %w", err)
	}

	return id, nil
}

func (s *PgStore) SoftDeleteSlot(ctx context.Context, slotID, providerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE slots
		SET deleted_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND provider_id = $2
		  AND deleted_at IS NULL
	`, slotID, providerID)
	if err != nil {
		return fmt.Errorf("soft delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// Appointment rows

func (s *PgStore) InsertAppointment(ctx context.Context, slotID, patientID uuid.UUID, intake Intake) (uuid.UUID, error) {
	id := uuid.New()

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, slot_id, patient_id,
		                          patient_abnormal_symptom, patient_is_missed_medication,
		                          patient_blood_test_status, patient_is_overdue_medication,
		                          patient_is_partner_hiv_positive,
		                          status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, id, slotID, patientID,
		intake.AbnormalSymptom, intake.MissedMedication,
		intake.BloodTestStatus, intake.OverdueMedication,
		intake.PartnerHIVPositive,
		StatusWaiting)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert appointment: %w", err)
	}

	return id, nil
}

func (s *PgStore) UpdateIntake(ctx context.Context, appointmentID, patientID uuid.UUID, upd IntakeUpdate) (uuid.UUID, error) {
	var id uuid.UUID

	err := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET patient_abnormal_symptom = COALESCE($3, patient_abnormal_symptom),
		    patient_is_missed_medication = COALESCE($4, patient_is_missed_medication),
		    patient_blood_test_status = COALESCE($5, patient_blood_test_status),
		    patient_is_overdue_medication = COALESCE($6, patient_is_overdue_medication),
		    patient_is_partner_hiv_positive = COALESCE($7, patient_is_partner_hiv_positive),
		    updated_at = now()
		WHERE id = $1
		  AND patient_id = $2
		  AND deleted_at IS NULL
		  AND status = $8
		RETURNING id
	`, appointmentID, patientID,
		upd.AbnormalSymptom, upd.MissedMedication, upd.BloodTestStatus,
		upd.OverdueMedication, upd.PartnerHIVPositive,
		StatusWaiting).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotPermitted
		}
		return uuid.Nil, fmt.Errorf("update intake: %w", err)
	}

	return id, nil
}

func (s *PgStore) MoveAppointment(ctx context.Context, appointmentID, patientID, newSlotID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID

	err := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET slot_id = $3,
		    updated_at = now()
		WHERE id = $1
		  AND patient_id = $2
		  AND deleted_at IS NULL
		  AND status = $4
		RETURNING id
	`, appointmentID, patientID, newSlotID, StatusWaiting).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotPermitted
		}
		return uuid.Nil, fmt.Errorf("move appointment: %w", err)
	}

	return id, nil
}

func (s *PgStore) SoftDeleteAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET deleted_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND patient_id = $2
		  AND deleted_at IS NULL
		  AND status = $3
	`, appointmentID, patientID, StatusWaiting)
	if err != nil {
		return fmt.Errorf("soft delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPermitted
	}
	return nil
}

func (s *PgStore) AppointmentSlotID(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	var slotID uuid.UUID

	err := s.db.QueryRow(ctx, `
		SELECT slot_id
		FROM appointments
		WHERE id = $1
		  AND deleted_at IS NULL
	`, appointmentID).Scan(&slotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrAppointmentNotFound
		}
		return uuid.Nil, fmt.Errorf("get appointment slot: %w", err)
	}

	return slotID, nil
}

func (s *PgStore) AppointmentStatus(ctx context.Context, appointmentID uuid.UUID) (Status, error) {
	var status Status

	err := s.db.QueryRow(ctx, `
		SELECT status
		FROM appointments
		WHERE id = $1
		  AND deleted_at IS NULL
	`, appointmentID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAppointmentNotFound
		}
		return "", fmt.Errorf("get appointment status: %w", err)
	}

	return status, nil
}

func (s *PgStore) SetAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, from, to Status) (uuid.UUID, error) {
	var id uuid.UUID

	// The status predicate lives on the write itself. A concurrent transition
	// that commits between the caller's read and this update changes the
	// stored status, the WHERE no longer matches, and zero rows come back.
	err := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND status = $2
		RETURNING id
	`, appointmentID, from, to).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, statusErr := s.AppointmentStatus(ctx, appointmentID); statusErr != nil {
				return uuid.Nil, statusErr
			}
			return uuid.Nil, ErrInvalidTransition
		}
		return uuid.Nil, fmt.Errorf("set appointment status: %w", err)
	}

	return id, nil
}

// Views

const slotColumns = `id, provider_id, current_appointment_count, max_appointment_count,
	start_time, end_time, created_at, updated_at`

func (s *PgStore) ListSlots(ctx context.Context) ([]Slot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE deleted_at IS NULL
		ORDER BY start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

func (s *PgStore) ListProviderSlots(ctx context.Context, providerID uuid.UUID) ([]Slot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE deleted_at IS NULL
		  AND provider_id = $1
		ORDER BY start_time
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list provider slots: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

const scheduleColumns = `a.id, a.slot_id, a.patient_id,
	a.patient_abnormal_symptom, a.patient_is_missed_medication,
	a.patient_blood_test_status, a.patient_is_overdue_medication,
	a.patient_is_partner_hiv_positive,
	a.status, s.provider_id, s.start_time, s.end_time`

func (s *PgStore) PatientSchedule(ctx context.Context, patientID uuid.UUID) ([]ScheduleEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		WHERE a.deleted_at IS NULL
		  AND s.deleted_at IS NULL
		  AND a.patient_id = $1
		ORDER BY s.start_time, a.created_at
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient schedule: %w", err)
	}
	defer rows.Close()

	return collectScheduleEntries(rows)
}

func (s *PgStore) ProviderSchedule(ctx context.Context, providerID uuid.UUID) ([]ScheduleEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM appointments a
		JOIN slots s ON s.id = a.slot_id
		WHERE a.deleted_at IS NULL
		  AND s.deleted_at IS NULL
		  AND s.provider_id = $1
		ORDER BY s.start_time, a.created_at
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("provider schedule: %w", err)
	}
	defer rows.Close()

	return collectScheduleEntries(rows)
}

func collectScheduleEntries(rows pgx.Rows) ([]ScheduleEntry, error) {
	var result []ScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
