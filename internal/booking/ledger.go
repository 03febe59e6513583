package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ledger advances appointments through the lifecycle one state at a time.
// Each transition reads the current status for a fast precondition check and
// then writes through a compare-and-set update carrying the expected
// predecessor, so a concurrent transition that commits in between still
// fails instead of applying twice.
type Ledger struct {
	store TxStore
	log   zerolog.Logger
}

func NewLedger(store TxStore, log zerolog.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log.With().Str("component", "ledger").Logger(),
	}
}

func (l *Ledger) ToReady(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	return l.advance(ctx, appointmentID, StatusWaiting, StatusReady)
}

func (l *Ledger) ToWaitingForPrescription(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	return l.advance(ctx, appointmentID, StatusReady, StatusWaitingForPrescription)
}

func (l *Ledger) ToCompleted(ctx context.Context, appointmentID uuid.UUID) (uuid.UUID, error) {
	return l.advance(ctx, appointmentID, StatusWaitingForPrescription, StatusCompleted)
}

func (l *Ledger) advance(ctx context.Context, appointmentID uuid.UUID, from, to Status) (uuid.UUID, error) {
	var affectedID uuid.UUID

	err := l.store.InTx(ctx, func(ctx context.Context, store Store) error {
		current, err := store.AppointmentStatus(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !current.CanAdvanceTo(to) {
			return ErrInvalidTransition
		}

		affectedID, err = store.SetAppointmentStatus(ctx, appointmentID, from, to)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}

	l.log.Info().
		Stringer("appointment_id", affectedID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("appointment status advanced")
	return affectedID, nil
}
