package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/slot-booking-service/internal/booking"
	"github.com/carepoint/slot-booking-service/internal/db"
)

// Seeds a demo dataset: a handful of providers each offering a week of
// slots, and a pool of patients booked onto some of them. Everything goes
// through the booking service so the seeded data respects every invariant.
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	svc := booking.NewService(booking.NewPgStore(pool), nil, logger)

	const (
		providerCount   = 10
		slotsPerDay     = 8
		daysAhead       = 7
		patientCount    = 200
		bookingAttempts = 400
	)

	providers := make([]uuid.UUID, providerCount)
	for i := range providers {
		providers[i] = uuid.New()
	}

	patients := make([]uuid.UUID, patientCount)
	for i := range patients {
		patients[i] = uuid.New()
	}

	var slots []uuid.UUID
	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour).Add(9 * time.Hour)

	for _, providerID := range providers {
		for day := 0; day < daysAhead; day++ {
			for n := 0; n < slotsPerDay; n++ {
				start := dayStart.AddDate(0, 0, day).Add(time.Duration(n) * time.Hour)
				end := start.Add(time.Hour)
				maxCount := gofakeit.Number(1, 4)

				slotID, err := svc.AddSlot(context.Background(), providerID, maxCount, start, end)
				if err != nil {
					logger.Fatal().Err(err).Msg("seed slot")
				}
				slots = append(slots, slotID)
			}
		}
		logger.Info().Stringer("provider_id", providerID).Msg("provider slots seeded")
	}

	yesNo := []string{"yes", "no"}
	booked := 0
	for i := 0; i < bookingAttempts; i++ {
		slotID := slots[gofakeit.Number(0, len(slots)-1)]
		patientID := patients[gofakeit.Number(0, len(patients)-1)]

		intake := booking.Intake{
			AbnormalSymptom:    gofakeit.Sentence(4),
			MissedMedication:   gofakeit.RandomString(yesNo),
			BloodTestStatus:    gofakeit.RandomString([]string{"pending", "done", "overdue"}),
			OverdueMedication:  gofakeit.RandomString(yesNo),
			PartnerHIVPositive: gofakeit.RandomString(yesNo),
		}

		if _, err := svc.AddAppointment(context.Background(), slotID, patientID, intake); err == nil {
			booked++
		}
	}

	logger.Info().
		Int("providers", providerCount).
		Int("slots", len(slots)).
		Int("appointments", booked).
		Msg("seed complete")
}
