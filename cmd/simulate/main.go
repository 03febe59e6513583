package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carepoint/slot-booking-service/internal/db"
)

// Drives concurrent booking traffic against a running api-server and then
// audits the database for capacity invariant violations: every slot must
// satisfy 0 <= current <= max, and the counter must equal the number of
// live appointments pointing at it.

type metrics struct {
	total    int64
	success  int64
	conflict int64
	failure  int64
}

func (m *metrics) record(status int) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&m.success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.failure, 1)
	}
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "api-server base URL")
	workers := flag.Int("workers", 32, "concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "how long to run")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required (used for the final audit)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, dsn)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	slots, err := loadSlotIDs(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("load slots")
	}
	if len(slots) == 0 {
		logger.Fatal().Msg("no slots in database, run cmd/seed first")
	}
	logger.Info().Int("slots", len(slots)).Int("workers", *workers).Msg("starting simulation")

	patients := make([]uuid.UUID, 500)
	for i := range patients {
		patients[i] = uuid.New()
	}

	var m metrics
	deadline := time.Now().Add(*duration)
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				slotID := slots[rng.Intn(len(slots))]
				patientID := patients[rng.Intn(len(patients))]
				m.record(book(client, *baseURL, slotID, patientID))
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	logger.Info().
		Int64("total", m.total).
		Int64("success", m.success).
		Int64("conflict", m.conflict).
		Int64("failure", m.failure).
		Msg("simulation finished")

	violations, err := auditCapacity(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("audit failed")
	}
	if violations > 0 {
		logger.Fatal().Int("violations", violations).Msg("capacity invariant violated")
	}
	logger.Info().Msg("capacity audit clean")
}

func book(client *http.Client, baseURL string, slotID, patientID uuid.UUID) int {
	body, _ := json.Marshal(map[string]string{
		"slot_id":                         slotID.String(),
		"patient_abnormal_symptom":        "none",
		"patient_is_missed_medication":    "no",
		"patient_blood_test_status":       "done",
		"patient_is_overdue_medication":   "no",
		"patient_is_partner_hiv_positive": "no",
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Patient-ID", patientID.String())

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func loadSlotIDs(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id
		FROM slots
		WHERE deleted_at IS NULL
		  AND end_time > now()
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func auditCapacity(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var violations int

	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM slots s
		LEFT JOIN LATERAL (
			SELECT count(*) AS live
			FROM appointments a
			WHERE a.slot_id = s.id
			  AND a.deleted_at IS NULL
		) a ON true
		WHERE s.deleted_at IS NULL
		  AND (s.current_appointment_count < 0
		    OR s.current_appointment_count > s.max_appointment_count
		    OR s.current_appointment_count <> a.live)
	`).Scan(&violations)
	if err != nil {
		return 0, err
	}

	return violations, nil
}
