// simulate hammers the booking endpoint with concurrent workers racing for
// a shared pool of slots, then checks the ground truth: every slot ends up
// with at most one non-cancelled appointment and exactly the holder recorded
// on the slot row.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	SlotLimit   int
	PostgresDSN string
}

type targetSlot struct {
	SlotID     uuid.UUID
	DoctorID   uuid.UUID
	HospitalID uuid.UUID
	Date       string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))

	idx := func(pct int) int {
		i := len(latencies) * pct / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return i
	}
	return avg, latencies[idx(50)], latencies[idx(95)]
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()
	log.Printf("simulate: base_url=%s workers=%d duration=%s slot_limit=%d",
		cfg.APIBaseURL, cfg.Workers, cfg.Duration, cfg.SlotLimit)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	targets, err := loadTargets(context.Background(), pool, cfg.SlotLimit)
	if err != nil {
		log.Fatalf("load target slots: %v", err)
	}
	if len(targets) == 0 {
		log.Fatal("no available slots found, run the seed first")
	}
	log.Printf("racing %d workers over %d slots", cfg.Workers, len(targets))

	metrics := &OperationMetrics{}
	runCtx, stop := context.WithTimeout(context.Background(), cfg.Duration)
	defer stop()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			for runCtx.Err() == nil {
				target := targets[rand.Intn(len(targets))]
				bookOnce(runCtx, client, cfg.APIBaseURL, target, metrics)
			}
		}()
	}
	wg.Wait()

	report(metrics)

	if err := verify(context.Background(), pool, targets); err != nil {
		log.Fatalf("VERIFICATION FAILED: %v", err)
	}
	log.Println("verification passed: no double bookings")
}

func bookOnce(ctx context.Context, client *http.Client, baseURL string, target targetSlot, metrics *OperationMetrics) {
	body, _ := json.Marshal(map[string]string{
		"doctorId":        target.DoctorID.String(),
		"hospitalId":      target.HospitalID.String(),
		"date":            target.Date,
		"slotId":          target.SlotID.String(),
		"patientRecordId": uuid.NewString(),
		"patientName":     fmt.Sprintf("sim-patient-%d", rand.Intn(100000)),
		"patientPhone":    fmt.Sprintf("09%09d", rand.Intn(1000000000)),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/appointment", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			metrics.Record(latency, false, false)
		}
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		metrics.Record(latency, true, false)
	case http.StatusConflict:
		metrics.Record(latency, false, true)
	default:
		metrics.Record(latency, false, false)
	}
}

func loadTargets(ctx context.Context, pool *pgxpool.Pool, limit int) ([]targetSlot, error) {
	rows, err := pool.Query(ctx, `
		SELECT s.id, sc.doctor_id, sc.hospital_id, to_char(sc.date, 'YYYY-MM-DD')
		FROM time_slots s
		JOIN schedules sc ON sc.id = s.schedule_id
		WHERE s.consumed_by_appointment_id IS NULL
		ORDER BY s.start_time
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []targetSlot
	for rows.Next() {
		var t targetSlot
		if err := rows.Scan(&t.SlotID, &t.DoctorID, &t.HospitalID, &t.Date); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// verify asserts the no-double-booking property directly against the store.
func verify(ctx context.Context, pool *pgxpool.Pool, targets []targetSlot) error {
	var violations int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT slot_id
			FROM appointments
			WHERE status <> 'cancelled'
			GROUP BY slot_id
			HAVING count(*) > 1
		) dup
	`).Scan(&violations)
	if err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("%d slots have more than one active appointment", violations)
	}

	var mismatches int
	err = pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.status <> 'cancelled'
		  AND s.consumed_by_appointment_id IS DISTINCT FROM a.id
	`).Scan(&mismatches)
	if err != nil {
		return err
	}
	if mismatches > 0 {
		return fmt.Errorf("%d active appointments whose slot does not record them as holder", mismatches)
	}

	return nil
}

func report(metrics *OperationMetrics) {
	avg, p50, p95 := metrics.Stats()
	log.Printf("bookings: total=%d success=%d conflict=%d error=%d",
		atomic.LoadInt64(&metrics.Total),
		atomic.LoadInt64(&metrics.Success),
		atomic.LoadInt64(&metrics.Conflict),
		atomic.LoadInt64(&metrics.Error))
	log.Printf("latency: avg=%s p50=%s p95=%s", avg, p50, p95)
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_BASE_URL", "http://127.0.0.1:8080"),
		Duration:    30 * time.Second,
		Workers:     20,
		SlotLimit:   50,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("SIM_SLOT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SlotLimit = n
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
