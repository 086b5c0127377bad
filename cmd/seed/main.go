package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/scheduling/internal/db"
	"github.com/clinicdesk/scheduling/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	tz := os.Getenv("SCHEDULE_TZ")
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatalf("invalid SCHEDULE_TZ: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	hospitals, err := seedHospitals(context.Background(), pool, 5)
	if err != nil {
		log.Fatalf("seed hospitals: %v", err)
	}
	doctors, err := seedDoctors(context.Background(), pool, hospitals, 10)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedSchedules(context.Background(), pool, loc, doctors); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}

	log.Println("seed complete")
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d hospitals", count)

	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Hospital"
		address := gofakeit.Street() + ", " + gofakeit.City()

		_, err := tx.Exec(ctx, `
			INSERT INTO hospitals (id, name, address, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, address)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("hospitals seeded")
	return ids, nil
}

type seededDoctor struct {
	ID         uuid.UUID
	HospitalID uuid.UUID
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, hospitals []uuid.UUID, perHospital int) ([]seededDoctor, error) {
	log.Printf("seeding %d doctors per hospital", perHospital)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	var doctors []seededDoctor

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, hospitalID := range hospitals {
		for i := 0; i < perHospital; i++ {
			id := uuid.New()
			name := "Dr. " + gofakeit.Name()
			spec := specialties[gofakeit.Number(0, len(specialties)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, hospital_id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, hospitalID, name, spec)
			if err != nil {
				return nil, err
			}
			doctors = append(doctors, seededDoctor{ID: id, HospitalID: hospitalID})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return doctors, nil
}

// seedSchedules goes through the slot store so seeded data honors the same
// overlap and past-date rules as real input.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, loc *time.Location, doctors []seededDoctor) error {
	log.Printf("seeding schedules for %d doctors", len(doctors))

	store := schedule.NewStore(schedule.NewPgRepository(pool), loc)
	today := schedule.Midnight(time.Now().In(loc))

	for _, doc := range doctors {
		for day := 1; day <= 7; day++ {
			date := today.AddDate(0, 0, day)

			var slots []schedule.SlotInput
			// 30-minute slots from 09:00 to 12:00
			for h := 9; h < 12; h++ {
				for _, m := range []int{0, 30} {
					start := time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, loc)
					slots = append(slots, schedule.SlotInput{
						Start: start,
						End:   start.Add(30 * time.Minute),
						Price: int64(gofakeit.Number(5, 20)) * 10000,
					})
				}
			}

			if _, err := store.CreateSchedule(ctx, doc.HospitalID, doc.ID, date, slots); err != nil {
				return err
			}
		}
	}

	log.Println("schedules seeded")
	return nil
}
