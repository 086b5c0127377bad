package schedule

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

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	var consumedBy *uuid.UUID

	err := row.Scan(
		&s.ID,
		&s.ScheduleID,
		&s.Start,
		&s.End,
		&s.Price,
		&consumedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.ConsumedBy = consumedBy
	return &s, nil
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var sc Schedule

	err := row.Scan(
		&sc.ID,
		&sc.HospitalID,
		&sc.DoctorID,
		&sc.Date,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	return &sc, nil
}

// Interface methods

func (r *PgRepository) InsertSchedule(ctx context.Context, sched *Schedule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert schedule: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO schedules (id, hospital_id, doctor_id, date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`, sched.ID, sched.HospitalID, sched.DoctorID, sched.Date)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrScheduleExists
		}
		return fmt.Errorf("insert schedule: %w", err)
	}

	for i := range sched.Slots {
		slot := &sched.Slots[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO time_slots (id, schedule_id, start_time, end_time, price, consumed_by_appointment_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NULL, now(), now())
		`, slot.ID, sched.ID, slot.Start, slot.End, slot.Price)
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, hospital_id, doctor_id, date, created_at, updated_at
		FROM schedules
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)

	sched, err := scanSchedule(row)
	if err != nil {
		return nil, err
	}

	slots, err := r.slotsForSchedules(ctx, []uuid.UUID{sched.ID})
	if err != nil {
		return nil, err
	}
	sched.Slots = slots[sched.ID]

	return sched, nil
}

func (r *PgRepository) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, hospital_id, doctor_id, date, created_at, updated_at
		FROM schedules
		WHERE hospital_id = $1
		ORDER BY date DESC
	`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Schedule
	var ids []uuid.UUID
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sc)
		ids = append(ids, sc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return result, nil
	}

	slots, err := r.slotsForSchedules(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Slots = slots[result[i].ID]
	}

	return result, nil
}

func (r *PgRepository) slotsForSchedules(ctx context.Context, scheduleIDs []uuid.UUID) (map[uuid.UUID][]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, schedule_id, start_time, end_time, price, consumed_by_appointment_id, created_at, updated_at
		FROM time_slots
		WHERE schedule_id = ANY($1)
		ORDER BY start_time
	`, scheduleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]TimeSlot, len(scheduleIDs))
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out[s.ScheduleID] = append(out[s.ScheduleID], *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *PgRepository) FindSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, slotID uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT s.id, s.schedule_id, s.start_time, s.end_time, s.price, s.consumed_by_appointment_id, s.created_at, s.updated_at
		FROM time_slots s
		JOIN schedules sc ON sc.id = s.schedule_id
		WHERE s.id = $1 AND sc.doctor_id = $2 AND sc.date = $3
	`, slotID, doctorID, date)
	return scanSlot(row)
}

func (r *PgRepository) GetSlot(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, schedule_id, start_time, end_time, price, consumed_by_appointment_id, created_at, updated_at
		FROM time_slots
		WHERE id = $1
	`, slotID)
	return scanSlot(row)
}

// MarkConsumed succeeds for exactly one appointment per slot: the conditional
// update is the linearization point for concurrent booking attempts.
func (r *PgRepository) MarkConsumed(ctx context.Context, slotID, appointmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET consumed_by_appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND consumed_by_appointment_id IS NULL
	`, slotID, appointmentID)
	if err != nil {
		return fmt.Errorf("mark slot consumed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the slot is gone or someone else holds it.
	if _, err := r.GetSlot(ctx, slotID); err != nil {
		return err
	}
	return ErrSlotAlreadyBooked
}

func (r *PgRepository) Release(ctx context.Context, slotID, appointmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET consumed_by_appointment_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND consumed_by_appointment_id = $2
	`, slotID, appointmentID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetSlot(ctx, slotID); err != nil {
		return err
	}
	return ErrSlotNotHeld
}

func (r *PgRepository) FindOrphanedSlots(ctx context.Context) ([]OrphanedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.consumed_by_appointment_id, s.start_time, s.end_time
		FROM time_slots s
		WHERE s.consumed_by_appointment_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.id = s.consumed_by_appointment_id
		  )
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OrphanedSlot
	for rows.Next() {
		var o OrphanedSlot
		if err := rows.Scan(&o.SlotID, &o.ConsumedBy, &o.Start, &o.End); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ReleaseCancelledHolds(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET consumed_by_appointment_id = NULL,
		    updated_at = now()
		WHERE consumed_by_appointment_id IN (
			SELECT id FROM appointments WHERE status = 'cancelled'
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("release cancelled holds: %w", err)
	}
	return tag.RowsAffected(), nil
}
