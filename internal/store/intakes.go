package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"medication-reminders/internal/schedule"
)

// AppendIntake records one confirmed dose. Intake events are append-only;
// nothing in this subsystem updates or deletes them.
func (s *Store) AppendIntake(ctx context.Context, ev *schedule.IntakeEvent) error {
	ev.ID = uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO intake_events (id, medication_name, taken_at, dosage_taken) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.MedicationName, toMillis(ev.TakenAt), ev.DosageTaken)
	if err != nil {
		return fmt.Errorf("append intake event: %w", err)
	}
	return nil
}

// ListIntakes returns up to limit intake events, newest first.
func (s *Store) ListIntakes(ctx context.Context, limit int) ([]*schedule.IntakeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, medication_name, taken_at, dosage_taken
		FROM intake_events ORDER BY taken_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list intake events: %w", err)
	}
	defer rows.Close()

	var out []*schedule.IntakeEvent
	for rows.Next() {
		var (
			ev      schedule.IntakeEvent
			takenAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.MedicationName, &takenAt, &ev.DosageTaken); err != nil {
			return nil, err
		}
		ev.TakenAt = fromMillis(takenAt)
		out = append(out, &ev)
	}
	return out, rows.Err()
}
