package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"medication-reminders/internal/schedule"
)

// Medications are owned by an external subsystem; this store only mirrors the
// fields the reminder engine reads at confirmation time. InsertMedication
// exists for seeding that mirror (and for tests).

// GetMedication returns the medication with the given ID, or ErrNotFound.
func (s *Store) GetMedication(ctx context.Context, id string) (*schedule.Medication, error) {
	var m schedule.Medication
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, dosage_per_intake FROM medications WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.DosagePerIntake)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return &m, nil
}

// InsertMedication stores a medication row, assigning an ID when absent.
func (s *Store) InsertMedication(ctx context.Context, m *schedule.Medication) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medications (id, name, dosage_per_intake) VALUES (?, ?, ?)`,
		m.ID, m.Name, m.DosagePerIntake)
	if err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	return nil
}

// DeleteMedication removes the medication row, or ErrNotFound. Cascading the
// schedules is the engine's job so their alarms are cancelled too.
func (s *Store) DeleteMedication(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete medication: %w", err)
	}
	return requireAffected(res)
}
