package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rosterbot/internal/models"
)

const volunteerColumns = `phone, name, skills, available, current_role, preferred_role`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVolunteer(row rowScanner, extra ...any) (models.Volunteer, error) {
	var (
		v             models.Volunteer
		skills        string
		available     int
		currentRole   sql.NullString
		preferredRole sql.NullString
	)
	dest := append([]any{&v.Phone, &v.Name, &skills, &available, &currentRole, &preferredRole}, extra...)
	if err := row.Scan(dest...); err != nil {
		return v, err
	}
	v.Skills = models.DeserializeSkills(skills)
	v.Available = available != 0
	v.CurrentRole = currentRole.String
	v.PreferredRole = preferredRole.String
	return v, nil
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetVolunteer loads one active record, returning ErrNotFound if absent
func GetVolunteer(ctx context.Context, q Querier, phone string) (models.Volunteer, error) {
	row := q.QueryRowContext(ctx, `SELECT `+volunteerColumns+` FROM volunteers WHERE phone = ?`, phone)
	v, err := scanVolunteer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrNotFound
	}
	if err != nil {
		return v, fmt.Errorf("failed to load volunteer: %w", err)
	}
	return v, nil
}

// UpsertVolunteer writes a full record
func UpsertVolunteer(ctx context.Context, q Querier, v models.Volunteer) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO volunteers (`+volunteerColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name,
			skills = excluded.skills,
			available = excluded.available,
			current_role = excluded.current_role,
			preferred_role = excluded.preferred_role`,
		v.Phone, v.Name, models.SerializeSkills(v.Skills), boolInt(v.Available),
		nullable(v.CurrentRole), nullable(v.PreferredRole),
	)
	if err != nil {
		return fmt.Errorf("failed to save volunteer: %w", err)
	}
	return nil
}

// ArchiveVolunteer moves an active record into deleted_volunteers
func ArchiveVolunteer(ctx context.Context, q Querier, v models.Volunteer, deletedAt time.Time) error {
	if _, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO deleted_volunteers (`+volunteerColumns+`, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.Phone, v.Name, models.SerializeSkills(v.Skills), boolInt(v.Available),
		nullable(v.CurrentRole), nullable(v.PreferredRole), deletedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to archive volunteer: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM volunteers WHERE phone = ?`, v.Phone); err != nil {
		return fmt.Errorf("failed to delete volunteer: %w", err)
	}
	return nil
}

// PurgeArchived removes any archived record for phone
func PurgeArchived(ctx context.Context, q Querier, phone string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM deleted_volunteers WHERE phone = ?`, phone); err != nil {
		return fmt.Errorf("failed to purge archived volunteer: %w", err)
	}
	return nil
}

// ListVolunteers returns all active records ordered by name
func ListVolunteers(ctx context.Context, q Querier) ([]models.Volunteer, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+volunteerColumns+` FROM volunteers ORDER BY name, phone`)
	if err != nil {
		return nil, fmt.Errorf("failed to list volunteers: %w", err)
	}
	defer rows.Close()

	var result []models.Volunteer
	for rows.Next() {
		v, err := scanVolunteer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan volunteer: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// ListDeleted returns the archive, most recent deletion first
func ListDeleted(ctx context.Context, q Querier) ([]models.DeletedVolunteer, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+volunteerColumns+`, deleted_at FROM deleted_volunteers ORDER BY deleted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted volunteers: %w", err)
	}
	defer rows.Close()

	var result []models.DeletedVolunteer
	for rows.Next() {
		var deletedAt string
		v, err := scanVolunteer(rows, &deletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deleted volunteer: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, deletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse deleted_at: %w", err)
		}
		result = append(result, models.DeletedVolunteer{Volunteer: v, DeletedAt: ts})
	}
	return result, rows.Err()
}
