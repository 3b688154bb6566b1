package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apptColumns = `id, user_id, patient_name, patient_email, patient_phone,
		starts_at, ends_at, duration_minutes,
		calendar_event_id, calendar_event_link,
		meeting_id, meeting_url, meeting_passcode,
		status, auto_confirmed, confirmed_at, confirmed_by,
		cancellation_reason, pt_notes, notes, created_at, updated_at`

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool DB
}

// DB is the pgx surface the repository needs. *pgxpool.Pool satisfies it,
// as does pgxmock.PgxPoolIface in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool DB) *PostgresRepository {
	if pool == nil {
		panic("appointment: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Create inserts a new row and fills in the generated timestamps.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, user_id, patient_name, patient_email, patient_phone,
			starts_at, ends_at, duration_minutes,
			calendar_event_id, calendar_event_link,
			meeting_id, meeting_url, meeting_passcode,
			status, auto_confirmed, confirmed_at, confirmed_by,
			cancellation_reason, pt_notes, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.UserID,
		appt.PatientName,
		appt.PatientEmail,
		appt.PatientPhone,
		appt.StartsAt,
		appt.EndsAt,
		appt.DurationMinutes,
		appt.CalendarEventID,
		appt.CalendarEventLink,
		appt.MeetingID,
		appt.MeetingURL,
		appt.MeetingPasscode,
		string(appt.Status),
		appt.AutoConfirmed,
		appt.ConfirmedAt,
		appt.ConfirmedBy,
		appt.CancellationReason,
		appt.PTNotes,
		appt.Notes,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return fmt.Errorf("appointment: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches a single appointment.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointment: select failed: %w", err)
	}
	return appt, nil
}

// Update rewrites the mutable columns of an existing row.
func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) error {
	query := `
		UPDATE appointments SET
			status = $2,
			confirmed_at = $3,
			confirmed_by = $4,
			cancellation_reason = $5,
			pt_notes = $6,
			meeting_id = $7,
			meeting_url = $8,
			meeting_passcode = $9,
			calendar_event_id = $10,
			calendar_event_link = $11,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		appt.ID,
		string(appt.Status),
		appt.ConfirmedAt,
		appt.ConfirmedBy,
		appt.CancellationReason,
		appt.PTNotes,
		appt.MeetingID,
		appt.MeetingURL,
		appt.MeetingPasscode,
		appt.CalendarEventID,
		appt.CalendarEventLink,
	).Scan(&appt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("appointment: update failed: %w", err)
	}
	return nil
}

// List returns appointments matching the filter, soonest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = "+arg(filter.UserID))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}
	if !filter.UpcomingAfter.IsZero() {
		conds = append(conds, "starts_at >= "+arg(filter.UpcomingAfter))
	}

	query := `SELECT ` + apptColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY starts_at ASC LIMIT " + arg(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointment: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointment: scan failed: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointment: rows failed: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt        Appointment
		status      string
		confirmedAt *time.Time
	)
	if err := row.Scan(
		&appt.ID,
		&appt.UserID,
		&appt.PatientName,
		&appt.PatientEmail,
		&appt.PatientPhone,
		&appt.StartsAt,
		&appt.EndsAt,
		&appt.DurationMinutes,
		&appt.CalendarEventID,
		&appt.CalendarEventLink,
		&appt.MeetingID,
		&appt.MeetingURL,
		&appt.MeetingPasscode,
		&status,
		&appt.AutoConfirmed,
		&confirmedAt,
		&appt.ConfirmedBy,
		&appt.CancellationReason,
		&appt.PTNotes,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	appt.Status = Status(status)
	appt.ConfirmedAt = confirmedAt
	return &appt, nil
}
