package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const visitColumns = `id, client_id, client_name, client_address, caregiver_id,
	scheduled_start, scheduled_end, actual_start, actual_end,
	service_type, status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanClient(row pgx.Row) (*Client, error) {
	var c Client

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Address,
		&c.Phone,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanCaregiver(row pgx.Row) (*Caregiver, error) {
	var c Caregiver

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Phone,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaregiverNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit

	err := row.Scan(
		&v.ID,
		&v.ClientID,
		&v.ClientName,
		&v.ClientAddress,
		&v.CaregiverID,
		&v.ScheduledStart,
		&v.ScheduledEnd,
		&v.ActualStart,
		&v.ActualEnd,
		&v.ServiceType,
		&v.Status,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	return &v, nil
}

func scanVisitDetail(row pgx.Row) (*VisitDetail, error) {
	var d VisitDetail

	err := row.Scan(
		&d.ID,
		&d.ClientID,
		&d.ClientName,
		&d.ClientAddress,
		&d.CaregiverID,
		&d.ScheduledStart,
		&d.ScheduledEnd,
		&d.ActualStart,
		&d.ActualEnd,
		&d.ServiceType,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.CaregiverName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	return &d, nil
}

func collectDetails(rows pgx.Rows) ([]VisitDetail, error) {
	defer rows.Close()

	var result []VisitDetail
	for rows.Next() {
		d, err := scanVisitDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, address, phone, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (r *PgRepository) GetCaregiverByID(ctx context.Context, id uuid.UUID) (*Caregiver, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM caregivers
		WHERE id = $1
	`, id)
	return scanCaregiver(row)
}

func (r *PgRepository) GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE id = $1
	`, id)
	return scanVisit(row)
}

func (r *PgRepository) CreateVisit(ctx context.Context, v *Visit) (*Visit, error) {
	id := v.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO visits (id, client_id, client_name, client_address, caregiver_id,
			scheduled_start, scheduled_end, service_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+visitColumns+`
	`, id, v.ClientID, v.ClientName, v.ClientAddress, v.CaregiverID,
		v.ScheduledStart, v.ScheduledEnd, v.ServiceType, v.Status)

	return scanVisit(row)
}

func (r *PgRepository) UpdateCaregiver(ctx context.Context, visitID uuid.UUID, caregiverID *uuid.UUID, guard Guard) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE visits
		SET caregiver_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND caregiver_id IS NOT DISTINCT FROM $3
		  AND scheduled_start = $4
		  AND scheduled_end = $5
		  AND status IN ('SCHEDULED', 'IN_PROGRESS')
		RETURNING `+visitColumns+`
	`, visitID, caregiverID, guard.CaregiverID, guard.Start, guard.End)

	v, err := scanVisit(row)
	if errors.Is(err, ErrVisitNotFound) {
		// Distinguish a missing visit from a guard mismatch.
		if _, getErr := r.GetVisitByID(ctx, visitID); getErr == nil {
			return nil, ErrVisitChanged
		}
		return nil, ErrVisitNotFound
	}
	return v, err
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, visitID uuid.UUID, start, end time.Time, expectCaregiverID *uuid.UUID) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE visits
		SET scheduled_start = $2,
		    scheduled_end = $3,
		    updated_at = now()
		WHERE id = $1
		  AND caregiver_id IS NOT DISTINCT FROM $4
		  AND status != 'CANCELLED'
		RETURNING `+visitColumns+`
	`, visitID, start, end, expectCaregiverID)

	v, err := scanVisit(row)
	if errors.Is(err, ErrVisitNotFound) {
		if _, getErr := r.GetVisitByID(ctx, visitID); getErr == nil {
			return nil, ErrVisitChanged
		}
		return nil, ErrVisitNotFound
	}
	return v, err
}

func (r *PgRepository) UpdateStatus(ctx context.Context, visitID uuid.UUID, to Status, allowedFrom ...Status) (*Visit, error) {
	from := make([]string, 0, len(allowedFrom))
	for _, s := range allowedFrom {
		from = append(from, string(s))
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE visits
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+visitColumns+`
	`, visitID, to, from)

	v, err := scanVisit(row)
	if errors.Is(err, ErrVisitNotFound) {
		// Distinguish a missing visit from a disallowed transition.
		if _, getErr := r.GetVisitByID(ctx, visitID); getErr == nil {
			return nil, ErrStatusTransition
		}
		return nil, ErrVisitNotFound
	}
	return v, err
}

func (r *PgRepository) ListCaregiverBookings(ctx context.Context, caregiverID uuid.UUID, start, end time.Time, excludeVisitID uuid.UUID) ([]Visit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE caregiver_id = $1
		  AND status != 'CANCELLED'
		  AND scheduled_start < $3
		  AND scheduled_end > $2
		  AND id != $4
		ORDER BY scheduled_start, id
	`, caregiverID, start, end, excludeVisitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListActiveBookings(ctx context.Context, since time.Time) ([]Visit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE caregiver_id IS NOT NULL
		  AND status != 'CANCELLED'
		  AND scheduled_end > $1
		ORDER BY caregiver_id, scheduled_start
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListVisitsIntersecting(ctx context.Context, start, end time.Time, f ListFilter) ([]VisitDetail, error) {
	builder := sq.Select(
		"v.id", "v.client_id", "v.client_name", "v.client_address", "v.caregiver_id",
		"v.scheduled_start", "v.scheduled_end", "v.actual_start", "v.actual_end",
		"v.service_type", "v.status", "v.created_at", "v.updated_at",
		"COALESCE(cg.name, '')",
	).
		From("visits v").
		LeftJoin("caregivers cg ON cg.id = v.caregiver_id").
		Where(sq.Lt{"v.scheduled_start": end}).
		Where(sq.Gt{"v.scheduled_end": start}).
		OrderBy("v.scheduled_start", "v.id").
		PlaceholderFormat(sq.Dollar)

	if f.CaregiverID != nil {
		builder = builder.Where(sq.Eq{"v.caregiver_id": *f.CaregiverID})
	}
	if f.ClientID != nil {
		builder = builder.Where(sq.Eq{"v.client_id": *f.ClientID})
	}
	if f.Status != nil {
		builder = builder.Where(sq.Eq{"v.status": string(*f.Status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build visit list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return collectDetails(rows)
}

func (r *PgRepository) ListUnassigned(ctx context.Context, start, end time.Time) ([]VisitDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.client_id, v.client_name, v.client_address, v.caregiver_id,
		       v.scheduled_start, v.scheduled_end, v.actual_start, v.actual_end,
		       v.service_type, v.status, v.created_at, v.updated_at,
		       ''
		FROM visits v
		WHERE v.caregiver_id IS NULL
		  AND v.status != 'CANCELLED'
		  AND v.scheduled_start < $2
		  AND v.scheduled_end > $1
		ORDER BY v.scheduled_start, v.id
	`, start, end)
	if err != nil {
		return nil, err
	}

	return collectDetails(rows)
}

func (r *PgRepository) CountUnassignedStartingBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM visits
		WHERE caregiver_id IS NULL
		  AND status != 'CANCELLED'
		  AND scheduled_start >= $1
		  AND scheduled_start < $2
	`, from, to).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
