package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"consent-ledger/internal/dbx"
	"consent-ledger/internal/domain/accessgrants"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	uniqueViolation = "23505"
	openGrantIndex  = "access_grants_open_uq"
)

const grantColumns = `
	id, subject_id, grantee_id, scope, purpose, status,
	requested_at, decided_at, expires_at, revision`

// GrantsRepo implementa accessgrants.Repository. Cada escritura de grant va
// en la misma transacción que su entrada de auditoría.
type GrantsRepo struct {
	db    *sql.DB
	types *pgtype.Map
}

func NewGrantsRepo(db *sql.DB) *GrantsRepo {
	return &GrantsRepo{db: db, types: pgtype.NewMap()}
}

func (r *GrantsRepo) Get(ctx context.Context, id string) (accessgrants.Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return accessgrants.Grant{}, accessgrants.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT`+grantColumns+`
		FROM access_grants
		WHERE id = $1
	`, id)

	g, err := r.scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return accessgrants.Grant{}, accessgrants.ErrNotFound
	}
	return g, err
}

func (r *GrantsRepo) Create(ctx context.Context, g accessgrants.Grant, entry accessgrants.AuditEntry) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockChain(ctx, tx, g.ID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO access_grants (
				id, subject_id, grantee_id, scope, scope_key, purpose, status,
				requested_at, decided_at, expires_at, revision
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
			g.ID,
			g.SubjectID,
			g.GranteeID,
			g.Scope,
			g.ScopeKey(),
			g.Purpose,
			string(g.Status),
			g.RequestedAt,
			toNullTime(g.DecidedAt),
			toNullTime(g.ExpiresAt),
			g.Revision,
		)
		if err != nil {
			if isOpenGrantViolation(err) {
				return accessgrants.ErrDuplicateRequest
			}
			return fmt.Errorf("insert grant: %w", err)
		}

		_, err = appendAudit(ctx, tx, entry)
		return err
	})
}

func (r *GrantsRepo) Put(ctx context.Context, g accessgrants.Grant, expected int64, entry accessgrants.AuditEntry) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockChain(ctx, tx, g.ID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE access_grants
			SET
				status = $3,
				decided_at = $4,
				expires_at = $5,
				revision = $6
			WHERE id = $1 AND revision = $2
		`,
			g.ID,
			expected,
			string(g.Status),
			toNullTime(g.DecidedAt),
			toNullTime(g.ExpiresAt),
			g.Revision,
		)
		if err != nil {
			return fmt.Errorf("update grant: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		switch n {
		case 1:
		case 0:
			return missingOrStale(ctx, tx, g.ID)
		default:
			return fmt.Errorf("unexpected rows affected: %d", n)
		}

		_, err = appendAudit(ctx, tx, entry)
		return err
	})
}

func (r *GrantsRepo) ListBySubject(ctx context.Context, subjectID string, statuses ...accessgrants.Status) ([]accessgrants.Grant, error) {
	return r.list(ctx, "subject_id", subjectID, statuses)
}

func (r *GrantsRepo) ListByGrantee(ctx context.Context, granteeID string, statuses ...accessgrants.Status) ([]accessgrants.Grant, error) {
	return r.list(ctx, "grantee_id", granteeID, statuses)
}

func (r *GrantsRepo) ListDueForExpiry(ctx context.Context, now time.Time) ([]accessgrants.Grant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+grantColumns+`
		FROM access_grants
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select due grants: %w", err)
	}
	return r.collect(rows)
}

func (r *GrantsRepo) Append(ctx context.Context, e accessgrants.AuditEntry) (accessgrants.AuditEntry, error) {
	if strings.TrimSpace(e.GrantID) == "" {
		return accessgrants.AuditEntry{}, errors.New("audit entry grant id required")
	}

	var sealed accessgrants.AuditEntry
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockChain(ctx, tx, e.GrantID); err != nil {
			return err
		}
		var err error
		sealed, err = appendAudit(ctx, tx, e)
		return err
	})
	return sealed, err
}

func (r *GrantsRepo) ListByGrant(ctx context.Context, grantID string) ([]accessgrants.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, grant_id, seq, from_status, to_status, actor_id, ts, reason, prev_hash, hash
		FROM grant_audit
		WHERE grant_id = $1
		ORDER BY seq ASC
	`, grantID)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit: %w", err)
	}
	defer rows.Close()

	out := make([]accessgrants.AuditEntry, 0)
	for rows.Next() {
		var (
			e        accessgrants.AuditEntry
			from, to string
		)
		if err := rows.Scan(&e.ID, &e.GrantID, &e.Seq, &from, &to, &e.ActorID, &e.Timestamp, &e.Reason, &e.PrevHash, &e.Hash); err != nil {
			return nil, err
		}
		e.FromStatus = accessgrants.Status(from)
		e.ToStatus = accessgrants.Status(to)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *GrantsRepo) list(ctx context.Context, column, id string, statuses []accessgrants.Status) ([]accessgrants.Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}

	query := `SELECT` + grantColumns + `
		FROM access_grants
		WHERE ` + column + ` = $1`
	args := []any{id}
	if len(statuses) > 0 {
		s := make([]string, 0, len(statuses))
		for _, st := range statuses {
			s = append(s, string(st))
		}
		query += ` AND status = ANY($2)`
		args = append(args, s)
	}
	query += ` ORDER BY requested_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select grants: %w", err)
	}
	return r.collect(rows)
}

func (r *GrantsRepo) collect(rows *sql.Rows) ([]accessgrants.Grant, error) {
	defer rows.Close()

	out := make([]accessgrants.Grant, 0)
	for rows.Next() {
		g, err := r.scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *GrantsRepo) scanGrant(s scanner) (accessgrants.Grant, error) {
	var (
		g         accessgrants.Grant
		status    string
		scope     []string
		decidedAt sql.NullTime
		expiresAt sql.NullTime
	)

	if err := s.Scan(
		&g.ID,
		&g.SubjectID,
		&g.GranteeID,
		r.types.SQLScanner(&scope),
		&g.Purpose,
		&status,
		&g.RequestedAt,
		&decidedAt,
		&expiresAt,
		&g.Revision,
	); err != nil {
		return accessgrants.Grant{}, err
	}

	g.Scope = scope
	g.Status = accessgrants.Status(status)
	g.RequestedAt = g.RequestedAt.UTC()
	g.DecidedAt = fromNullTime(decidedAt)
	g.ExpiresAt = fromNullTime(expiresAt)
	return g, nil
}

// lockChain serializa escritores de un mismo grant hasta el fin de la
// transacción, así el seq/prev_hash leído sigue siendo el último al insertar.
func lockChain(ctx context.Context, tx dbx.DBTX, grantID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, grantID); err != nil {
		return fmt.Errorf("lock audit chain: %w", err)
	}
	return nil
}

func appendAudit(ctx context.Context, tx dbx.DBTX, e accessgrants.AuditEntry) (accessgrants.AuditEntry, error) {
	var (
		last    accessgrants.AuditEntry
		lastPtr *accessgrants.AuditEntry
	)
	err := tx.QueryRowContext(ctx, `
		SELECT seq, hash
		FROM grant_audit
		WHERE grant_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, e.GrantID).Scan(&last.Seq, &last.Hash)
	switch {
	case err == nil:
		lastPtr = &last
	case errors.Is(err, sql.ErrNoRows):
	default:
		return accessgrants.AuditEntry{}, fmt.Errorf("select last audit: %w", err)
	}

	sealed, err := accessgrants.SealEntry(lastPtr, e)
	if err != nil {
		return accessgrants.AuditEntry{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO grant_audit (
			id, grant_id, seq, from_status, to_status, actor_id, ts, reason, prev_hash, hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		sealed.ID,
		sealed.GrantID,
		sealed.Seq,
		string(sealed.FromStatus),
		string(sealed.ToStatus),
		sealed.ActorID,
		sealed.Timestamp,
		sealed.Reason,
		sealed.PrevHash,
		sealed.Hash,
	)
	if err != nil {
		return accessgrants.AuditEntry{}, fmt.Errorf("insert audit: %w", err)
	}
	return sealed, nil
}

func missingOrStale(ctx context.Context, tx dbx.DBTX, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM access_grants WHERE id = $1`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return accessgrants.ErrNotFound
	case err != nil:
		return err
	default:
		return accessgrants.ErrStaleRevision
	}
}

func isOpenGrantViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openGrantIndex
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
