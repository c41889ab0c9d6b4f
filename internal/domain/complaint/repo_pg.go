package complaint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carewise/opsdesk/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// complaintRepoPG keeps each complaint as one JSONB document next to the
// columns used for filtering and the optimistic-lock version.
type complaintRepoPG struct{ pool *pgxpool.Pool }

func NewComplaintRepoPG(pool *pgxpool.Pool) ComplaintRepository {
	return &complaintRepoPG{pool: pool}
}

func (r *complaintRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *complaintRepoPG) Create(ctx context.Context, c *Complaint) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Version = 1
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode complaint: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO complaint (id, complaint_type, status, subject_id, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Type, c.Status, c.SubjectID, c.Version, doc, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("complaint %s already exists: %w", c.ID, ErrConflict)
		}
		return fmt.Errorf("insert complaint: %w", err)
	}
	return nil
}

func (r *complaintRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Complaint, error) {
	c, err := scanComplaint(r.conn(ctx).QueryRow(ctx,
		`SELECT document, version FROM complaint WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("complaint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

func (r *complaintRepoPG) Save(ctx context.Context, c *Complaint) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode complaint: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE complaint
		SET status = $2, subject_id = $3, document = $4, updated_at = $5, version = version + 1
		WHERE id = $1 AND version = $6`,
		c.ID, c.Status, c.SubjectID, doc, c.UpdatedAt, c.Version)
	if err != nil {
		return fmt.Errorf("update complaint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, c)
	}
	c.Version++
	return nil
}

func (r *complaintRepoPG) UpdateDepartment(ctx context.Context, c *Complaint, dept DepartmentKey) error {
	deptDoc, err := json.Marshal(c.Departments[dept])
	if err != nil {
		return fmt.Errorf("encode department %s: %w", dept, err)
	}
	updatedAt, err := json.Marshal(c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("encode timestamp: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE complaint
		SET document = jsonb_set(
				jsonb_set(
					jsonb_set(document, ARRAY['departments', $2::text], $3::jsonb, true),
					'{status}', to_jsonb($4::text)),
				'{updatedAt}', $5::jsonb),
			status = $4, updated_at = $6, version = version + 1
		WHERE id = $1 AND version = $7`,
		c.ID, string(dept), deptDoc, string(c.Status), updatedAt, c.UpdatedAt, c.Version)
	if err != nil {
		return fmt.Errorf("update department %s: %w", dept, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, c)
	}
	c.Version++
	return nil
}

func (r *complaintRepoPG) missOrConflict(ctx context.Context, c *Complaint) error {
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM complaint WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check complaint %s: %w", c.ID, err)
	}
	if !exists {
		return fmt.Errorf("complaint %s: %w", c.ID, ErrNotFound)
	}
	return fmt.Errorf("complaint %s at version %d: %w", c.ID, c.Version, ErrConflict)
}

func (r *complaintRepoPG) Find(ctx context.Context, f Filter, limit, offset int) ([]*Complaint, int, error) {
	where, args := filterSQL(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM complaint`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count complaints: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT document, version FROM complaint%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list complaints: %w", err)
	}
	defer rows.Close()

	var items []*Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func filterSQL(f Filter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Type != "" {
		add("complaint_type = $%d", string(f.Type))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.SubjectID != "" {
		add("subject_id = $%d", f.SubjectID)
	}
	if f.Department != "" {
		add("document->'departments' ? $%d", string(f.Department))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanComplaint(row pgx.Row) (*Complaint, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		return nil, err
	}
	var c Complaint
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("decode complaint: %w", err)
	}
	if c.Departments == nil {
		c.Departments = make(map[DepartmentKey]*DepartmentConcern)
	}
	c.Version = version
	return &c, nil
}
