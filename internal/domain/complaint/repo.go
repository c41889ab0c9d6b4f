package complaint

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Type       ComplaintType
	Status     Status
	Department DepartmentKey
	SubjectID  string
}

// ComplaintRepository persists complaint documents. Save and UpdateDepartment
// succeed only when the stored version equals c.Version; on success they bump
// c.Version. A stale version fails with ErrConflict, a missing record with
// ErrNotFound.
type ComplaintRepository interface {
	Create(ctx context.Context, c *Complaint) error
	GetByID(ctx context.Context, id uuid.UUID) (*Complaint, error)
	Save(ctx context.Context, c *Complaint) error
	// UpdateDepartment writes only c.Departments[dept] plus the aggregate
	// status and timestamps.
	UpdateDepartment(ctx context.Context, c *Complaint, dept DepartmentKey) error
	Find(ctx context.Context, f Filter, limit, offset int) ([]*Complaint, int, error)
}
