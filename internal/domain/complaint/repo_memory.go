package complaint

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process ComplaintRepository used for local runs
// and tests. Records are copied on the way in and out.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[uuid.UUID]*Complaint
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[uuid.UUID]*Complaint)}
}

func (m *MemoryRepository) Create(_ context.Context, c *Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, exists := m.store[c.ID]; exists {
		return fmt.Errorf("complaint %s already exists: %w", c.ID, ErrConflict)
	}
	c.Version = 1
	m.store[c.ID] = c.Clone()
	return nil
}

func (m *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.store[id]
	if !ok {
		return nil, fmt.Errorf("complaint %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *MemoryRepository) Save(_ context.Context, c *Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersion(c); err != nil {
		return err
	}
	c.Version++
	m.store[c.ID] = c.Clone()
	return nil
}

func (m *MemoryRepository) UpdateDepartment(_ context.Context, c *Complaint, dept DepartmentKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersion(c); err != nil {
		return err
	}
	stored := m.store[c.ID].Clone()
	stored.Departments[dept] = c.Departments[dept].clone()
	stored.Status = c.Status
	stored.UpdatedAt = c.UpdatedAt
	stored.Version++
	m.store[c.ID] = stored
	c.Version = stored.Version
	return nil
}

func (m *MemoryRepository) checkVersion(c *Complaint) error {
	existing, ok := m.store[c.ID]
	if !ok {
		return fmt.Errorf("complaint %s: %w", c.ID, ErrNotFound)
	}
	if existing.Version != c.Version {
		return fmt.Errorf("complaint %s: stored version %d, have %d: %w",
			c.ID, existing.Version, c.Version, ErrConflict)
	}
	return nil
}

func (m *MemoryRepository) Find(_ context.Context, f Filter, limit, offset int) ([]*Complaint, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Complaint
	for _, c := range m.store {
		if f.Type != "" && c.Type != f.Type {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.SubjectID != "" && c.SubjectID != f.SubjectID {
			continue
		}
		if f.Department != "" {
			if _, ok := c.Departments[f.Department]; !ok {
				continue
			}
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*Complaint{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*Complaint, 0, end-offset)
	for _, c := range matched[offset:end] {
		out = append(out, c.Clone())
	}
	return out, total, nil
}
