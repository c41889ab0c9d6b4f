package complaint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func dept(status Status) *DepartmentConcern {
	return &DepartmentConcern{Text: "issue", Status: status}
}

func TestRollup(t *testing.T) {
	tests := []struct {
		name  string
		depts map[DepartmentKey]*DepartmentConcern
		want  Status
	}{
		{"no departments", nil, StatusOpen},
		{"only inactive departments", map[DepartmentKey]*DepartmentConcern{
			DeptBilling: {Status: StatusResolved},
		}, StatusOpen},
		{"none resolved", map[DepartmentKey]*DepartmentConcern{
			DeptBilling:      dept(StatusOpen),
			DeptHousekeeping: dept(StatusForwarded),
		}, StatusPartial},
		{"some resolved", map[DepartmentKey]*DepartmentConcern{
			DeptBilling:      dept(StatusResolved),
			DeptHousekeeping: dept(StatusEscalated),
		}, StatusPartial},
		{"all resolved by staff", map[DepartmentKey]*DepartmentConcern{
			DeptBilling:      dept(StatusResolved),
			DeptHousekeeping: dept(StatusResolved),
		}, StatusResolved},
		{"all resolved by admin", map[DepartmentKey]*DepartmentConcern{
			DeptBilling:      dept(StatusResolvedByAdmin),
			DeptHousekeeping: dept(StatusResolvedByAdmin),
		}, StatusResolvedByAdmin},
		{"mixed staff and admin", map[DepartmentKey]*DepartmentConcern{
			DeptBilling:      dept(StatusResolved),
			DeptHousekeeping: dept(StatusResolvedByAdmin),
		}, StatusResolved},
		{"inactive unresolved department ignored", map[DepartmentKey]*DepartmentConcern{
			DeptBilling: dept(StatusResolved),
			DeptDiet:    {Status: StatusOpen},
		}, StatusResolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rollup(tt.depts))
		})
	}
}

func TestDerive(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

	tests := []struct {
		name string
		c    *Complaint
		want Status
	}{
		{"empty complaint is open", &Complaint{}, StatusOpen},
		{"global resolution wins over open departments", &Complaint{
			Departments:      map[DepartmentKey]*DepartmentConcern{DeptBilling: dept(StatusOpen)},
			GlobalResolution: &ResolutionEvent{ResolvedByAdmin: true, Timestamp: at(1)},
		}, StatusResolvedByAdmin},
		{"staff global resolution", &Complaint{
			GlobalResolution: &ResolutionEvent{Timestamp: at(1)},
		}, StatusResolved},
		{"no active departments follows latest global event", &Complaint{
			GlobalEscalations: []EscalationEvent{{Level: LevelGM, Timestamp: at(1)}},
			GlobalProgress:    &ProgressEvent{Timestamp: at(2)},
		}, StatusInProgress},
		{"no active departments with global forward", &Complaint{
			GlobalForwards: []ForwardEvent{{Department: DeptBilling, Timestamp: at(1)}},
		}, StatusForwarded},
		{"all active resolved", &Complaint{
			Departments: map[DepartmentKey]*DepartmentConcern{
				DeptBilling:      dept(StatusResolved),
				DeptHousekeeping: dept(StatusResolved),
			},
		}, StatusResolved},
		{"resolved department beats escalated one", &Complaint{
			Departments: map[DepartmentKey]*DepartmentConcern{
				DeptBilling:      dept(StatusResolved),
				DeptHousekeeping: dept(StatusEscalated),
			},
		}, StatusPartial},
		{"partial resolve after global escalation", &Complaint{
			Departments: map[DepartmentKey]*DepartmentConcern{
				DeptBilling:      dept(StatusResolved),
				DeptHousekeeping: dept(StatusOpen),
			},
			GlobalEscalations: []EscalationEvent{{Level: LevelHOD, Timestamp: at(1)}},
		}, StatusPartial},
		{"latest global escalation", &Complaint{
			Departments:       map[DepartmentKey]*DepartmentConcern{DeptBilling: dept(StatusOpen)},
			GlobalEscalations: []EscalationEvent{{Level: LevelCEO, Timestamp: at(1)}},
		}, StatusEscalated},
		{"one resolved one open is partial", &Complaint{
			Departments: map[DepartmentKey]*DepartmentConcern{
				DeptBilling:      dept(StatusResolved),
				DeptHousekeeping: dept(StatusOpen),
			},
		}, StatusPartial},
		{"in progress department", &Complaint{
			Departments: map[DepartmentKey]*DepartmentConcern{
				DeptBilling:      dept(StatusInProgress),
				DeptHousekeeping: dept(StatusForwarded),
			},
		}, StatusInProgress},
		{"forwarded department", &Complaint{
			Departments: map[DepartmentKey]*DepartmentConcern{DeptBilling: dept(StatusForwarded)},
		}, StatusForwarded},
		{"global progress after escalation", &Complaint{
			Departments:       map[DepartmentKey]*DepartmentConcern{DeptBilling: dept(StatusOpen)},
			GlobalEscalations: []EscalationEvent{{Level: LevelHOD, Timestamp: at(1)}},
			GlobalProgress:    &ProgressEvent{Timestamp: at(2)},
		}, StatusInProgress},
		{"escalation wins a timestamp tie", &Complaint{
			Departments:       map[DepartmentKey]*DepartmentConcern{DeptBilling: dept(StatusOpen)},
			GlobalForwards:    []ForwardEvent{{Department: DeptBilling, Timestamp: at(1)}},
			GlobalEscalations: []EscalationEvent{{Level: LevelHOD, Timestamp: at(1)}},
		}, StatusEscalated},
		{"open departments only", &Complaint{
			Departments: map[DepartmentKey]*DepartmentConcern{DeptBilling: dept(StatusOpen)},
		}, StatusOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.c))
		})
	}
}
