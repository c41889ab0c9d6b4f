package complaint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstruct_OrdersAllSources(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

	c := &Complaint{
		CreatedBy: "staff-1",
		CreatedAt: t0,
		Departments: map[DepartmentKey]*DepartmentConcern{
			DeptBilling: {
				Text:   "overcharged",
				Status: StatusResolved,
				Events: []DepartmentEvent{
					{Kind: KindInProgress, Note: "checking", ActorID: "b1", Timestamp: at(5)},
					{Kind: KindResolved, Note: "refunded", ActorID: "b1", Timestamp: at(30)},
				},
			},
		},
		GlobalEscalations: []EscalationEvent{{Level: LevelCOO, Note: "slow", ActorID: "s2", Timestamp: at(20)}},
		GlobalProgress:    &ProgressEvent{Note: "on it", ActorID: "s3", Timestamp: at(10)},
	}

	h := Reconstruct(c)
	require.Len(t, h.Timeline, 5)

	var types []string
	for i, e := range h.Timeline {
		types = append(types, e.Type)
		if i > 0 {
			assert.False(t, e.Timestamp.Before(h.Timeline[i-1].Timestamp))
		}
	}
	assert.Equal(t, []string{"created", "in_progress", "in_progress", "escalated", "resolved"}, types)
	assert.Equal(t, "Marked in progress (Billing)", h.Timeline[1].Label)
	assert.Equal(t, "Escalated to COO", h.Timeline[3].Label)
	assert.Equal(t, DeptBilling, h.Timeline[4].Department)
	assert.Empty(t, h.ForwardedDepartments)
	assert.NotNil(t, h.ForwardedDepartments)
}

func TestReconstruct_LegacyDepartmentFallback(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	c := &Complaint{
		CreatedAt: t0,
		Departments: map[DepartmentKey]*DepartmentConcern{
			DeptNursing: {
				Text:       "night staff rude",
				Status:     StatusEscalated,
				Escalation: &EscalationEvent{Level: LevelHOD, Note: "repeat", ActorID: "n1", Timestamp: t0.Add(time.Hour)},
			},
			DeptDiet: {
				Text:   "cold food",
				Status: StatusResolved,
			},
			DeptPharmacy: {
				Text:   "late meds",
				Status: StatusOpen,
			},
		},
	}

	h := Reconstruct(c)
	require.Len(t, h.Timeline, 2, "resolved without a sub-record and open departments add nothing")
	assert.Equal(t, "escalated", h.Timeline[1].Type)
	assert.Equal(t, "Escalated to HOD (Nursing)", h.Timeline[1].Label)
}

func TestReconstruct_DedupesDocumentForward(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	fwdAt := t0.Add(15 * time.Minute)
	c := &Complaint{
		CreatedAt: t0,
		Departments: map[DepartmentKey]*DepartmentConcern{
			DeptFrontOffice: {
				Text:   "long wait at admission",
				Status: StatusForwarded,
				Events: []DepartmentEvent{{Kind: KindForwarded, ActorID: "s1", Timestamp: fwdAt}},
			},
		},
		GlobalForwards: []ForwardEvent{
			{Department: DeptFrontOffice, ActorID: "s1", Timestamp: fwdAt},
			{Department: DeptFrontOffice, ActorID: "s1", Timestamp: fwdAt.Add(time.Hour)},
		},
	}

	h := Reconstruct(c)
	require.Len(t, h.Timeline, 3)
	assert.Equal(t, "Forwarded to Front Office", h.Timeline[1].Label)
	assert.Equal(t, []DepartmentKey{DeptFrontOffice}, h.ForwardedDepartments)
}

func TestReconstruct_KeepsSameInstantEvents(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	at := t0.Add(5 * time.Minute)
	c := &Complaint{
		CreatedAt: t0,
		Departments: map[DepartmentKey]*DepartmentConcern{
			DeptNursing: {
				Text:   "call bell ignored",
				Status: StatusForwarded,
				Events: []DepartmentEvent{
					{Kind: KindInProgress, ActorID: "s1", Timestamp: at},
					{Kind: KindInProgress, ActorID: "s1", Timestamp: at},
					{Kind: KindForwarded, ActorID: "s1", Timestamp: at},
				},
			},
		},
		GlobalEscalations: []EscalationEvent{
			{Level: LevelHOD, ActorID: "s1", Timestamp: at},
			{Level: LevelHOD, ActorID: "s1", Timestamp: at},
		},
	}

	h := Reconstruct(c)
	counts := map[string]int{}
	for _, e := range h.Timeline {
		counts[e.Type]++
	}
	assert.Equal(t, 2, counts[string(KindEscalated)])
	assert.Equal(t, 2, counts[string(KindInProgress)])
	assert.Equal(t, 1, counts[string(KindForwarded)], "a partial forward has no global twin")
	assert.Empty(t, h.ForwardedDepartments)
}

func TestReconstruct_ZeroTimestampUsesCreation(t *testing.T) {
	t0 := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	c := &Complaint{
		CreatedAt:        t0,
		GlobalResolution: &ResolutionEvent{Note: "closed", ResolvedByAdmin: true},
	}

	h := Reconstruct(c)
	require.Len(t, h.Timeline, 2)
	assert.Equal(t, t0, h.Timeline[1].Timestamp)
	assert.Equal(t, "Resolved by admin", h.Timeline[1].Label)
}

func TestDepartmentLabel(t *testing.T) {
	assert.Equal(t, "Housekeeping", departmentLabel(DeptHousekeeping))
	assert.Equal(t, "Front Office", departmentLabel(DeptFrontOffice))
	assert.Equal(t, "HR", departmentLabel(DeptHR))
	assert.Equal(t, "IT", departmentLabel(DeptIT))
}

func TestKnownDepartment(t *testing.T) {
	assert.True(t, KnownDepartment("billing"))
	assert.True(t, KnownDepartment("hr"))
	assert.True(t, KnownDepartment("maintenance"))
	assert.False(t, KnownDepartment("payroll"))
	assert.False(t, KnownDepartment(""))
}
