package complaint

import "time"

// Rollup computes an aggregate status from department statuses alone. Only
// active departments count. With none it is open; with all of them resolved it
// is resolved, or resolved_by_admin when every one was admin-resolved;
// otherwise partial.
func Rollup(departments map[DepartmentKey]*DepartmentConcern) Status {
	var active, resolved, byAdmin int
	for _, d := range departments {
		if !d.Active() {
			continue
		}
		active++
		switch d.Status {
		case StatusResolved:
			resolved++
		case StatusResolvedByAdmin:
			resolved++
			byAdmin++
		}
	}

	if active == 0 {
		return StatusOpen
	}
	if resolved == active {
		if byAdmin == active {
			return StatusResolvedByAdmin
		}
		return StatusResolved
	}
	return StatusPartial
}

// Derive is the single place the aggregate status of a complaint is computed.
// Every workflow action stores its result.
func Derive(c *Complaint) Status {
	if r := c.GlobalResolution; r != nil {
		if r.ResolvedByAdmin {
			return StatusResolvedByAdmin
		}
		return StatusResolved
	}

	latest := latestGlobalKind(c)
	active := c.ActiveDepartments()
	if len(active) == 0 {
		switch latest {
		case KindEscalated:
			return StatusEscalated
		case KindInProgress:
			return StatusInProgress
		case KindForwarded:
			return StatusForwarded
		}
		return StatusOpen
	}

	if rolled := Rollup(c.Departments); rolled.IsResolved() {
		return rolled
	}

	var escalated, resolved, inProgress, forwarded bool
	for _, k := range active {
		switch c.Departments[k].Status {
		case StatusEscalated:
			escalated = true
		case StatusResolved, StatusResolvedByAdmin:
			resolved = true
		case StatusInProgress:
			inProgress = true
		case StatusForwarded:
			forwarded = true
		}
	}

	// Some but not all active departments resolved is partial, whatever else
	// is going on.
	switch {
	case resolved:
		return StatusPartial
	case escalated || latest == KindEscalated:
		return StatusEscalated
	case inProgress || latest == KindInProgress:
		return StatusInProgress
	case forwarded || latest == KindForwarded:
		return StatusForwarded
	}
	return StatusOpen
}

// latestGlobalKind returns the kind of the most recent whole-document event
// other than a resolution, or "" when there is none. Ties go to escalation,
// then progress.
func latestGlobalKind(c *Complaint) EventKind {
	var (
		kind EventKind
		at   time.Time
	)
	consider := func(k EventKind, ts time.Time) {
		if kind == "" || !ts.Before(at) {
			kind, at = k, ts
		}
	}
	if n := len(c.GlobalForwards); n > 0 {
		consider(KindForwarded, c.GlobalForwards[n-1].Timestamp)
	}
	if c.GlobalProgress != nil {
		consider(KindInProgress, c.GlobalProgress.Timestamp)
	}
	if n := len(c.GlobalEscalations); n > 0 {
		consider(KindEscalated, c.GlobalEscalations[n-1].Timestamp)
	}
	return kind
}
