package complaint

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const entryCreated = "created"

type TimelineEntry struct {
	Type       string        `json:"type"`
	Label      string        `json:"label"`
	Note       string        `json:"note,omitempty"`
	ActorID    string        `json:"actorId,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Department DepartmentKey `json:"department,omitempty"`
}

type History struct {
	Timeline             []TimelineEntry `json:"timeline"`
	ForwardedDepartments []DepartmentKey `json:"forwardedDepartments"`
}

// Reconstruct builds one ascending timeline out of the global event lists and
// the per-department logs of c. Departments written before per-department logs
// existed contribute a single entry derived from their current status.
func Reconstruct(c *Complaint) History {
	entries := []TimelineEntry{{
		Type:      entryCreated,
		Label:     "Complaint registered",
		ActorID:   c.CreatedBy,
		Timestamp: c.CreatedAt,
	}}

	for _, f := range c.GlobalForwards {
		entries = append(entries, TimelineEntry{
			Type:       string(KindForwarded),
			Label:      label(KindForwarded, f.Department, ""),
			Note:       f.Note,
			ActorID:    f.ActorID,
			Timestamp:  f.Timestamp,
			Department: f.Department,
		})
	}
	for _, e := range c.GlobalEscalations {
		entries = append(entries, TimelineEntry{
			Type:      string(KindEscalated),
			Label:     label(KindEscalated, "", e.Level),
			Note:      e.Note,
			ActorID:   e.ActorID,
			Timestamp: e.Timestamp,
		})
	}
	if p := c.GlobalProgress; p != nil {
		entries = append(entries, TimelineEntry{
			Type:      string(KindInProgress),
			Label:     label(KindInProgress, "", ""),
			Note:      p.Note,
			ActorID:   p.ActorID,
			Timestamp: p.Timestamp,
		})
	}
	if r := c.GlobalResolution; r != nil {
		kind := resolutionKind(r.ResolvedByAdmin)
		entries = append(entries, TimelineEntry{
			Type:      string(kind),
			Label:     label(kind, "", ""),
			Note:      r.Note,
			ActorID:   r.ActorID,
			Timestamp: r.Timestamp,
		})
	}

	mirrored := globalForwardKeys(c.GlobalForwards)
	for _, key := range c.ActiveDepartments() {
		for _, e := range departmentEntries(key, c.Departments[key]) {
			if e.Type == string(KindForwarded) && mirrored[forwardKey{e.Department, e.Timestamp.UnixNano(), e.ActorID}] {
				continue
			}
			entries = append(entries, e)
		}
	}

	for i := range entries {
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = c.CreatedAt
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return History{
		Timeline:             entries,
		ForwardedDepartments: forwardedDepartments(c.GlobalForwards),
	}
}

func departmentEntries(key DepartmentKey, d *DepartmentConcern) []TimelineEntry {
	if len(d.Events) > 0 {
		out := make([]TimelineEntry, 0, len(d.Events))
		for _, ev := range d.Events {
			out = append(out, TimelineEntry{
				Type:       string(ev.Kind),
				Label:      label(ev.Kind, key, ev.Level),
				Note:       ev.Note,
				ActorID:    ev.ActorID,
				Timestamp:  ev.Timestamp,
				Department: key,
			})
		}
		return out
	}

	entry := TimelineEntry{Type: string(d.Status), Department: key}
	switch d.Status {
	case StatusForwarded:
		if d.Forward == nil {
			return nil
		}
		entry.Note, entry.ActorID, entry.Timestamp = d.Forward.Note, d.Forward.ActorID, d.Forward.Timestamp
		entry.Label = label(KindForwarded, key, "")
	case StatusInProgress:
		if d.Progress == nil {
			return nil
		}
		entry.Note, entry.ActorID, entry.Timestamp = d.Progress.Note, d.Progress.ActorID, d.Progress.Timestamp
		entry.Label = label(KindInProgress, key, "")
	case StatusEscalated:
		if d.Escalation == nil {
			return nil
		}
		entry.Note, entry.ActorID, entry.Timestamp = d.Escalation.Note, d.Escalation.ActorID, d.Escalation.Timestamp
		entry.Label = label(KindEscalated, key, d.Escalation.Level)
	case StatusResolved, StatusResolvedByAdmin:
		if d.Resolution == nil {
			return nil
		}
		entry.Note, entry.ActorID, entry.Timestamp = d.Resolution.Note, d.Resolution.ActorID, d.Resolution.Timestamp
		entry.Label = label(EventKind(d.Status), key, "")
	default:
		return nil
	}
	return []TimelineEntry{entry}
}

type forwardKey struct {
	dept  DepartmentKey
	at    int64
	actor string
}

// globalForwardKeys identifies the department events a whole-document forward
// writes alongside its global entry, so the timeline shows that forward once.
func globalForwardKeys(forwards []ForwardEvent) map[forwardKey]bool {
	keys := make(map[forwardKey]bool, len(forwards))
	for _, f := range forwards {
		keys[forwardKey{f.Department, f.Timestamp.UnixNano(), f.ActorID}] = true
	}
	return keys
}

func forwardedDepartments(forwards []ForwardEvent) []DepartmentKey {
	out := []DepartmentKey{}
	seen := make(map[DepartmentKey]bool)
	for _, f := range forwards {
		if seen[f.Department] {
			continue
		}
		seen[f.Department] = true
		out = append(out, f.Department)
	}
	return out
}

func label(kind EventKind, dept DepartmentKey, level Level) string {
	var s string
	switch kind {
	case KindForwarded:
		s = "Forwarded"
		if dept != "" {
			s = "Forwarded to " + departmentLabel(dept)
		}
		return s
	case KindEscalated:
		s = "Escalated"
		if level != "" {
			s = fmt.Sprintf("Escalated to %s", level)
		}
	case KindInProgress:
		s = "Marked in progress"
	case KindResolved:
		s = "Resolved"
	case KindResolvedByAdmin:
		s = "Resolved by admin"
	case KindReopened:
		s = "Reopened"
	default:
		s = string(kind)
	}
	if dept != "" {
		s += " (" + departmentLabel(dept) + ")"
	}
	return s
}

func departmentLabel(k DepartmentKey) string {
	words := strings.Split(string(k), "_")
	for i, w := range words {
		if len(w) <= 2 {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func resolutionKind(byAdmin bool) EventKind {
	if byAdmin {
		return KindResolvedByAdmin
	}
	return KindResolved
}
