package complaint

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen            Status = "open"
	StatusInProgress      Status = "in_progress"
	StatusForwarded       Status = "forwarded"
	StatusEscalated       Status = "escalated"
	StatusPartial         Status = "partial"
	StatusResolved        Status = "resolved"
	StatusResolvedByAdmin Status = "resolved_by_admin"
)

var validStatuses = map[Status]bool{
	StatusOpen:            true,
	StatusInProgress:      true,
	StatusForwarded:       true,
	StatusEscalated:       true,
	StatusPartial:         true,
	StatusResolved:        true,
	StatusResolvedByAdmin: true,
}

// IsResolved reports whether s is one of the terminal resolution states.
func (s Status) IsResolved() bool {
	return s == StatusResolved || s == StatusResolvedByAdmin
}

type ResolvedType string

const (
	ResolvedByStaff ResolvedType = "staff"
	ResolvedByAdmin ResolvedType = "admin"
)

type EventKind string

const (
	KindForwarded       EventKind = "forwarded"
	KindEscalated       EventKind = "escalated"
	KindInProgress      EventKind = "in_progress"
	KindResolved        EventKind = "resolved"
	KindResolvedByAdmin EventKind = "resolved_by_admin"
	KindReopened        EventKind = "reopened"
)

type ForwardEvent struct {
	Department DepartmentKey `json:"department" bson:"department"`
	Note       string        `json:"note,omitempty" bson:"note,omitempty"`
	ActorID    string        `json:"actorId" bson:"actorId"`
	Timestamp  time.Time     `json:"timestamp" bson:"timestamp"`
}

type EscalationEvent struct {
	Level     Level     `json:"level" bson:"level"`
	Recipient string    `json:"recipient,omitempty" bson:"recipient,omitempty"`
	Note      string    `json:"note" bson:"note"`
	ActorID   string    `json:"actorId" bson:"actorId"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

type ProgressEvent struct {
	Note      string    `json:"note" bson:"note"`
	ActorID   string    `json:"actorId" bson:"actorId"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

type ResolutionEvent struct {
	Note            string    `json:"note" bson:"note"`
	Proof           []string  `json:"proof,omitempty" bson:"proof,omitempty"`
	ResolvedByAdmin bool      `json:"resolvedByAdmin" bson:"resolvedByAdmin"`
	ActorID         string    `json:"actorId" bson:"actorId"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
}

// DepartmentEvent is one entry of a department's append-only action log.
type DepartmentEvent struct {
	Kind      EventKind `json:"kind" bson:"kind"`
	Note      string    `json:"note,omitempty" bson:"note,omitempty"`
	ActorID   string    `json:"actorId" bson:"actorId"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Level     Level     `json:"level,omitempty" bson:"level,omitempty"`
	Proof     []string  `json:"proof,omitempty" bson:"proof,omitempty"`
}

// DepartmentConcern is the slice of a complaint raised against one department.
// The Progress, Forward, Escalation and Resolution fields hold only the latest
// event of their kind; Events holds all of them.
type DepartmentConcern struct {
	Topic       string            `json:"topic,omitempty" bson:"topic,omitempty"`
	Mode        string            `json:"mode,omitempty" bson:"mode,omitempty"`
	Text        string            `json:"text,omitempty" bson:"text,omitempty"`
	Attachments []string          `json:"attachments,omitempty" bson:"attachments,omitempty"`
	Status      Status            `json:"status" bson:"status"`
	Progress    *ProgressEvent    `json:"progress,omitempty" bson:"progress,omitempty"`
	Forward     *ForwardEvent     `json:"forward,omitempty" bson:"forward,omitempty"`
	Escalation  *EscalationEvent  `json:"escalation,omitempty" bson:"escalation,omitempty"`
	Resolution  *ResolutionEvent  `json:"resolution,omitempty" bson:"resolution,omitempty"`
	Events      []DepartmentEvent `json:"events,omitempty" bson:"events,omitempty"`
}

// Active reports whether the department carries text or at least one attachment.
func (d *DepartmentConcern) Active() bool {
	if d == nil {
		return false
	}
	return strings.TrimSpace(d.Text) != "" || len(d.Attachments) > 0
}

func (d *DepartmentConcern) appendEvent(ev DepartmentEvent) {
	d.Events = append(d.Events, ev)
}

type Complaint struct {
	ID                uuid.UUID                            `json:"id" bson:"-"`
	SubjectName       string                               `json:"subjectName" bson:"subjectName"`
	SubjectID         string                               `json:"subjectId,omitempty" bson:"subjectId,omitempty"`
	ContactInfo       string                               `json:"contactInfo,omitempty" bson:"contactInfo,omitempty"`
	Type              ComplaintType                        `json:"complaintType" bson:"complaintType"`
	Departments       map[DepartmentKey]*DepartmentConcern `json:"departments" bson:"departments"`
	Status            Status                               `json:"status" bson:"status"`
	GlobalForwards    []ForwardEvent                       `json:"globalForwards,omitempty" bson:"globalForwards,omitempty"`
	GlobalEscalations []EscalationEvent                    `json:"globalEscalations,omitempty" bson:"globalEscalations,omitempty"`
	GlobalProgress    *ProgressEvent                       `json:"globalProgress,omitempty" bson:"globalProgress,omitempty"`
	GlobalResolution  *ResolutionEvent                     `json:"globalResolution,omitempty" bson:"globalResolution,omitempty"`
	CreatedBy         string                               `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	Version           int64                                `json:"version" bson:"-"`
	CreatedAt         time.Time                            `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time                            `json:"updatedAt" bson:"updatedAt"`
}

// ActiveDepartments returns the keys of active departments in sorted order.
func (c *Complaint) ActiveDepartments() []DepartmentKey {
	var keys []DepartmentKey
	for _, k := range sortedKeys(c.Departments) {
		if c.Departments[k].Active() {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (c *Complaint) Clone() *Complaint {
	if c == nil {
		return nil
	}
	out := *c
	out.Departments = make(map[DepartmentKey]*DepartmentConcern, len(c.Departments))
	for k, d := range c.Departments {
		out.Departments[k] = d.clone()
	}
	out.GlobalForwards = append([]ForwardEvent(nil), c.GlobalForwards...)
	out.GlobalEscalations = append([]EscalationEvent(nil), c.GlobalEscalations...)
	if c.GlobalProgress != nil {
		p := *c.GlobalProgress
		out.GlobalProgress = &p
	}
	out.GlobalResolution = c.GlobalResolution.clone()
	return &out
}

func (d *DepartmentConcern) clone() *DepartmentConcern {
	if d == nil {
		return nil
	}
	out := *d
	out.Attachments = append([]string(nil), d.Attachments...)
	if d.Progress != nil {
		p := *d.Progress
		out.Progress = &p
	}
	if d.Forward != nil {
		f := *d.Forward
		out.Forward = &f
	}
	if d.Escalation != nil {
		e := *d.Escalation
		out.Escalation = &e
	}
	out.Resolution = d.Resolution.clone()
	out.Events = make([]DepartmentEvent, len(d.Events))
	for i, ev := range d.Events {
		ev.Proof = append([]string(nil), ev.Proof...)
		out.Events[i] = ev
	}
	return &out
}

func (r *ResolutionEvent) clone() *ResolutionEvent {
	if r == nil {
		return nil
	}
	out := *r
	out.Proof = append([]string(nil), r.Proof...)
	return &out
}
