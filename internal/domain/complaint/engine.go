package complaint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carewise/opsdesk/internal/platform/identity"
	"github.com/carewise/opsdesk/internal/platform/notification"
	"github.com/carewise/opsdesk/internal/platform/websocket"
)

// Scope says whether an action targets the whole complaint or one department.
type Scope int

const (
	ScopeDocument Scope = iota
	ScopeDepartment
)

func (s Scope) String() string {
	if s == ScopeDepartment {
		return "department"
	}
	return "document"
}

// ActionRequest carries the fields shared by every workflow action.
// ExpectedVersion, when set, must match the stored version.
type ActionRequest struct {
	Department      DepartmentKey `json:"department,omitempty"`
	Note            string        `json:"note"`
	ActorID         string        `json:"-"`
	ExpectedVersion *int64        `json:"version,omitempty"`
}

type ForwardRequest struct {
	ActionRequest
	Topic       string   `json:"topic,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Text        string   `json:"text,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type EscalateRequest struct {
	ActionRequest
	Level Level `json:"level"`
}

type ResolveRequest struct {
	ActionRequest
	Proof        []string     `json:"proof,omitempty"`
	ResolvedType ResolvedType `json:"resolvedType,omitempty"`
}

// DepartmentInput is the content of one department raised at intake.
type DepartmentInput struct {
	Topic       string   `json:"topic,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Text        string   `json:"text,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

type CreateRequest struct {
	SubjectName string                            `json:"subjectName"`
	SubjectID   string                            `json:"subjectId,omitempty"`
	ContactInfo string                            `json:"contactInfo,omitempty"`
	Type        ComplaintType                     `json:"complaintType"`
	Departments map[DepartmentKey]DepartmentInput `json:"departments,omitempty"`
	ActorID     string                            `json:"-"`
}

// Notifier sends a templated push to a set of device tokens.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string, tokens []string) (*notification.Delivery, error)
}

const defaultNotifyTimeout = 10 * time.Second

// Engine applies workflow actions to complaints. Every action recomputes the
// aggregate status with Derive and persists with a version check.
type Engine struct {
	repo   ComplaintRepository
	router *EscalationRouter
	logger zerolog.Logger

	notifier      Notifier
	directory     identity.TokenDirectory
	publisher     websocket.Publisher
	notifyTimeout time.Duration

	now func() time.Time
	wg  sync.WaitGroup
}

func NewEngine(repo ComplaintRepository, router *EscalationRouter, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:          repo,
		router:        router,
		logger:        logger.With().Str("component", "workflow").Logger(),
		notifyTimeout: defaultNotifyTimeout,
		now:           time.Now,
	}
}

// SetNotifier enables push notifications for forwards and escalations.
func (e *Engine) SetNotifier(n Notifier, dir identity.TokenDirectory) {
	e.notifier = n
	e.directory = dir
}

// SetPublisher enables live events for every successful action.
func (e *Engine) SetPublisher(p websocket.Publisher) {
	e.publisher = p
}

func (e *Engine) SetNotifyTimeout(d time.Duration) {
	if d > 0 {
		e.notifyTimeout = d
	}
}

// Drain blocks until all in-flight notifications have finished.
func (e *Engine) Drain() {
	e.wg.Wait()
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// ---------------------------------------------------------------------------
// Intake and reads
// ---------------------------------------------------------------------------

func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Complaint, error) {
	if strings.TrimSpace(req.SubjectName) == "" {
		return nil, fmt.Errorf("%w: subjectName is required", ErrInvalidArgument)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: invalid complaintType %q", ErrInvalidArgument, req.Type)
	}
	if req.ActorID == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidArgument)
	}

	now := e.timestamp()
	c := &Complaint{
		ID:          uuid.New(),
		SubjectName: strings.TrimSpace(req.SubjectName),
		SubjectID:   req.SubjectID,
		ContactInfo: req.ContactInfo,
		Type:        req.Type,
		Departments: make(map[DepartmentKey]*DepartmentConcern),
		CreatedBy:   req.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for key, in := range req.Departments {
		if !req.Type.HasDepartment(key) {
			return nil, fmt.Errorf("%w: department %q is not valid for %s complaints", ErrInvalidArgument, key, req.Type)
		}
		d := &DepartmentConcern{
			Topic:       in.Topic,
			Mode:        in.Mode,
			Text:        in.Text,
			Attachments: in.Attachments,
			Status:      StatusOpen,
		}
		// Departments without content are not raised.
		if d.Active() {
			c.Departments[key] = d
		}
	}
	c.Status = Derive(c)

	if err := e.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("complaint_id", c.ID.String()).
		Str("type", string(c.Type)).
		Int("departments", len(c.Departments)).
		Msg("complaint registered")
	e.publish(ctx, c, "created", "", req.ActorID)
	return c, nil
}

func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*Complaint, error) {
	return e.repo.GetByID(ctx, id)
}

func (e *Engine) History(ctx context.Context, id uuid.UUID) (History, error) {
	c, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return History{}, err
	}
	return Reconstruct(c), nil
}

func (e *Engine) List(ctx context.Context, f Filter, limit, offset int) ([]*Complaint, int, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, fmt.Errorf("%w: invalid complaintType %q", ErrInvalidArgument, f.Type)
	}
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, fmt.Errorf("%w: invalid status %q", ErrInvalidArgument, f.Status)
	}
	return e.repo.Find(ctx, f, limit, offset)
}

// ---------------------------------------------------------------------------
// Workflow actions
// ---------------------------------------------------------------------------

// Forward routes a department's concern to that department, optionally
// replacing its content. At document scope the forward is also recorded in
// the global forward log.
func (e *Engine) Forward(ctx context.Context, id uuid.UUID, scope Scope, req ForwardRequest) (*Complaint, error) {
	if err := requireActor(req.ActionRequest); err != nil {
		return nil, err
	}
	if req.Department == "" {
		return nil, fmt.Errorf("%w: department is required", ErrInvalidArgument)
	}

	c, err := e.load(ctx, id, req.ActionRequest)
	if err != nil {
		return nil, err
	}
	if !c.Type.HasDepartment(req.Department) {
		return nil, fmt.Errorf("%w: department %q is not valid for %s complaints", ErrInvalidArgument, req.Department, c.Type)
	}

	d := c.Departments[req.Department]
	if d == nil {
		d = &DepartmentConcern{Status: StatusOpen}
	}
	if d.Status.IsResolved() {
		return nil, fmt.Errorf("%w: department %s is resolved, reopen it first", ErrInvalidArgument, req.Department)
	}
	if req.Topic != "" {
		d.Topic = req.Topic
	}
	if req.Mode != "" {
		d.Mode = req.Mode
	}
	if req.Text != "" {
		d.Text = req.Text
	}
	if len(req.Attachments) > 0 {
		d.Attachments = append([]string(nil), req.Attachments...)
	}
	if !d.Active() {
		return nil, fmt.Errorf("%w: department %s has no text or attachments", ErrInvalidArgument, req.Department)
	}

	now := e.timestamp()
	fwd := ForwardEvent{Department: req.Department, Note: req.Note, ActorID: req.ActorID, Timestamp: now}
	d.Status = StatusForwarded
	d.Forward = &fwd
	d.appendEvent(DepartmentEvent{Kind: KindForwarded, Note: req.Note, ActorID: req.ActorID, Timestamp: now})
	c.Departments[req.Department] = d
	if scope == ScopeDocument {
		c.GlobalForwards = append(c.GlobalForwards, fwd)
	}

	if err := e.persist(ctx, c, scope, req.Department, now); err != nil {
		return nil, err
	}
	e.logAction(c, KindForwarded, scope, req.Department, req.ActorID)
	e.publish(ctx, c, string(KindForwarded), req.Department, req.ActorID)
	e.notifyForward(c, req.Department, d.Topic)
	return c, nil
}

// Escalate raises the complaint, or one department of it, to level and
// notifies whoever the router maps that level to.
func (e *Engine) Escalate(ctx context.Context, id uuid.UUID, scope Scope, req EscalateRequest) (*Complaint, error) {
	if err := requireNote(req.ActionRequest); err != nil {
		return nil, err
	}
	if !req.Level.Valid() {
		return nil, fmt.Errorf("%w: invalid escalation level %q", ErrInvalidArgument, req.Level)
	}

	if scope == ScopeDocument {
		req.Department = ""
	}
	c, err := e.load(ctx, id, req.ActionRequest)
	if err != nil {
		return nil, err
	}
	recipient, _ := e.router.Resolve(req.Level)
	now := e.timestamp()
	ev := EscalationEvent{Level: req.Level, Recipient: recipient, Note: req.Note, ActorID: req.ActorID, Timestamp: now}

	if scope == ScopeDepartment {
		d, err := e.openDepartment(c, req.Department)
		if err != nil {
			return nil, err
		}
		d.Status = StatusEscalated
		d.Escalation = &ev
		d.appendEvent(DepartmentEvent{Kind: KindEscalated, Note: req.Note, ActorID: req.ActorID, Timestamp: now, Level: req.Level})
	} else {
		c.GlobalEscalations = append(c.GlobalEscalations, ev)
	}

	if err := e.persist(ctx, c, scope, req.Department, now); err != nil {
		return nil, err
	}
	e.logAction(c, KindEscalated, scope, req.Department, req.ActorID)
	e.publish(ctx, c, string(KindEscalated), req.Department, req.ActorID)
	e.notifyEscalation(c, req.Level, req.Note)
	return c, nil
}

// Progress marks the complaint, or one department of it, as being worked on.
func (e *Engine) Progress(ctx context.Context, id uuid.UUID, scope Scope, req ActionRequest) (*Complaint, error) {
	if err := requireNote(req); err != nil {
		return nil, err
	}

	if scope == ScopeDocument {
		req.Department = ""
	}
	c, err := e.load(ctx, id, req)
	if err != nil {
		return nil, err
	}
	now := e.timestamp()
	ev := ProgressEvent{Note: req.Note, ActorID: req.ActorID, Timestamp: now}

	if scope == ScopeDepartment {
		d, err := e.openDepartment(c, req.Department)
		if err != nil {
			return nil, err
		}
		d.Status = StatusInProgress
		d.Progress = &ev
		d.appendEvent(DepartmentEvent{Kind: KindInProgress, Note: req.Note, ActorID: req.ActorID, Timestamp: now})
	} else {
		c.GlobalProgress = &ev
	}

	if err := e.persist(ctx, c, scope, req.Department, now); err != nil {
		return nil, err
	}
	e.logAction(c, KindInProgress, scope, req.Department, req.ActorID)
	e.publish(ctx, c, string(KindInProgress), req.Department, req.ActorID)
	return c, nil
}

// Resolve closes one department, or at document scope the whole complaint
// regardless of department state. A resolved department may be resolved
// again; the new resolution replaces the sub-record and both stay in the
// department log.
func (e *Engine) Resolve(ctx context.Context, id uuid.UUID, scope Scope, req ResolveRequest) (*Complaint, error) {
	if err := requireNote(req.ActionRequest); err != nil {
		return nil, err
	}
	if req.ResolvedType == "" {
		req.ResolvedType = ResolvedByStaff
	}
	if req.ResolvedType != ResolvedByStaff && req.ResolvedType != ResolvedByAdmin {
		return nil, fmt.Errorf("%w: invalid resolvedType %q", ErrInvalidArgument, req.ResolvedType)
	}

	if scope == ScopeDocument {
		req.Department = ""
	}
	c, err := e.load(ctx, id, req.ActionRequest)
	if err != nil {
		return nil, err
	}
	byAdmin := req.ResolvedType == ResolvedByAdmin
	kind := resolutionKind(byAdmin)
	now := e.timestamp()
	ev := ResolutionEvent{
		Note:            req.Note,
		Proof:           append([]string(nil), req.Proof...),
		ResolvedByAdmin: byAdmin,
		ActorID:         req.ActorID,
		Timestamp:       now,
	}

	if scope == ScopeDepartment {
		d, err := e.department(c, req.Department)
		if err != nil {
			return nil, err
		}
		d.Status = Status(kind)
		d.Resolution = &ev
		d.appendEvent(DepartmentEvent{Kind: kind, Note: req.Note, ActorID: req.ActorID, Timestamp: now, Proof: ev.Proof})
	} else {
		c.GlobalResolution = &ev
	}

	if err := e.persist(ctx, c, scope, req.Department, now); err != nil {
		return nil, err
	}
	e.logAction(c, kind, scope, req.Department, req.ActorID)
	e.publish(ctx, c, string(kind), req.Department, req.ActorID)
	return c, nil
}

// Reopen moves a resolved department back to open. Only departments can be
// reopened; a whole-document resolution is final.
func (e *Engine) Reopen(ctx context.Context, id uuid.UUID, req ActionRequest) (*Complaint, error) {
	if err := requireNote(req); err != nil {
		return nil, err
	}

	c, err := e.load(ctx, id, req)
	if err != nil {
		return nil, err
	}
	d, err := e.department(c, req.Department)
	if err != nil {
		return nil, err
	}
	if !d.Status.IsResolved() {
		return nil, fmt.Errorf("%w: department %s is not resolved", ErrInvalidArgument, req.Department)
	}

	now := e.timestamp()
	d.Status = StatusOpen
	d.appendEvent(DepartmentEvent{Kind: KindReopened, Note: req.Note, ActorID: req.ActorID, Timestamp: now})

	if err := e.persist(ctx, c, ScopeDepartment, req.Department, now); err != nil {
		return nil, err
	}
	e.logAction(c, KindReopened, ScopeDepartment, req.Department, req.ActorID)
	e.publish(ctx, c, string(KindReopened), req.Department, req.ActorID)
	return c, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func requireActor(req ActionRequest) error {
	if req.ActorID == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidArgument)
	}
	return nil
}

func requireNote(req ActionRequest) error {
	if err := requireActor(req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Note) == "" {
		return fmt.Errorf("%w: note is required", ErrInvalidArgument)
	}
	return nil
}

// load fetches the complaint and rejects stale versions and closed complaints.
func (e *Engine) load(ctx context.Context, id uuid.UUID, req ActionRequest) (*Complaint, error) {
	c, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != c.Version {
		return nil, fmt.Errorf("%w: complaint %s is at version %d, not %d", ErrConflict, id, c.Version, *req.ExpectedVersion)
	}
	if c.GlobalResolution != nil {
		return nil, fmt.Errorf("%w: complaint %s is closed", ErrInvalidArgument, id)
	}
	if c.Departments == nil {
		c.Departments = make(map[DepartmentKey]*DepartmentConcern)
	}
	return c, nil
}

// department returns an active department of c.
func (e *Engine) department(c *Complaint, key DepartmentKey) (*DepartmentConcern, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: department is required", ErrInvalidArgument)
	}
	if !c.Type.HasDepartment(key) {
		return nil, fmt.Errorf("%w: department %q is not valid for %s complaints", ErrInvalidArgument, key, c.Type)
	}
	d := c.Departments[key]
	if !d.Active() {
		return nil, fmt.Errorf("%w: department %s is not raised on complaint %s", ErrNotFound, key, c.ID)
	}
	return d, nil
}

// openDepartment is department restricted to unresolved departments.
func (e *Engine) openDepartment(c *Complaint, key DepartmentKey) (*DepartmentConcern, error) {
	d, err := e.department(c, key)
	if err != nil {
		return nil, err
	}
	if d.Status.IsResolved() {
		return nil, fmt.Errorf("%w: department %s is resolved, reopen it first", ErrInvalidArgument, key)
	}
	return d, nil
}

func (e *Engine) persist(ctx context.Context, c *Complaint, scope Scope, dept DepartmentKey, now time.Time) error {
	c.Status = Derive(c)
	c.UpdatedAt = now
	if scope == ScopeDepartment {
		return e.repo.UpdateDepartment(ctx, c, dept)
	}
	return e.repo.Save(ctx, c)
}

func (e *Engine) logAction(c *Complaint, kind EventKind, scope Scope, dept DepartmentKey, actor string) {
	ev := e.logger.Info().
		Str("complaint_id", c.ID.String()).
		Str("action", string(kind)).
		Str("scope", scope.String()).
		Str("status", string(c.Status)).
		Int64("version", c.Version).
		Str("actor_id", actor)
	if dept != "" {
		ev = ev.Str("department", string(dept))
	}
	ev.Msg("workflow action applied")
}

func (e *Engine) publish(ctx context.Context, c *Complaint, kind string, dept DepartmentKey, actor string) {
	if e.publisher == nil {
		return
	}
	err := e.publisher.Publish(ctx, websocket.Event{
		Type:        "complaint." + kind,
		Topic:       websocket.ComplaintTopic(c.ID.String()),
		ComplaintID: c.ID.String(),
		Department:  string(dept),
		Status:      string(c.Status),
		ActorID:     actor,
		Version:     c.Version,
		Timestamp:   c.UpdatedAt,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("complaint_id", c.ID.String()).Msg("failed to publish live event")
	}
}
