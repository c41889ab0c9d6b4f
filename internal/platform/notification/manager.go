package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

const (
	TemplateComplaintForwarded = "complaint-forwarded"
	TemplateComplaintEscalated = "complaint-escalated"
)

// Template is a push title and body with {{key}} placeholders.
type Template struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine returns an engine with the workflow templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:    TemplateComplaintForwarded,
		Title: "New complaint for {{department}}",
		Body:  "{{subject}}: {{topic}}",
	})
	e.RegisterTemplate(Template{
		ID:    TemplateComplaintEscalated,
		Title: "Complaint escalated to {{level}}",
		Body:  "{{subject}}: {{note}}",
	})
	return e
}

func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render fills placeholders from data. Unknown placeholders are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	title, body = t.Title, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return title, body, nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

const (
	StatusSent    = "sent"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const defaultLogSize = 1000

// Delivery is the log entry for one push attempt.
type Delivery struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	TemplateID   string            `json:"template_id,omitempty"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data,omitempty"`
	TokenCount   int               `json:"token_count"`
	SuccessCount int               `json:"success_count"`
	FailureCount int               `json:"failure_count"`
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Manager sends through a Gateway and remembers the most recent deliveries.
type Manager struct {
	gateway   Gateway
	templates *TemplateEngine
	logger    zerolog.Logger

	mu         sync.RWMutex
	deliveries []*Delivery
	byID       map[string]*Delivery
	maxLog     int
}

func NewManager(gw Gateway, tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Manager{
		gateway:   gw,
		templates: tpl,
		logger:    logger.With().Str("component", "notification").Logger(),
		byID:      make(map[string]*Delivery),
		maxLog:    defaultLogSize,
	}
}

// Send pushes to tokens and logs the outcome under recipient. An empty token
// list is logged as skipped without calling the gateway.
func (m *Manager) Send(ctx context.Context, recipient string, tokens []string, title, body string, data map[string]string) (*Delivery, error) {
	return m.send(ctx, "", recipient, tokens, title, body, data)
}

// SendFromTemplate renders templateID with data and sends the result.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string, tokens []string) (*Delivery, error) {
	title, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return m.send(ctx, templateID, recipient, tokens, title, body, data)
}

func (m *Manager) send(ctx context.Context, templateID, recipient string, tokens []string, title, body string, data map[string]string) (*Delivery, error) {
	d := &Delivery{
		ID:         uuid.New().String(),
		Recipient:  recipient,
		TemplateID: templateID,
		Title:      title,
		Body:       body,
		Data:       data,
		TokenCount: len(tokens),
		CreatedAt:  time.Now().UTC(),
	}

	var sendErr error
	if len(tokens) == 0 {
		d.Status = StatusSkipped
	} else {
		var res SendResult
		res, sendErr = m.gateway.Send(ctx, tokens, title, body, data)
		d.SuccessCount, d.FailureCount = res.SuccessCount, res.FailureCount
		switch {
		case sendErr != nil:
			d.Status = StatusFailed
			d.Error = sendErr.Error()
		case res.FailureCount > 0 && res.SuccessCount > 0:
			d.Status = StatusPartial
		case res.SuccessCount == 0:
			d.Status = StatusFailed
		default:
			d.Status = StatusSent
		}
	}

	m.record(d)
	m.logger.Info().
		Str("delivery_id", d.ID).
		Str("recipient", recipient).
		Str("status", d.Status).
		Int("success_count", d.SuccessCount).
		Int("failure_count", d.FailureCount).
		Msg("push delivery")
	return d, sendErr
}

func (m *Manager) record(d *Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliveries = append(m.deliveries, d)
	m.byID[d.ID] = d
	if over := len(m.deliveries) - m.maxLog; over > 0 {
		for _, old := range m.deliveries[:over] {
			delete(m.byID, old.ID)
		}
		m.deliveries = append([]*Delivery(nil), m.deliveries[over:]...)
	}
}

func (m *Manager) Get(id string) (*Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("delivery %q not found", id)
	}
	return d, nil
}

// Recent returns up to limit deliveries, newest first, optionally only those
// for recipient.
func (m *Manager) Recent(recipient string, limit int) []*Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Delivery{}
	for i := len(m.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.deliveries[i]
		if recipient != "" && d.Recipient != recipient {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Stats counts logged deliveries by status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, d := range m.deliveries {
		stats[d.Status]++
	}
	return stats
}
