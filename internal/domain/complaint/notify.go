package complaint

import (
	"context"

	"github.com/carewise/opsdesk/internal/platform/notification"
)

// Push notifications are best effort. They run after the action has been
// persisted, on their own timeout, and their failures are only logged.

func (e *Engine) dispatch(fn func(ctx context.Context)) {
	if e.notifier == nil || e.directory == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (e *Engine) notifyForward(c *Complaint, dept DepartmentKey, topic string) {
	id, subject := c.ID.String(), c.SubjectName
	e.dispatch(func(ctx context.Context) {
		log := e.logger.With().Str("complaint_id", id).Str("department", string(dept)).Logger()

		tokens, err := e.directory.TokensForDepartmentMembers(ctx, string(dept))
		if err != nil {
			log.Error().Err(err).Msg("failed to look up department tokens")
			return
		}
		data := map[string]string{
			"complaintId": id,
			"department":  departmentLabel(dept),
			"subject":     subject,
			"topic":       topic,
		}
		d, err := e.notifier.SendFromTemplate(ctx, notification.TemplateComplaintForwarded, data, "department:"+string(dept), tokens)
		if err != nil {
			log.Warn().Err(err).Msg("forward notification failed")
			return
		}
		log.Info().
			Int("success_count", d.SuccessCount).
			Int("failure_count", d.FailureCount).
			Msg("forward notification sent")
	})
}

func (e *Engine) notifyEscalation(c *Complaint, level Level, note string) {
	id, subject := c.ID.String(), c.SubjectName
	recipient, ok := e.router.Resolve(level)
	if !ok {
		e.logger.Info().
			Str("complaint_id", id).
			Str("level", string(level)).
			Msg("escalation level has no recipient, not notifying")
		return
	}

	e.dispatch(func(ctx context.Context) {
		log := e.logger.With().
			Str("complaint_id", id).
			Str("level", string(level)).
			Str("recipient", recipient).
			Logger()

		tokens, err := e.directory.TokensForIdentity(ctx, recipient)
		if err != nil {
			log.Error().Err(err).Msg("failed to look up recipient tokens")
			return
		}
		data := map[string]string{
			"complaintId": id,
			"level":       string(level),
			"subject":     subject,
			"note":        note,
		}
		d, err := e.notifier.SendFromTemplate(ctx, notification.TemplateComplaintEscalated, data, recipient, tokens)
		if err != nil {
			log.Warn().Err(err).Msg("escalation notification failed")
			return
		}
		log.Info().
			Int("success_count", d.SuccessCount).
			Int("failure_count", d.FailureCount).
			Msg("escalation notification sent")
	})
}
