package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/cache"
	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/metrics"
	"github.com/vhvplatform/go-notification-engine/internal/render"
	"github.com/vhvplatform/go-notification-engine/internal/rules"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

// TriggerStore loads trigger definitions
type TriggerStore interface {
	FindActiveByEventType(ctx context.Context, eventType domain.EventType) ([]*domain.Trigger, error)
}

// TemplateStore loads templates by id
type TemplateStore interface {
	FindByID(ctx context.Context, id string) (*domain.Template, error)
}

// NotificationWriter persists in-app notification rows
type NotificationWriter interface {
	CreateMany(ctx context.Context, notifications []*domain.Notification) error
}

// RecipientResolver turns recipient sources into recipients
type RecipientResolver interface {
	Resolve(ctx context.Context, sources []rules.Source, payload map[string]any) ([]domain.Recipient, error)
}

// EmailSender sends a fired trigger's email to its recipients
type EmailSender interface {
	SendEmails(ctx context.Context, recipients []domain.Recipient, trigger *domain.Trigger, tmpl *domain.Template, payload map[string]any) DispatchResult
}

// EngineConfig tunes the trigger engine
type EngineConfig struct {
	TriggerCacheTTL time.Duration
	NotificationTTL time.Duration
	// StoreTimeout bounds each storage call on its own; zero means unbounded
	StoreTimeout time.Duration
}

// TriggerEngine evaluates triggers for domain events and fans out notifications
type TriggerEngine struct {
	triggers      TriggerStore
	templates     TemplateStore
	notifications NotificationWriter
	resolver      RecipientResolver
	email         EmailSender
	renderer      *render.Renderer
	compiled      *cache.TTLCache[[]*rules.CompiledTrigger]
	cfg           EngineConfig
	log           *logger.Logger
	now           func() time.Time
}

// NewTriggerEngine creates a trigger engine. email may be nil.
func NewTriggerEngine(
	triggers TriggerStore,
	templates TemplateStore,
	notifications NotificationWriter,
	resolver RecipientResolver,
	email EmailSender,
	renderer *render.Renderer,
	cfg EngineConfig,
	log *logger.Logger,
) *TriggerEngine {
	return &TriggerEngine{
		triggers:      triggers,
		templates:     templates,
		notifications: notifications,
		resolver:      resolver,
		email:         email,
		renderer:      renderer,
		compiled:      cache.New[[]*rules.CompiledTrigger](cfg.TriggerCacheTTL),
		cfg:           cfg,
		log:           log,
		now:           time.Now,
	}
}

// ProcessEvent runs every active trigger for the event type against the payload.
// Each trigger is isolated: a failure in one is logged and the rest still run.
// Only a failure to load triggers is returned.
func (e *TriggerEngine) ProcessEvent(ctx context.Context, eventType domain.EventType, payload map[string]any) error {
	start := time.Now()
	defer func() {
		metrics.EventDuration.WithLabelValues(string(eventType)).Observe(time.Since(start).Seconds())
	}()

	if payload == nil {
		payload = map[string]any{}
	}

	compiled, err := e.loadTriggers(ctx, eventType)
	if err != nil {
		metrics.EventsProcessed.WithLabelValues(string(eventType), "error").Inc()
		return fmt.Errorf("load triggers for %s: %w", eventType, err)
	}
	if len(compiled) == 0 {
		e.log.Debug("No triggers for event", "event_type", eventType)
		metrics.EventsProcessed.WithLabelValues(string(eventType), "ok").Inc()
		return nil
	}

	for _, ct := range compiled {
		e.runTrigger(ctx, eventType, ct, payload)
	}

	metrics.EventsProcessed.WithLabelValues(string(eventType), "ok").Inc()
	return nil
}

// InvalidateTriggers drops cached compiled triggers
func (e *TriggerEngine) InvalidateTriggers() {
	e.compiled.Purge()
}

func (e *TriggerEngine) loadTriggers(ctx context.Context, eventType domain.EventType) ([]*rules.CompiledTrigger, error) {
	key := "event:" + string(eventType)
	if e.cfg.TriggerCacheTTL > 0 {
		if cached, ok := e.compiled.Get(key); ok {
			return cached, nil
		}
	}

	loadCtx, cancel := e.storeContext(ctx)
	defer cancel()
	triggers, err := e.triggers.FindActiveByEventType(loadCtx, eventType)
	if err != nil {
		return nil, err
	}

	compiled := make([]*rules.CompiledTrigger, 0, len(triggers))
	for _, t := range triggers {
		ct := rules.Compile(t)
		if ct.Err() != nil {
			e.log.Warn("Trigger has invalid rules and will never fire",
				"trigger_id", t.ID.Hex(), "trigger", t.Name, "error", ct.Err())
		}
		compiled = append(compiled, ct)
	}

	if e.cfg.TriggerCacheTTL > 0 {
		_ = e.compiled.Set(key, compiled)
	}
	return compiled, nil
}

func (e *TriggerEngine) runTrigger(ctx context.Context, eventType domain.EventType, ct *rules.CompiledTrigger, payload map[string]any) {
	trigger := ct.Trigger
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Trigger processing panicked",
				"trigger", trigger.Name, "event_type", eventType, "panic", fmt.Sprint(r))
			metrics.TriggersEvaluated.WithLabelValues(string(eventType), "failed").Inc()
		}
	}()

	if ct.Err() != nil {
		metrics.TriggersEvaluated.WithLabelValues(string(eventType), "invalid").Inc()
		return
	}
	if !ct.Matches(payload) {
		metrics.TriggersEvaluated.WithLabelValues(string(eventType), "skipped").Inc()
		return
	}
	metrics.TriggersEvaluated.WithLabelValues(string(eventType), "matched").Inc()

	resolveCtx, cancelResolve := e.storeContext(ctx)
	recipients, err := e.resolver.Resolve(resolveCtx, ct.Sources(), payload)
	cancelResolve()
	if err != nil {
		e.log.Error("Failed to resolve recipients", "error", err, "trigger", trigger.Name, "event_type", eventType)
		metrics.TriggersEvaluated.WithLabelValues(string(eventType), "failed").Inc()
		return
	}
	if len(recipients) == 0 {
		e.log.Debug("Trigger matched but resolved no recipients", "trigger", trigger.Name)
		return
	}

	tmpl := e.loadTemplate(ctx, trigger)

	// phase 1: in-app rows
	rows := e.buildNotifications(eventType, trigger, tmpl, recipients, payload)
	insertCtx, cancelInsert := e.storeContext(ctx)
	err = e.notifications.CreateMany(insertCtx, rows)
	cancelInsert()
	if err != nil {
		e.log.Error("Failed to create notifications", "error", err,
			"trigger", trigger.Name, "recipients", len(rows))
	} else {
		metrics.NotificationsCreated.WithLabelValues(string(eventType)).Add(float64(len(rows)))
	}

	// phase 2: email, after the rows are written
	if e.email != nil {
		e.email.SendEmails(ctx, recipients, trigger, tmpl, payload)
	}
}

// storeContext derives a per-call deadline so a slow store only costs the
// call that hit it, never the triggers after it
func (e *TriggerEngine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

func (e *TriggerEngine) loadTemplate(ctx context.Context, trigger *domain.Trigger) *domain.Template {
	if trigger.TemplateID == "" {
		return nil
	}
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	tmpl, err := e.templates.FindByID(ctx, trigger.TemplateID)
	if err != nil {
		level := e.log.Error
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidID) {
			level = e.log.Warn
		}
		level("Template unavailable, falling back to trigger name",
			"error", err, "template_id", trigger.TemplateID, "trigger", trigger.Name)
		return nil
	}
	return tmpl
}

func (e *TriggerEngine) buildNotifications(eventType domain.EventType, trigger *domain.Trigger, tmpl *domain.Template, recipients []domain.Recipient, payload map[string]any) []*domain.Notification {
	now := e.now().UTC()
	entityID := relatedEntityID(trigger.EntityType, payload)
	groupingKey := domain.GroupingKey(eventType, entityID)

	var expiresAt *time.Time
	if e.cfg.NotificationTTL > 0 {
		t := now.Add(e.cfg.NotificationTTL)
		expiresAt = &t
	}

	snapshot := clonePayload(payload)
	rows := make([]*domain.Notification, 0, len(recipients))
	for _, r := range recipients {
		data := renderData(payload, r)

		title, message := trigger.Name, trigger.Name
		var actionURL, actionLabel string
		if tmpl != nil {
			title = e.renderer.Render(tmpl.Subject, data)
			message = e.renderer.Render(tmpl.Body, data)
			actionURL = e.renderer.Render(tmpl.ActionURL, data)
			actionLabel = tmpl.ActionLabel
		}

		rows = append(rows, &domain.Notification{
			UserID:            r.ID(),
			Type:              eventType,
			Title:             title,
			Message:           message,
			Data:              snapshot,
			Priority:          trigger.Priority.Normalize(),
			ActionURL:         actionURL,
			ActionLabel:       actionLabel,
			GroupingKey:       groupingKey,
			ExpiresAt:         expiresAt,
			RelatedEntityType: trigger.EntityType,
			RelatedEntityID:   entityID,
			TriggerID:         trigger.ID.Hex(),
			CreatedAt:         now,
		})
	}
	return rows
}

// relatedEntityID picks the entity id from the payload: id, entityId, then <entityType>Id
func relatedEntityID(entityType string, payload map[string]any) string {
	candidates := []string{"id", "entityId"}
	if entityType != "" {
		candidates = append(candidates, entityType+"Id")
	}
	for _, field := range candidates {
		if v, ok := rules.LookupString(payload, field); ok {
			return v
		}
	}
	return ""
}
