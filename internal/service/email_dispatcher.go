package service

import (
	"bytes"
	"context"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/metrics"
	"github.com/vhvplatform/go-notification-engine/internal/render"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
	"golang.org/x/time/rate"
)

// PreferenceLookup resolves whether a user wants a channel for a trigger type
type PreferenceLookup interface {
	ChannelState(ctx context.Context, userID string, triggerType domain.EventType, channel domain.Channel) (domain.PreferenceState, error)
}

// FailureRecorder keeps emails whose transport call failed for later retry
type FailureRecorder interface {
	RecordFailure(ctx context.Context, msg EmailMessage, userID string, trigger *domain.Trigger, sendErr error)
}

// EmailDispatcherConfig holds sender identity and throttling settings
type EmailDispatcherConfig struct {
	FromEmail     string
	FromName      string
	SendTimeout   time.Duration
	RatePerSecond float64
	Burst         int
	// AppURL prefixes relative action links, which only resolve inside the app
	AppURL string
}

// DispatchResult summarizes one SendEmails call
type DispatchResult struct {
	Sent    int
	Failed  int
	Skipped int
}

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
<h2>{{.Title}}</h2>
<div>{{.Body}}</div>
{{if .ActionURL}}<p><a href="{{.ActionURL}}">{{.ActionLabel}}</a></p>{{end}}
</body>
</html>`))

type emailView struct {
	Title       string
	Body        template.HTML
	ActionURL   string
	ActionLabel string
}

// EmailDispatcher sends one email per eligible recipient of a fired trigger
type EmailDispatcher struct {
	transport EmailTransport
	prefs     PreferenceLookup
	renderer  *render.Renderer
	limiter   *rate.Limiter
	failures  FailureRecorder
	cfg       EmailDispatcherConfig
	log       *logger.Logger
}

// NewEmailDispatcher creates a dispatcher. A nil transport makes SendEmails a no-op.
func NewEmailDispatcher(transport EmailTransport, prefs PreferenceLookup, renderer *render.Renderer, cfg EmailDispatcherConfig, log *logger.Logger) *EmailDispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &EmailDispatcher{
		transport: transport,
		prefs:     prefs,
		renderer:  renderer,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		cfg:       cfg,
		log:       log,
	}
}

// SetFailureRecorder routes failed sends to r
func (d *EmailDispatcher) SetFailureRecorder(r FailureRecorder) {
	d.failures = r
}

// Configured reports whether a transport is present
func (d *EmailDispatcher) Configured() bool {
	return d.transport != nil
}

func (d *EmailDispatcher) sender() string {
	if d.cfg.FromName == "" {
		return d.cfg.FromEmail
	}
	return (&mail.Address{Name: d.cfg.FromName, Address: d.cfg.FromEmail}).String()
}

// SendEmails sends the trigger's email to every recipient that is eligible
// and has not disabled email for the trigger's event type. Failures are
// logged per recipient and never stop the loop.
func (d *EmailDispatcher) SendEmails(ctx context.Context, recipients []domain.Recipient, trigger *domain.Trigger, tmpl *domain.Template, payload map[string]any) DispatchResult {
	var res DispatchResult
	if !d.Configured() || trigger == nil {
		return res
	}

	for _, r := range recipients {
		if !r.Eligible(domain.ChannelEmail) {
			res.Skipped++
			metrics.EmailsDispatched.WithLabelValues("skipped_ineligible").Inc()
			continue
		}

		state, err := d.prefs.ChannelState(ctx, r.ID(), trigger.EventType, domain.ChannelEmail)
		if err != nil {
			d.log.Warn("Preference lookup failed, skipping email",
				"error", err, "user_id", r.ID(), "trigger", trigger.Name)
			res.Skipped++
			metrics.EmailsDispatched.WithLabelValues("skipped_lookup_error").Inc()
			continue
		}
		if !state.Enabled() {
			res.Skipped++
			metrics.EmailsDispatched.WithLabelValues("skipped_preference").Inc()
			continue
		}

		msg, err := d.compose(r, trigger, tmpl, payload)
		if err != nil {
			d.log.Error("Failed to compose email", "error", err, "user_id", r.ID(), "trigger", trigger.Name)
			res.Failed++
			metrics.EmailsDispatched.WithLabelValues("failed").Inc()
			continue
		}

		// throttling delays a send, it never cancels one
		if err := d.limiter.Wait(context.WithoutCancel(ctx)); err != nil {
			d.log.Warn("Email throttled out, queued for retry", "error", err, "user_id", r.ID(), "trigger", trigger.Name)
			res.Failed++
			metrics.EmailsDispatched.WithLabelValues("failed").Inc()
			if d.failures != nil {
				d.failures.RecordFailure(ctx, msg, r.ID(), trigger, err)
			}
			continue
		}

		if err := d.send(ctx, msg); err != nil {
			d.log.Error("Failed to send email", "error", err, "user_id", r.ID(), "trigger", trigger.Name)
			res.Failed++
			metrics.EmailsDispatched.WithLabelValues("failed").Inc()
			if d.failures != nil {
				d.failures.RecordFailure(ctx, msg, r.ID(), trigger, err)
			}
			continue
		}
		res.Sent++
		metrics.EmailsDispatched.WithLabelValues("sent").Inc()
	}

	d.log.Debug("Email dispatch finished", "trigger", trigger.Name,
		"sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	return res
}

func (d *EmailDispatcher) send(ctx context.Context, msg EmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.transport.Send(ctx, msg)
}

func (d *EmailDispatcher) compose(r domain.Recipient, trigger *domain.Trigger, tmpl *domain.Template, payload map[string]any) (EmailMessage, error) {
	data := renderData(payload, r)

	subject, text, htmlBody := trigger.Name, trigger.Name, template.HTMLEscapeString(trigger.Name)
	var actionURL, actionLabel string
	if tmpl != nil {
		subject = d.renderer.Render(tmpl.Subject, data)
		text = d.renderer.Render(tmpl.Body, data)
		htmlBody = strings.ReplaceAll(d.renderer.RenderHTML(tmpl.Body, data), "\n", "<br>\n")
		actionURL = d.absoluteURL(d.renderer.Render(tmpl.ActionURL, data))
		actionLabel = tmpl.ActionLabel
		if actionLabel == "" {
			actionLabel = "View details"
		}
	}

	if actionURL != "" {
		text += "\n\n" + actionLabel + ": " + actionURL
	}

	var buf bytes.Buffer
	err := emailLayout.Execute(&buf, emailView{
		Title:       subject,
		Body:        template.HTML(htmlBody),
		ActionURL:   actionURL,
		ActionLabel: actionLabel,
	})
	if err != nil {
		return EmailMessage{}, err
	}

	return EmailMessage{
		From:    d.sender(),
		To:      r.Email(),
		Subject: subject,
		HTML:    buf.String(),
		Text:    text,
	}, nil
}

func (d *EmailDispatcher) absoluteURL(u string) string {
	if d.cfg.AppURL == "" || !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") {
		return u
	}
	return strings.TrimRight(d.cfg.AppURL, "/") + u
}
