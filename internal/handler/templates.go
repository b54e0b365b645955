package handler

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/sungwon/notification-pipeline/internal/notification"
)

// mailContent is the subject and text body of one event type's email.
type mailContent struct {
	subject string
	body    string
}

var mailContents = map[notification.EventType]mailContent{
	notification.EventWelcome: {
		subject: "Welcome aboard, {{.Name}}",
		body:    "Hi {{.Name}},\n\nThanks for signing up. Your account is ready.\n",
	},
	notification.EventTrialStart: {
		subject: "Your trial has started",
		body:    "Hi {{.Name}},\n\nYour free trial is active{{with .Get \"trialEndsAt\"}} until {{.}}{{end}}.\n",
	},
	notification.EventTrial3DLeft: {
		subject: "3 days left in your trial",
		body:    "Hi {{.Name}},\n\nYour trial ends in 3 days. Subscribe to keep your data and settings.\n",
	},
	notification.EventTrialEnd: {
		subject: "Your trial has ended",
		body:    "Hi {{.Name}},\n\nYour trial has ended. Subscribe any time to pick up where you left off.\n",
	},
	notification.EventSubscriptionActive: {
		subject: "Your subscription is active",
		body:    "Hi {{.Name}},\n\nThanks for subscribing{{with .Get \"plan\"}} to the {{.}} plan{{end}}.\n",
	},
	notification.EventSubscriptionPastDue: {
		subject: "Payment failed for your subscription",
		body:    "Hi {{.Name}},\n\nWe could not process your latest payment. Please update your billing details.\n",
	},
	notification.EventResetPassword: {
		subject: "Reset your password",
		body:    "Hi {{.Name}},\n\nUse this link to reset your password: {{.Get \"link\"}}\n\nIf you did not ask for this, ignore this email.\n",
	},
	notification.EventMagicLink: {
		subject: "Your sign-in link",
		body:    "Hi {{.Name}},\n\nSign in with this link: {{.Get \"link\"}}\n",
	},
}

// templateData is what subject and body templates are executed against.
type templateData struct {
	Name   string
	Email  string
	UserID string
	Data   map[string]any
}

// Get returns Data[key] formatted as a string, or "" when absent.
func (d templateData) Get(key string) string {
	v, ok := d.Data[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// mailTemplate is the parsed form of a mailContent.
type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func parseMailTemplate(e notification.EventType) (*mailTemplate, error) {
	c, ok := mailContents[e]
	if !ok {
		return nil, fmt.Errorf("no mail template for %s", e)
	}
	subject, err := template.New(string(e) + ".subject").Parse(c.subject)
	if err != nil {
		return nil, fmt.Errorf("parse %s subject: %w", e, err)
	}
	body, err := template.New(string(e) + ".body").Parse(c.body)
	if err != nil {
		return nil, fmt.Errorf("parse %s body: %w", e, err)
	}
	return &mailTemplate{subject: subject, body: body}, nil
}

func (t *mailTemplate) render(d templateData) (subject, body string, err error) {
	var b strings.Builder
	if err := t.subject.Execute(&b, d); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	subject = strings.TrimSpace(b.String())

	b.Reset()
	if err := t.body.Execute(&b, d); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject, b.String(), nil
}
