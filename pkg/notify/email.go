package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/dukex/reviewflow/pkg/identity"
	"github.com/dukex/reviewflow/pkg/models"
)

// Message is one e-mail.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer sends e-mail.
type Mailer interface {
	Send(ctx context.Context, message Message) error
}

var subjects = map[models.FormResponseStatus]string{
	models.FormResponseStatusApproved: "Your submission to {{.FlowName}} was approved",
	models.FormResponseStatusRejected: "Your submission to {{.FlowName}} was rejected",
}

const bodyTemplate = `Hello {{.RecipientName}},

{{if eq .Status "approved" -}}
Your submission {{.FormResponseID}} cleared the last step ({{.StepName}}) of {{.FlowName}}.
{{- else -}}
Your submission {{.FormResponseID}} was rejected at step {{.StepName}} of {{.FlowName}}.

Reason: {{.Reason}}
{{- end}}
`

// EmailNotifier mails every recipient whose address the identity provider
// knows. Recipients it cannot resolve are skipped.
type EmailNotifier struct {
	mailer   Mailer
	users    identity.Provider
	logger   *slog.Logger
	subjects map[models.FormResponseStatus]*template.Template
	body     *template.Template
}

func NewEmailNotifier(mailer Mailer, users identity.Provider, logger *slog.Logger) *EmailNotifier {
	parsed := make(map[models.FormResponseStatus]*template.Template, len(subjects))
	for status, subject := range subjects {
		parsed[status] = template.Must(template.New(string(status)).Parse(subject))
	}

	return &EmailNotifier{
		mailer:   mailer,
		users:    users,
		logger:   logger.With("module", "email_notifier"),
		subjects: parsed,
		body:     template.Must(template.New("body").Parse(bodyTemplate)),
	}
}

type emailData struct {
	Notification

	RecipientName string
}

func (n *EmailNotifier) Notify(ctx context.Context, notification Notification) error {
	subject, ok := n.subjects[notification.Status]
	if !ok {
		return fmt.Errorf("no e-mail template for status %q", notification.Status)
	}

	var errs []error

	for _, recipientID := range notification.Recipients {
		user, err := n.users.UserByID(ctx, recipientID)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if user == nil || user.Email == "" {
			n.logger.WarnContext(ctx, "Skipping recipient without address", "user_id", recipientID)

			continue
		}

		message, err := n.render(subject, emailData{Notification: notification, RecipientName: user.Name})
		if err != nil {
			return err
		}

		message.To = []string{user.Email}

		err = n.mailer.Send(ctx, message)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to mail %s: %w", recipientID, err))
		}
	}

	return errors.Join(errs...)
}

func (n *EmailNotifier) render(subject *template.Template, data emailData) (Message, error) {
	var subjectBuf, bodyBuf bytes.Buffer

	err := subject.Execute(&subjectBuf, data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to render subject: %w", err)
	}

	err = n.body.Execute(&bodyBuf, data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to render body: %w", err)
	}

	return Message{Subject: subjectBuf.String(), Body: bodyBuf.String()}, nil
}
