package mailer

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"
)

// Config configures the SES sender. An empty FromEmail disables delivery.
type Config struct {
	Region     string
	FromEmail  string
	FromName   string
	AppBaseURL string
}

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Mailer sends parent notifications through Amazon SES.
type Mailer struct {
	client     sesAPI
	fromEmail  string
	fromName   string
	appBaseURL string
	logger     zerolog.Logger
}

// New builds a Mailer. Without a sender address it returns a disabled Mailer that drops every message.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Mailer, error) {
	log := logger.With().Str("component", "mailer").Logger()
	if cfg.FromEmail == "" {
		log.Info().Msg("email delivery disabled: no sender address configured")
		return &Mailer{logger: log, appBaseURL: cfg.AppBaseURL}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info().Str("from", cfg.FromEmail).Str("region", cfg.Region).Msg("email delivery enabled")
	return newWithClient(sesv2.NewFromConfig(awsCfg), cfg, log), nil
}

func newWithClient(client sesAPI, cfg Config, logger zerolog.Logger) *Mailer {
	return &Mailer{
		client:     client,
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		appBaseURL: cfg.AppBaseURL,
		logger:     logger,
	}
}

// Enabled reports whether messages are actually delivered.
func (m *Mailer) Enabled() bool {
	return m != nil && m.client != nil
}

// Send delivers msg, or logs and drops it when delivery is disabled.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if !m.Enabled() {
		m.logger.Debug().Str("to", maskAddress(msg.To)).Str("subject", msg.Subject).Msg("skipping email, delivery disabled")
		return nil
	}
	if msg.To == "" {
		return fmt.Errorf("email recipient is required")
	}

	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	out, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", maskAddress(msg.To), err)
	}

	event := m.logger.Info().Str("to", maskAddress(msg.To)).Str("subject", msg.Subject)
	if out != nil && out.MessageId != nil {
		event = event.Str("message_id", *out.MessageId)
	}
	event.Msg("email sent")
	return nil
}

// PlanCompleted builds the congratulation email sent when a student finishes a plan.
func (m *Mailer) PlanCompleted(to, parentName, studentName, planName string) Message {
	link := m.appBaseURL + "/plans"
	subject := fmt.Sprintf("%s finished %q!", studentName, planName)
	text := fmt.Sprintf("Hi %s,\n\n%s just finished every day of the reading plan %q. "+
		"Start a new plan whenever you are ready: %s\n", greeting(parentName), studentName, planName, link)
	body := fmt.Sprintf("<p>Hi %s,</p><p><strong>%s</strong> just finished every day of the reading plan <em>%s</em>.</p>"+
		"<p><a href=\"%s\">Start a new plan</a> whenever you are ready.</p>",
		html.EscapeString(greeting(parentName)), html.EscapeString(studentName), html.EscapeString(planName), html.EscapeString(link))
	return Message{To: to, Subject: subject, HTMLBody: body, TextBody: text}
}

// AssessmentScored builds the summary email sent after a reading assessment is scored.
func (m *Mailer) AssessmentScored(to, parentName, studentName, label string, composite float64) Message {
	subject := fmt.Sprintf("%s's reading results are ready", studentName)
	text := fmt.Sprintf("Hi %s,\n\n%s scored %.0f out of 100: %s.\n", greeting(parentName), studentName, composite, label)
	body := fmt.Sprintf("<p>Hi %s,</p><p><strong>%s</strong> scored %.0f out of 100: %s.</p>",
		html.EscapeString(greeting(parentName)), html.EscapeString(studentName), composite, html.EscapeString(label))
	return Message{To: to, Subject: subject, HTMLBody: body, TextBody: text}
}

func greeting(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// maskAddress keeps the first and last character of the local part so logs never carry a full address.
func maskAddress(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return "***"
	}
	local := parts[0]
	if len(local) <= 2 {
		local = local[:1] + "***"
	} else {
		local = local[:1] + "***" + local[len(local)-1:]
	}
	return local + "@" + parts[1]
}
