package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/marden/bookpool/pkg/config"
)

// OrganizationCreationEmail announces a newly provisioned organization to
// its owner. Sent exactly once per organization.
type OrganizationCreationEmail struct {
	To        string
	OwnerName string
	OrgName   string
	OrgSlug   string
}

// TeamInviteEmail invites a member into an organization or team.
type TeamInviteEmail struct {
	To       string
	TeamName string
	Inviter  string
}

// BookingEmail confirms or cancels a booking for an attendee.
type BookingEmail struct {
	To        string
	Title     string
	HostName  string
	StartTime string
	Cancelled bool
}

// Mailer sends transactional email.
type Mailer interface {
	SendOrganizationCreationEmail(ctx context.Context, email OrganizationCreationEmail) error
	SendTeamInviteEmail(ctx context.Context, email TeamInviteEmail) error
	SendBookingEmail(ctx context.Context, email BookingEmail) error
}

// SMTP delivers mail over a plain SMTP relay.
type SMTP struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

func NewSMTP(cfg *config.EmailConfig, logger *slog.Logger) *SMTP {
	return &SMTP{cfg: cfg, logger: logger}
}

var _ Mailer = (*SMTP)(nil)

var orgCreatedTmpl = template.Must(template.New("org_created").Parse(`
<h2>Your organization {{.OrgName}} is ready</h2>
<p>Hi {{.OwnerName}},</p>
<p>Your organization has been set up. Your members can now book at
<strong>{{.OrgSlug}}</strong>.</p>
`))

var teamInviteTmpl = template.Must(template.New("team_invite").Parse(`
<h2>You have been invited to {{.TeamName}}</h2>
<p>{{.Inviter}} invited you to join {{.TeamName}}. Sign in to accept.</p>
`))

var bookingTmpl = template.Must(template.New("booking").Parse(`
{{if .Cancelled}}<h2>Booking cancelled: {{.Title}}</h2>{{else}}<h2>Booking confirmed: {{.Title}}</h2>{{end}}
<p>Host: {{.HostName}}</p>
<p>Starts: {{.StartTime}}</p>
`))

func (m *SMTP) SendOrganizationCreationEmail(ctx context.Context, email OrganizationCreationEmail) error {
	subject := fmt.Sprintf("Your organization %s is ready", email.OrgName)
	return m.send(ctx, email.To, subject, orgCreatedTmpl, email)
}

func (m *SMTP) SendTeamInviteEmail(ctx context.Context, email TeamInviteEmail) error {
	subject := fmt.Sprintf("You have been invited to %s", email.TeamName)
	return m.send(ctx, email.To, subject, teamInviteTmpl, email)
}

func (m *SMTP) SendBookingEmail(ctx context.Context, email BookingEmail) error {
	subject := "Booking confirmed: " + email.Title
	if email.Cancelled {
		subject = "Booking cancelled: " + email.Title
	}
	return m.send(ctx, email.To, subject, bookingTmpl, email)
}

func (m *SMTP) send(ctx context.Context, to, subject string, tmpl *template.Template, data interface{}) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("rendering email body: %w", err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	var a smtp.Auth
	if m.cfg.SMTPUser != "" {
		a = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, a, m.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}

	m.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

// Log is a mailer that only logs. Used in development and tests.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

var _ Mailer = (*Log)(nil)

func (m *Log) SendOrganizationCreationEmail(ctx context.Context, email OrganizationCreationEmail) error {
	m.logger.Info("would send organization creation email", "to", email.To, "org", email.OrgName)
	return nil
}

func (m *Log) SendTeamInviteEmail(ctx context.Context, email TeamInviteEmail) error {
	m.logger.Info("would send team invite email", "to", email.To, "team", email.TeamName)
	return nil
}

func (m *Log) SendBookingEmail(ctx context.Context, email BookingEmail) error {
	m.logger.Info("would send booking email", "to", email.To, "title", email.Title)
	return nil
}
