// Package notify delivers ticket confirmations.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"

	"park-ticketing/internal/config"
	"park-ticketing/internal/logger"
	"park-ticketing/internal/models"
)

type Sender interface {
	Send(ctx context.Context, ticket models.Ticket, email string) error
}

// New picks the transport once at start-up.
func New(cfg config.EmailConfig, log *logger.Logger) Sender {
	if cfg.Enabled {
		log.Info("NOTIFY", fmt.Sprintf("Email service: using SMTP %s:%s", cfg.SMTPHost, cfg.SMTPPort))
		return NewSMTPSender(cfg)
	}
	log.Info("NOTIFY", "Email service: SMTP not configured, confirmations are only logged")
	return NewLogSender(log)
}

// LogSender records the confirmation instead of delivering it.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(ctx context.Context, ticket models.Ticket, email string) error {
	s.logger.LogNotify("MOCK", email, fmt.Sprintf("confirmation for ticket %d on %s", ticket.ID, ticket.VisitDate))
	return nil
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPSender struct {
	cfg      config.EmailConfig
	sendMail sendMailFunc
}

func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

var confirmationTemplate = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(
	`Thank you for your purchase!

Ticket #{{.ID}}
Visit date: {{.VisitDate}}
Visitors: {{.Quantity}}
{{range $i, $v := .Visitors}}  {{inc $i}}. age {{$v.Age}}, {{$v.PassType}} pass
{{end}}Payment: {{.PaymentMethod}}
{{if .CheckoutURL}}Complete your payment at {{.CheckoutURL}}
{{end}}
Show the QR code attached to your booking at the gate.
`))

func (s *SMTPSender) Send(ctx context.Context, ticket models.Ticket, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	message, err := s.buildMessage(ticket, email)
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{email}, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(ticket models.Ticket, email string) ([]byte, error) {
	var body bytes.Buffer
	if err := confirmationTemplate.Execute(&body, ticket); err != nil {
		return nil, fmt.Errorf("failed to render confirmation: %w", err)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	fmt.Fprintf(&msg, "Subject: Your park tickets for %s\r\n", ticket.VisitDate)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body.String())
	return []byte(msg.String()), nil
}
