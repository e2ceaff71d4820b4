package mail

import (
	"context"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/logger"
)

// SMTPConfig holds outgoing mail settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages over SMTP with STARTTLS, or implicit TLS on 465
type SMTPSender struct {
	cfg    SMTPConfig
	logger *zap.SugaredLogger
}

// NewSMTPSender creates an SMTP sender
func NewSMTPSender(cfg SMTPConfig, log *zap.SugaredLogger) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &SMTPSender{cfg: cfg, logger: log}
}

// Send delivers msg. Each call dials a fresh connection.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create smtp client")
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrapf(err, "failed to send mail to %s", msg.To)
	}

	s.logger.Infow("Mail sent",
		logger.FieldRecipient, msg.To,
		logger.FieldSubject, msg.Subject)
	return nil
}

func (s *SMTPSender) build(msg Message) (*gomail.Msg, error) {
	if msg.To == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "mail recipient is required")
	}

	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, errors.Wrapf(err, "invalid sender %q", s.cfg.From)
	}
	if err := m.To(msg.To); err != nil {
		return nil, errors.Wrapf(err, "invalid recipient %q", msg.To)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}
