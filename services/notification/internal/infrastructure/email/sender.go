package email

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/sakashimaa/groupbuy/pkg/mylogger"
	"github.com/sakashimaa/groupbuy/pkg/utils"
	"github.com/sakashimaa/groupbuy/services/notification/internal/domain"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("email sender temporarily unavailable")

type Sender interface {
	Send(ctx context.Context, msg domain.Message) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type smtpSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) Sender {
	return &smtpSender{
		cfg:      cfg,
		sendMail: smtp.SendMail,
		logger:   logger,
		tracer:   otel.Tracer("notification/infrastructure/email"),
	}
}

func buildMessage(from string, msg domain.Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

func (s *smtpSender) Send(ctx context.Context, msg domain.Message) error {
	ctx, span := s.tracer.Start(ctx, "smtp.Send")
	defer span.End()

	span.SetAttributes(attribute.String("to.email", msg.To))

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)

	mylogger.Debug(ctx, s.logger, "Sending email", zap.String("to", msg.To))

	if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To}, buildMessage(s.cfg.From, msg)); err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Error sending email",
			zap.String("to", msg.To),
			zap.Error(err),
		)

		return fmt.Errorf("failed to send mail: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Email sent", zap.String("to", msg.To))
	return nil
}

type breakerSender struct {
	next   Sender
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// WithBreaker stops calling next once it keeps failing, so a dead SMTP
// server fails fast instead of stalling the consumer on every message.
func WithBreaker(next Sender, logger *zap.Logger) Sender {
	return &breakerSender{
		next:   next,
		cb:     utils.NewBreaker("SMTP", logger),
		logger: logger,
	}
}

func (s *breakerSender) Send(ctx context.Context, msg domain.Message) error {
	_, err := utils.ExecuteWithBreaker(s.cb, func() (struct{}, error) {
		return struct{}{}, s.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		mylogger.Warn(ctx, s.logger, "Circuit breaker open", zap.String("to", msg.To))
		return ErrUnavailable
	}

	return err
}
