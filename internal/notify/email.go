package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"revia/internal/model"
)

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AddressBook resolves a user's email address. An empty address means the
// user has no email on file.
type AddressBook interface {
	EmailAddress(ctx context.Context, userID int64) (string, error)
}

// EmailSender delivers the email copy of a reminder, rate-limited so a
// burst of simultaneous reminders does not flood the relay.
type EmailSender struct {
	mailer  Mailer
	book    AddressBook
	limiter *rate.Limiter
	logs    LogStore
	logger  *zerolog.Logger
}

// NewEmailSender creates an email sender. perMinute bounds outgoing mail;
// values <= 0 fall back to 30 per minute.
func NewEmailSender(mailer Mailer, book AddressBook, logs LogStore, perMinute int, logger *zerolog.Logger) *EmailSender {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &EmailSender{
		mailer:  mailer,
		book:    book,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		logs:    logs,
		logger:  logger,
	}
}

// SendReminder emails the reminder to the user. Users without an address
// on file are skipped silently.
func (s *EmailSender) SendReminder(ctx context.Context, userID int64, subject, body string) error {
	addr, err := s.book.EmailAddress(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve email for user %d: %w", userID, err)
	}
	if addr == "" {
		s.logger.Debug().Int64("user_id", userID).Msg("no email on file, skipping")
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email rate limiter: %w", err)
	}

	if err := s.mailer.Send(ctx, addr, subject, body); err != nil {
		return fmt.Errorf("send email to user %d: %w", userID, err)
	}

	s.appendLog(userID, subject, body)
	s.logger.Info().Int64("user_id", userID).Str("subject", subject).Msg("email reminder sent")
	return nil
}

func (s *EmailSender) appendLog(userID int64, subject, body string) {
	if s.logs == nil {
		return
	}

	entry := &model.NotificationLog{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   model.TypeEmailReminder,
		SentAt: time.Now(),
		Metadata: map[string]string{
			"subject":   subject,
			"body":      body,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.logs.AppendNotificationLog(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("email log append failed")
		}
	}()
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// Send delivers one message. The context is not honored mid-dial because
// net/smtp offers no hook for it; the relay timeout bounds the call.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.From, to, subject, body))
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	if err := smtp.SendMail(addr, auth, m.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
