package services

import (
	"fmt"
	"time"

	"atmcore/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Notifier отправляет уведомления держателю карты
type Notifier interface {
	SendCardBlockedNotification(to, holder, maskedCard string, blockedUntil *time.Time) error
}

// EmailService предоставляет методы для отправки email
type EmailService struct {
	dialer *gomail.Dialer
	from   string
}

// NewNotifier возвращает EmailService, если SMTP включен, иначе уведомления не отправляются
func NewNotifier(cfg config.SMTPConfig, log *logrus.Logger) Notifier {
	if !cfg.Enabled {
		log.Info("SMTP отключен, уведомления о блокировке карт не отправляются")
		return noopNotifier{}
	}
	return NewEmailService(cfg)
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}
	return nil
}

// SendCardBlockedNotification сообщает держателю о блокировке карты
func (s *EmailService) SendCardBlockedNotification(to, holder, maskedCard string, blockedUntil *time.Time) error {
	until := "до обращения в банк"
	if blockedUntil != nil {
		until = "до " + blockedUntil.Format("02.01.2006 15:04:05 MST")
	}

	subject := "Карта заблокирована"
	body := fmt.Sprintf(`
		<h2>Карта заблокирована</h2>
		<p>%s, ваша карта %s заблокирована после нескольких неверных вводов PIN.</p>
		<p>Блокировка действует %s.</p>
		<p>Если это были не вы, пожалуйста, свяжитесь с банком.</p>
	`, holder, maskedCard, until)

	return s.SendEmail(to, subject, body)
}

type noopNotifier struct{}

func (noopNotifier) SendCardBlockedNotification(to, holder, maskedCard string, blockedUntil *time.Time) error {
	return nil
}
