package mail

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// Mailer is the delivery collaborator. Implementations report send failures;
// callers decide whether a failed send aborts the operation.
type Mailer interface {
	Send(to, subject, htmlBody, textBody string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   from,
	}
}

func (m *SMTPMailer) Send(to, subject, htmlBody, textBody string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)
	return m.dialer.DialAndSend(msg)
}

// LogMailer writes outgoing mail to the process log. Used in development and
// whenever SMTP is not configured.
type LogMailer struct{}

func (LogMailer) Send(to, subject, _, textBody string) error {
	log.Printf("mail to=%s subject=%q body=%q", to, subject, textBody)
	return nil
}

// OTPEmail renders the one-time-code message.
func OTPEmail(name, code string, minutes int) (subject, htmlBody, textBody string) {
	subject = "Tu código de acceso"
	textBody = fmt.Sprintf("Hola %s, tu código de acceso es %s. Expira en %d minutos.", name, code, minutes)
	htmlBody = fmt.Sprintf(`<div style="font-family:sans-serif">
  <p>Hola <strong>%s</strong>,</p>
  <p>Tu código de acceso es:</p>
  <p style="font-size:28px;letter-spacing:6px"><strong>%s</strong></p>
  <p>Expira en %d minutos. Si no solicitaste este código, ignora este correo.</p>
</div>`, name, code, minutes)
	return subject, htmlBody, textBody
}

// WelcomeEmail renders the greeting sent when a student account is created.
func WelcomeEmail(name string) (subject, htmlBody, textBody string) {
	subject = "¡Bienvenido al sistema escolar!"
	textBody = fmt.Sprintf("Hola %s, tu cuenta ha sido creada. Ya puedes iniciar sesión con tu correo institucional.", name)
	htmlBody = fmt.Sprintf(`<div style="font-family:sans-serif">
  <p>Hola <strong>%s</strong>,</p>
  <p>Tu cuenta ha sido creada. Ya puedes iniciar sesión con tu correo institucional.</p>
</div>`, name)
	return subject, htmlBody, textBody
}
