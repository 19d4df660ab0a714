package utils

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *SMTPMailer) SendTemporaryPassword(to, password string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your temporary password")
	msg.SetBody("text/plain", fmt.Sprintf("Your temporary password: %s\r\nPlease change it after signing in.", password))

	return m.dialer.DialAndSend(msg)
}
