package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"
)

// ErrEmailDisabled is returned when no SMTP credentials are configured.
var ErrEmailDisabled = errors.New("email is not configured")

// EmailConfig holds SMTP settings. Port 587 uses STARTTLS through net/smtp.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.User != "" && c.Password != ""
}

// EmailSender delivers rendered messages over SMTP.
type EmailSender struct {
	cfg      EmailConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &EmailSender{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *EmailSender) Enabled() bool { return s.cfg.Enabled() }

func (s *EmailSender) Send(ctx context.Context, to string, msg Message) error {
	if !s.cfg.Enabled() {
		return ErrEmailDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := buildMIME(s.cfg.From, to, msg, time.Now())
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, body); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// buildMIME assembles a multipart/alternative message with text and HTML parts.
func buildMIME(from, to string, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/alternative; boundary=%s\r\n\r\n",
		from, to, mime.QEncoding.Encode("utf-8", msg.Subject), now.Format(time.RFC1123Z), mw.Boundary())
	buf.WriteString(header)

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
