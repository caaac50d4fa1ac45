package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTP sends plain text mail through a relay. Auth is optional; an
// unauthenticated relay on the local network is the common deployment.
type SMTP struct {
	Addr string
	From string
	Auth smtp.Auth

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewSMTP(addr, from string, auth smtp.Auth) *SMTP {
	return &SMTP{Addr: addr, From: from, Auth: auth, send: smtp.SendMail, now: time.Now}
}

func (s *SMTP) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, addr := range append([]string{s.From}, to...) {
		if strings.ContainsAny(addr, "\r\n") {
			return fmt.Errorf("notify: invalid address %q", addr)
		}
	}
	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		return fmt.Errorf("notify: invalid smtp address %q: %w", s.Addr, err)
	}

	if err := s.send(s.Addr, s.Auth, s.From, to, s.message(to, subject, body)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

func (s *SMTP) message(to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.NewReplacer("\r", " ", "\n", " ").Replace(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
