package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSend(t *testing.T) {
	d := &recordingDialer{}
	s := NewSenderWithDialer(d, formatFrom("Dana Smith", "dana@agency.test"))

	if err := s.Send(context.Background(), "ann@acme.test", "Quick idea", "Hi Ann,\n\nHello."); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(d.sent))
	}
	m := d.sent[0]
	if got := m.GetHeader("To"); len(got) != 1 || got[0] != "ann@acme.test" {
		t.Errorf("To = %v", got)
	}
	if got := m.GetHeader("Subject"); len(got) != 1 || got[0] != "Quick idea" {
		t.Errorf("Subject = %v", got)
	}
	if got := m.GetHeader("From"); len(got) != 1 || !strings.Contains(got[0], "dana@agency.test") {
		t.Errorf("From = %v", got)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "text/plain") {
		t.Errorf("message is not text/plain:\n%s", buf.String())
	}
}

func TestSend_Errors(t *testing.T) {
	d := &recordingDialer{err: errors.New("535 auth failed")}
	s := NewSenderWithDialer(d, "dana@agency.test")
	if err := s.Send(context.Background(), "ann@acme.test", "s", "b"); err == nil {
		t.Error("expected dialer error to propagate")
	}

	ok := NewSenderWithDialer(&recordingDialer{}, "dana@agency.test")
	if err := ok.Send(context.Background(), "", "s", "b"); err == nil {
		t.Error("expected error for empty recipient")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ok.Send(ctx, "ann@acme.test", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewSMTPSender_SSLOnPort465(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.test", Port: 465, Username: "dana@agency.test", Password: "pw"})
	d, ok := s.dialer.(*gomail.Dialer)
	if !ok {
		t.Fatalf("dialer = %T", s.dialer)
	}
	if !d.SSL {
		t.Error("SSL = false on port 465")
	}
	if s.from != "dana@agency.test" {
		t.Errorf("from = %q", s.from)
	}

	s = NewSMTPSender(SMTPConfig{Host: "smtp.test", Port: 587, Username: "u@agency.test", FromName: "Dana"})
	if s.dialer.(*gomail.Dialer).SSL {
		t.Error("SSL = true on port 587")
	}
	if s.from != `"Dana" <u@agency.test>` {
		t.Errorf("from = %q", s.from)
	}
}
