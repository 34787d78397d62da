package triage

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is one inbound email, reduced to what triage needs.
type Message struct {
	UID       uint32 // mailbox UID, zero when not read from IMAP
	MessageID string
	From      string // bare address
	Subject   string
	Body      string // first text/plain part
	Date      time.Time
}

// ParseMessage reads an RFC 5322 message. Headers are decoded and the
// first text/plain part becomes the body; HTML-only messages yield an
// empty body.
func ParseMessage(r io.Reader) (Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && mr == nil {
		return Message{}, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	var m Message
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		m.From = strings.ToLower(from[0].Address)
	}
	if m.From == "" {
		return Message{}, errors.New("message has no From address")
	}
	m.Subject, _ = mr.Header.Subject()
	m.MessageID, _ = mr.Header.MessageID()
	m.Date, _ = mr.Header.Date()

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return m, fmt.Errorf("reading message part: %w", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct != "" && ct != "text/plain" {
			continue
		}
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return m, fmt.Errorf("reading body: %w", err)
		}
		m.Body = strings.TrimSpace(strings.ReplaceAll(string(b), "\r\n", "\n"))
		break
	}
	return m, nil
}
