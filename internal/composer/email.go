// Package composer turns research hooks and follow-up templates into
// ready-to-send emails.
package composer

import (
	"strings"
)

// FallbackSubject is used when generated content has no parsable subject.
const FallbackSubject = "A thought"

type Email struct {
	Subject string
	Body    string
}

// ParseEmail splits generated content of the form
//
//	Subject: <line>
//
//	<body>
//
// into an Email. When the subject line or the blank-line separator is
// missing, the subject falls back to FallbackSubject and the whole content
// becomes the body.
func ParseEmail(content string) Email {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	idx := strings.Index(content, "Subject:")
	if idx < 0 {
		return Email{Subject: FallbackSubject, Body: content}
	}
	rest := content[idx+len("Subject:"):]
	subjectLine, _, _ := strings.Cut(rest, "\n")
	subject := strings.TrimSpace(subjectLine)

	_, body, ok := strings.Cut(content[idx:], "\n\n")
	if !ok || subject == "" {
		return Email{Subject: FallbackSubject, Body: content}
	}
	return Email{Subject: subject, Body: strings.TrimSpace(body)}
}

// String renders e in the same "Subject: ...\n\nbody" form ParseEmail reads.
func (e Email) String() string {
	return "Subject: " + e.Subject + "\n\n" + e.Body
}
