package composer

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/kalambet/outreach/internal/storage"
)

// TemplateData is what follow-up templates can reference.
type TemplateData struct {
	FirstName   string
	FullName    string
	Title       string
	CompanyName string
	SenderName  string
	Agency      string
}

func NewTemplateData(p storage.Prospect, s Sender) TemplateData {
	return TemplateData{
		FirstName:   p.FirstName(),
		FullName:    p.FullName,
		Title:       p.Title,
		CompanyName: p.CompanyName,
		SenderName:  s.Name,
		Agency:      s.Agency,
	}
}

// Template is a parsed subject/body pair.
type Template struct {
	subject *template.Template
	body    *template.Template
}

// ParseTemplate compiles subject and body. Unknown fields are an error at
// render time.
func ParseTemplate(name, subject, body string) (*Template, error) {
	st, err := template.New(name + ".subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("parsing subject of %s: %w", name, err)
	}
	bt, err := template.New(name + ".body").Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing body of %s: %w", name, err)
	}
	return &Template{subject: st, body: bt}, nil
}

func (t *Template) Render(data TemplateData) (Email, error) {
	var subj, body bytes.Buffer
	if err := t.subject.Execute(&subj, data); err != nil {
		return Email{}, fmt.Errorf("rendering subject: %w", err)
	}
	if err := t.body.Execute(&body, data); err != nil {
		return Email{}, fmt.Errorf("rendering body: %w", err)
	}
	return Email{Subject: subj.String(), Body: body.String()}, nil
}
