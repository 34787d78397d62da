package sequence

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/outreach/internal/composer"
)

type StepKind string

const (
	// StepResearch researches a hook and has the LLM write the email.
	StepResearch StepKind = "research"
	// StepTemplate renders a fixed follow-up template.
	StepTemplate StepKind = "template"
)

type Step struct {
	Kind     StepKind `yaml:"kind"`
	Subject  string   `yaml:"subject,omitempty"`
	Body     string   `yaml:"body,omitempty"`
	WaitDays *int     `yaml:"wait_days,omitempty"`

	tmpl *composer.Template
}

// Definition is an ordered list of steps. Step numbers are 1-based.
type Definition struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`

	defaultWait int
}

//go:embed default_sequence.yaml
var defaultSequenceYAML []byte

// DefaultDefinition returns the built-in sequence under id, with
// defaultWaitDays between steps.
func DefaultDefinition(id string, defaultWaitDays int) (*Definition, error) {
	d, err := ParseDefinition(defaultSequenceYAML, defaultWaitDays)
	if err != nil {
		return nil, err
	}
	if id != "" {
		d.ID = id
	}
	return d, nil
}

func LoadDefinition(path string, defaultWaitDays int) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sequence file: %w", err)
	}
	d, err := ParseDefinition(data, defaultWaitDays)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseDefinition decodes and validates a YAML definition. Template steps
// are compiled and test-rendered so bad field references fail here rather
// than in the scheduler.
func ParseDefinition(data []byte, defaultWaitDays int) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing sequence: %w", err)
	}
	if d.ID == "" {
		return nil, fmt.Errorf("sequence has no id")
	}
	if len(d.Steps) == 0 {
		return nil, fmt.Errorf("sequence %s has no steps", d.ID)
	}
	d.defaultWait = defaultWaitDays

	for i := range d.Steps {
		s := &d.Steps[i]
		n := i + 1
		if s.WaitDays != nil && *s.WaitDays < 0 {
			return nil, fmt.Errorf("step %d: wait_days must not be negative", n)
		}
		switch s.Kind {
		case StepResearch:
		case StepTemplate:
			if s.Subject == "" || s.Body == "" {
				return nil, fmt.Errorf("step %d: template steps need subject and body", n)
			}
			tmpl, err := composer.ParseTemplate(fmt.Sprintf("%s.step%d", d.ID, n), s.Subject, s.Body)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", n, err)
			}
			if _, err := tmpl.Render(composer.TemplateData{}); err != nil {
				return nil, fmt.Errorf("step %d: %w", n, err)
			}
			s.tmpl = tmpl
		default:
			return nil, fmt.Errorf("step %d: unknown kind %q", n, s.Kind)
		}
	}
	return &d, nil
}

// Step returns step n, or false when n is past the last step.
func (d *Definition) Step(n int) (Step, bool) {
	if n < 1 || n > len(d.Steps) {
		return Step{}, false
	}
	return d.Steps[n-1], true
}

// Wait is how long to wait after sending step s before the next one.
func (d *Definition) Wait(s Step) time.Duration {
	days := d.defaultWait
	if s.WaitDays != nil {
		days = *s.WaitDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Render fills a template step for one prospect.
func (s Step) Render(data composer.TemplateData) (composer.Email, error) {
	if s.tmpl == nil {
		return composer.Email{}, fmt.Errorf("step of kind %q has no template", s.Kind)
	}
	return s.tmpl.Render(data)
}

// Catalog maps sequence IDs to definitions.
type Catalog map[string]*Definition

func NewCatalog(defs ...*Definition) Catalog {
	c := make(Catalog, len(defs))
	for _, d := range defs {
		c[d.ID] = d
	}
	return c
}
