// Package tour loads walkthrough definitions from YAML files and turns
// them into walkthrough steps whose hooks drive a live page.
package tour

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/walkthrough/pkg/layout"
)

// Tour is a parsed tour file.
type Tour struct {
	Name  string     `yaml:"name" json:"name"`
	URL   string     `yaml:"url,omitempty" json:"url,omitempty"`
	Steps []StepSpec `yaml:"steps" json:"steps"`

	// Path is the file the tour was loaded from, if any.
	Path string `yaml:"-" json:"-"`
}

// StepSpec is one step as written in the file.
type StepSpec struct {
	Selector       string            `yaml:"selector" json:"selector"`
	Content        string            `yaml:"content,omitempty" json:"content,omitempty"`
	Placement      string            `yaml:"placement,omitempty" json:"placement,omitempty"`
	ShowBackdrop   *bool             `yaml:"showBackdrop,omitempty" json:"showBackdrop,omitempty"`
	TooltipClass   string            `yaml:"tooltipClass,omitempty" json:"tooltipClass,omitempty"`
	TooltipStyle   map[string]string `yaml:"tooltipStyle,omitempty" json:"tooltipStyle,omitempty"`
	NavButtonClass string            `yaml:"navButtonClass,omitempty" json:"navButtonClass,omitempty"`
	NavButtonStyle map[string]string `yaml:"navButtonStyle,omitempty" json:"navButtonStyle,omitempty"`
	// Navigation is default, compact or none.
	Navigation string `yaml:"navigation,omitempty" json:"navigation,omitempty"`

	OnEnter    []string  `yaml:"onEnter,omitempty" json:"onEnter,omitempty"`
	OnExit     []string  `yaml:"onExit,omitempty" json:"onExit,omitempty"`
	BeforeNext []string  `yaml:"beforeNext,omitempty" json:"beforeNext,omitempty"`
	CanGoNext  *GateSpec `yaml:"canGoNext,omitempty" json:"canGoNext,omitempty"`
}

// GateSpec is a CEL expression that must evaluate to true before Next.
type GateSpec struct {
	Expr  string `yaml:"expr" json:"expr"`
	Error string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Navigation styles.
const (
	NavigationDefault = "default"
	NavigationCompact = "compact"
	NavigationNone    = "none"
)

// Load reads and validates a tour file.
func Load(path string) (*Tour, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tour: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Path = path
	return t, nil
}

// Parse decodes and validates a tour. Unknown keys are rejected.
func Parse(data []byte) (*Tour, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Tour
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("tour is empty")
		}
		return nil, fmt.Errorf("parse tour: %w", err)
	}
	if err := t.Validate(nil); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks every step. Gate expressions are compiled with gates
// when it is non-nil.
func (t *Tour) Validate(gates *GateCompiler) error {
	if len(t.Steps) == 0 {
		return errors.New("tour has no steps")
	}
	if gates == nil {
		var err error
		if gates, err = NewGateCompiler(len(t.Steps)); err != nil {
			return err
		}
	}

	var errs []error
	for i, s := range t.Steps {
		if s.Selector == "" {
			errs = append(errs, fmt.Errorf("step %d: selector is required", i))
		}
		if s.Placement != "" && !layout.Placement(s.Placement).Valid() {
			errs = append(errs, fmt.Errorf("step %d: unknown placement %q", i, s.Placement))
		}
		switch s.Navigation {
		case "", NavigationDefault, NavigationCompact, NavigationNone:
		default:
			errs = append(errs, fmt.Errorf("step %d: unknown navigation %q", i, s.Navigation))
		}
		for hook, lines := range map[string][]string{"onEnter": s.OnEnter, "onExit": s.OnExit, "beforeNext": s.BeforeNext} {
			if _, err := ParseActions(lines); err != nil {
				errs = append(errs, fmt.Errorf("step %d %s: %w", i, hook, err))
			}
		}
		if s.CanGoNext != nil {
			if s.CanGoNext.Expr == "" {
				errs = append(errs, fmt.Errorf("step %d canGoNext: expr is required", i))
			} else if _, err := gates.Compile(s.CanGoNext.Expr); err != nil {
				errs = append(errs, fmt.Errorf("step %d canGoNext: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Marshal renders the tour back to YAML.
func (t *Tour) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}
