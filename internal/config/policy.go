package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rubenelhore/simonkey-identity/internal/identity"
	"github.com/rubenelhore/simonkey-identity/internal/models"
	"github.com/rubenelhore/simonkey-identity/internal/verification"
	"gopkg.in/yaml.v3"
)

// Duration accepts "10m"-style values in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Policy is the operator-tunable resolution and verification policy, loaded
// from an optional YAML file. Account classes beyond the built-in two can be
// ranked here without a code change.
type Policy struct {
	PrecedenceOrder []string `yaml:"precedence_order" validate:"omitempty,min=1,dive,required"`
	Verification    struct {
		MinResendInterval Duration `yaml:"min_resend_interval" validate:"omitempty,min=0"`
		MaxPerDay         int      `yaml:"max_per_day" validate:"omitempty,min=1"`
	} `yaml:"verification"`
}

// LoadPolicy reads and validates the policy file. An empty path yields the
// defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := &Policy{}
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if err := validator.New().Struct(p); err != nil {
		return nil, fmt.Errorf("invalid policy file: %w", err)
	}
	return p, nil
}

// Precedence returns the configured precedence order, or the default when the
// file did not set one.
func (p *Policy) Precedence() identity.PrecedenceOrder {
	if len(p.PrecedenceOrder) == 0 {
		return identity.DefaultPrecedence()
	}
	order := make(identity.PrecedenceOrder, 0, len(p.PrecedenceOrder))
	for _, class := range p.PrecedenceOrder {
		order = append(order, models.AccountClass(class))
	}
	return order
}

// VerificationPolicy returns the configured resend limits, defaulting each
// unset field.
func (p *Policy) VerificationPolicy() verification.Policy {
	vp := verification.DefaultPolicy()
	if p.Verification.MinResendInterval > 0 {
		vp.MinResendInterval = time.Duration(p.Verification.MinResendInterval)
	}
	if p.Verification.MaxPerDay > 0 {
		vp.MaxPerDay = p.Verification.MaxPerDay
	}
	return vp
}
