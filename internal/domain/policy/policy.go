package policy

import (
	"fmt"
	"os"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// Rule grants permissions to applications matching Pattern
type Rule struct {
	Pattern          string           `yaml:"pattern" json:"pattern"`
	Allowed          *bool            `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	DefaultHMILevel  types.HMILevel   `yaml:"default_hmi_level,omitempty" json:"default_hmi_level,omitempty"`
	AllowedHMILevels []types.HMILevel `yaml:"allowed_hmi_levels,omitempty" json:"allowed_hmi_levels,omitempty"`
}

// Table is the policy document
type Table struct {
	Default Rule   `yaml:"default" json:"default"`
	Apps    []Rule `yaml:"apps" json:"apps"`
}

// Policy evaluates a policy table
type Policy struct {
	mu    sync.RWMutex
	table Table
}

// New creates a policy from a table after validating it
func New(table Table) (*Policy, error) {
	if err := validate(&table); err != nil {
		return nil, err
	}
	return &Policy{table: table}, nil
}

// Default returns a policy allowing every application and level
func Default() *Policy {
	allowed := true
	return &Policy{table: Table{Default: Rule{Allowed: &allowed, DefaultHMILevel: types.HMILevelNone}}}
}

// Load reads a YAML policy table. An empty path yields Default.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy table: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML policy table
func Parse(data []byte) (*Policy, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse policy table: %w", err)
	}
	return New(table)
}

// Replace swaps the active table
func (p *Policy) Replace(table Table) error {
	if err := validate(&table); err != nil {
		return err
	}
	p.mu.Lock()
	p.table = table
	p.mu.Unlock()
	return nil
}

// Table returns a copy of the active table
func (p *Policy) Table() Table {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t := p.table
	t.Apps = append([]Rule(nil), p.table.Apps...)
	return t
}

// IsAppAllowed reports whether the application may run
func (p *Policy) IsAppAllowed(policyAppID string) bool {
	r := p.resolve(policyAppID)
	return r.Allowed == nil || *r.Allowed
}

// DefaultHMILevel returns the level an application gets on registration
func (p *Policy) DefaultHMILevel(policyAppID string) types.HMILevel {
	r := p.resolve(policyAppID)
	if r.DefaultHMILevel == "" {
		return types.HMILevelNone
	}
	return r.DefaultHMILevel
}

// IsHMILevelAllowed reports whether the application may be put in level
func (p *Policy) IsHMILevelAllowed(policyAppID string, level types.HMILevel) bool {
	r := p.resolve(policyAppID)
	if r.Allowed != nil && !*r.Allowed {
		return level == types.HMILevelNone
	}
	if len(r.AllowedHMILevels) == 0 {
		return true
	}
	for _, l := range r.AllowedHMILevels {
		if l == level {
			return true
		}
	}
	return false
}

// resolve merges the first matching rule over the default rule
func (p *Policy) resolve(policyAppID string) Rule {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := p.table.Default
	for _, rule := range p.table.Apps {
		// Patterns are validated on load
		if ok, _ := doublestar.Match(rule.Pattern, policyAppID); !ok {
			continue
		}
		if rule.Allowed != nil {
			out.Allowed = rule.Allowed
		}
		if rule.DefaultHMILevel != "" {
			out.DefaultHMILevel = rule.DefaultHMILevel
		}
		if len(rule.AllowedHMILevels) > 0 {
			out.AllowedHMILevels = rule.AllowedHMILevels
		}
		break
	}
	return out
}

func validate(t *Table) error {
	check := func(where string, r Rule) error {
		if r.DefaultHMILevel != "" && !r.DefaultHMILevel.Valid() {
			return fmt.Errorf("%s: invalid default_hmi_level %q", where, r.DefaultHMILevel)
		}
		for _, l := range r.AllowedHMILevels {
			if !l.Valid() {
				return fmt.Errorf("%s: invalid hmi level %q", where, l)
			}
		}
		return nil
	}

	if err := check("default", t.Default); err != nil {
		return err
	}
	for i, rule := range t.Apps {
		where := fmt.Sprintf("apps[%d]", i)
		if rule.Pattern == "" {
			return fmt.Errorf("%s: pattern is required", where)
		}
		if !doublestar.ValidatePattern(rule.Pattern) {
			return fmt.Errorf("%s: invalid pattern %q", where, rule.Pattern)
		}
		if err := check(where, rule); err != nil {
			return err
		}
	}
	return nil
}
