package schema

import (
	"fmt"
	"time"
)

// Definition is one registered (name, version) shape. It is immutable once
// registered; new versions are added, never edited.
type Definition struct {
	Name      string
	Version   Version
	Type      Type
	Context   Context
	ValidFrom time.Time
	ValidTo   *time.Time
	Rules     []*RuleSet
}

// ValidAt reports whether t falls in [ValidFrom, ValidTo).
func (d *Definition) ValidAt(t time.Time) bool {
	if t.Before(d.ValidFrom) {
		return false
	}
	return d.ValidTo == nil || t.Before(*d.ValidTo)
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s@%s(%s)", d.Name, d.Version, d.Context)
}

// Registration is the input to Registry.Register. A zero ValidFrom means
// "from the moment of registration". Rules are edges leaving Version.
type Registration struct {
	Name      string
	Type      Type
	Version   Version
	Context   Context
	ValidFrom time.Time
	ValidTo   *time.Time
	Rules     []*RuleSet
}

func (r Registration) validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRegistration)
	}
	if r.Type == nil {
		return fmt.Errorf("%w: %s@%s has no type", ErrInvalidRegistration, r.Name, r.Version)
	}
	if !r.Context.IsValid() {
		return fmt.Errorf("%w: %s@%s: %q is not a context", ErrInvalidRegistration, r.Name, r.Version, r.Context)
	}
	if r.ValidTo != nil && !r.ValidTo.After(r.ValidFrom) {
		return fmt.Errorf("%w: %s@%s: valid_to must be after valid_from", ErrInvalidRegistration, r.Name, r.Version)
	}
	for _, rs := range r.Rules {
		if rs == nil {
			return fmt.Errorf("%w: %s@%s has a nil rule set", ErrInvalidRegistration, r.Name, r.Version)
		}
		if rs.From != r.Version {
			return fmt.Errorf("%w: rule set %q leaves %s, not %s", ErrInvalidRegistration, rs.Name, rs.From, r.Version)
		}
	}
	return nil
}
