// Package catalog binds the compiled schema types and migration rule sets to
// the manifest that says which (name, version, context) they are registered
// under.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trialstore/internal/schema"
)

//go:embed manifest.yaml
var defaultManifest []byte

var types = map[string]func() schema.Type{
	"company/legacy":   func() schema.Type { return schema.NewStructType[LegacyCompany]("LegacyCompany") },
	"company/enhanced": func() schema.Type { return schema.NewStructType[EnhancedCompany]("EnhancedCompany") },
	"trial/legacy":     func() schema.Type { return schema.NewStructType[LegacyTrial]("LegacyTrial") },
	"trial/enhanced":   func() schema.Type { return schema.NewStructType[EnhancedTrial]("EnhancedTrial") },
}

var ruleSets = map[string]func(now func() time.Time) *schema.RuleSet{
	"company/0.9.0-2.0.0": CompanyLegacyToEnhanced,
	"trial/0.9.0-2.0.0":   TrialLegacyToEnhanced,
}

// Entry is one schema in the manifest.
type Entry struct {
	Name            string         `yaml:"name"`
	Version         schema.Version `yaml:"version"`
	Context         schema.Context `yaml:"context"`
	Type            string         `yaml:"type"`
	ValidFrom       time.Time      `yaml:"valid_from"`
	ValidTo         *time.Time     `yaml:"valid_to"`
	LegacyNamespace bool           `yaml:"legacy_namespace"`
	Migrations      []string       `yaml:"migrations"`
}

// Manifest lists the schemas to register.
type Manifest struct {
	Schemas []Entry `yaml:"schemas"`
}

// DefaultManifest returns the manifest compiled into the binary.
func DefaultManifest() (*Manifest, error) {
	return ParseManifest(defaultManifest)
}

// LoadManifest reads a manifest file, or the compiled one when path is empty.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return DefaultManifest()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes raw and checks every type and rule set key against the
// compiled tables.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding schema manifest: %w", err)
	}
	var errs []error
	for i, e := range m.Schemas {
		if _, ok := types[e.Type]; !ok {
			errs = append(errs, fmt.Errorf("%s@%s: unknown type %q", e.Name, e.Version, e.Type))
		}
		if e.Context == "" {
			errs = append(errs, fmt.Errorf("%s@%s: context is required", e.Name, e.Version))
		} else if c, err := schema.ParseContext(string(e.Context)); err != nil {
			errs = append(errs, fmt.Errorf("%s@%s: %w", e.Name, e.Version, err))
		} else {
			m.Schemas[i].Context = c
		}
		for _, key := range e.Migrations {
			if _, ok := ruleSets[key]; !ok {
				errs = append(errs, fmt.Errorf("%s@%s: unknown rule set %q", e.Name, e.Version, key))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// Catalog resolves manifest entries into registrations. It implements
// schema.Catalog.
type Catalog struct {
	manifest *Manifest
	now      func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock sets the time source migration rules stamp metadata with.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

func New(m *Manifest, opts ...Option) *Catalog {
	c := &Catalog{manifest: m, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the registration for name@version.
func (c *Catalog) Resolve(name string, version schema.Version) (schema.Registration, bool) {
	for _, e := range c.manifest.Schemas {
		if e.Name == name && e.Version == version {
			return c.registration(e), true
		}
	}
	return schema.Registration{}, false
}

func (c *Catalog) registration(e Entry) schema.Registration {
	reg := schema.Registration{
		Name:      e.Name,
		Type:      types[e.Type](),
		Version:   e.Version,
		Context:   e.Context,
		ValidFrom: e.ValidFrom,
		ValidTo:   e.ValidTo,
	}
	for _, key := range e.Migrations {
		reg.Rules = append(reg.Rules, ruleSets[key](c.now))
	}
	return reg
}

// Bootstrap registers every manifest entry with reg and returns the
// definitions it added. Entries already present are left alone so Bootstrap
// can follow Rehydrate.
func (c *Catalog) Bootstrap(ctx context.Context, reg *schema.Registry) ([]*schema.Definition, error) {
	var added []*schema.Definition
	for _, e := range c.manifest.Schemas {
		def, err := reg.GetSchema(e.Name, schema.ForVersion(e.Version))
		if err != nil {
			if def, err = reg.Register(ctx, c.registration(e)); err != nil {
				return added, fmt.Errorf("registering %s@%s: %w", e.Name, e.Version, err)
			}
			added = append(added, def)
		}
		if e.LegacyNamespace {
			if err := reg.RegisterLegacy(e.Name, def.Type); err != nil {
				return added, err
			}
		}
	}
	return added, nil
}
