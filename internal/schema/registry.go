// Package schema is the schema version and migration engine: a registry of
// concurrently valid shapes of the same logical entity, keyed by name, version
// and context, plus the migration edges between versions.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trialstore/internal/schema/metrics"
	"trialstore/pkg/platform/circuit"
)

const legacySuffix = "_legacy"

// Mirror persists the (name, version) pointer of every registered schema. It
// is advisory; the registry never reads it back except in Rehydrate.
type Mirror interface {
	SaveVersion(ctx context.Context, name string, version Version) error
	LoadVersions(ctx context.Context) ([]VersionPointer, error)
}

// VersionPointer is the only registry state that survives a restart.
type VersionPointer struct {
	Name    string
	Version Version
}

// Catalog maps a mirrored pointer back to a full registration. It is an
// explicit table built at compile time.
type Catalog interface {
	Resolve(name string, version Version) (Registration, bool)
}

type edgeKey struct {
	from Version
	to   Version
}

// snapshot is immutable once published.
type snapshot struct {
	active Context
	defs   map[string][]*Definition // ascending by version
	edges  map[string]map[edgeKey]*RuleSet
	legacy map[string]Type
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		active: s.active,
		defs:   make(map[string][]*Definition, len(s.defs)),
		edges:  make(map[string]map[edgeKey]*RuleSet, len(s.edges)),
		legacy: make(map[string]Type, len(s.legacy)),
	}
	for k, v := range s.defs {
		next.defs[k] = v
	}
	for k, v := range s.edges {
		next.edges[k] = v
	}
	for k, v := range s.legacy {
		next.legacy[k] = v
	}
	return next
}

func (s *snapshot) withEdge(rs *RuleSet) {
	inner := make(map[edgeKey]*RuleSet, len(s.edges[rs.Schema])+1)
	for k, v := range s.edges[rs.Schema] {
		inner[k] = v
	}
	inner[edgeKey{from: rs.From, to: rs.To}] = rs
	s.edges[rs.Schema] = inner
}

func (s *snapshot) known(name string) bool {
	return len(s.defs[name]) > 0 || len(s.edges[name]) > 0
}

// Registry is safe for concurrent use. Readers load one immutable snapshot per
// call; writers serialize on mu and publish a modified copy.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	mirror  Mirror
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

func WithMirror(m Mirror) Option {
	return func(r *Registry) { r.mirror = m }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Registry) { r.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithClock sets the time source used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithActiveContext overrides DefaultContext as the initial active context.
func WithActiveContext(c Context) Option {
	return func(r *Registry) {
		if c.IsValid() {
			s := r.snap.Load().clone()
			s.active = c
			r.snap.Store(s)
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		logger: slog.Default(),
		tracer: otel.Tracer("trialstore/schema"),
		now:    time.Now,
	}
	r.snap.Store(emptySnapshot(DefaultContext))
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("schema-mirror", circuit.WithFailureThreshold(3))
	}
	return r
}

func emptySnapshot(active Context) *snapshot {
	return &snapshot{
		active: active,
		defs:   map[string][]*Definition{},
		edges:  map[string]map[edgeKey]*RuleSet{},
		legacy: map[string]Type{},
	}
}

func (r *Registry) publish(mutate func(s *snapshot) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.snap.Load().clone()
	if err := mutate(next); err != nil {
		return err
	}
	r.snap.Store(next)
	return nil
}

// Register adds a definition under reg.Name and attaches its outgoing edges.
// The version pointer is then mirrored; mirror failures are logged only.
func (r *Registry) Register(ctx context.Context, reg Registration) (*Definition, error) {
	if reg.ValidFrom.IsZero() {
		reg.ValidFrom = r.now()
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	rules := make([]*RuleSet, 0, len(reg.Rules))
	for _, rs := range reg.Rules {
		cp := *rs
		if cp.Schema == "" {
			cp.Schema = reg.Name
		}
		if cp.Schema != reg.Name {
			return nil, fmt.Errorf("%w: rule set %q belongs to %q", ErrInvalidRegistration, cp.Name, cp.Schema)
		}
		if err := cp.validate(); err != nil {
			return nil, err
		}
		rules = append(rules, &cp)
	}
	def := &Definition{
		Name:      reg.Name,
		Version:   reg.Version,
		Type:      reg.Type,
		Context:   reg.Context,
		ValidFrom: reg.ValidFrom,
		ValidTo:   reg.ValidTo,
		Rules:     rules,
	}

	var highest Version
	err := r.publish(func(s *snapshot) error {
		current := s.defs[def.Name]
		for _, existing := range current {
			if existing.Version == def.Version {
				return fmt.Errorf("%w: %s@%s", ErrDuplicateVersion, def.Name, def.Version)
			}
		}
		next := make([]*Definition, 0, len(current)+1)
		next = append(next, current...)
		next = append(next, def)
		sort.Slice(next, func(i, j int) bool { return next[i].Version.Less(next[j].Version) })
		s.defs[def.Name] = next
		highest = next[len(next)-1].Version
		for _, rs := range rules {
			s.withEdge(rs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.IncRegistration(def.Name)
	}
	r.logger.InfoContext(ctx, "schema registered",
		"schema", def.Name,
		"version", def.Version.String(),
		"context", string(def.Context),
		"rule_sets", len(rules),
	)
	r.mirrorVersion(ctx, def.Name, highest)
	return def, nil
}

func (r *Registry) mirrorVersion(ctx context.Context, name string, v Version) {
	if r.mirror == nil {
		return
	}
	if !r.breaker.Allow() {
		if r.metrics != nil {
			r.metrics.IncMirrorSkipped()
		}
		r.logger.WarnContext(ctx, "schema mirror circuit open, skipping write",
			"schema", name,
			"version", v.String(),
		)
		return
	}

	ctx, span := r.tracer.Start(ctx, "schema.mirror.save",
		trace.WithAttributes(
			attribute.String("schema.name", name),
			attribute.String("schema.version", v.String()),
		))
	defer span.End()

	if err := r.mirror.SaveVersion(ctx, name, v); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mirror write failed")
		_, change := r.breaker.RecordFailure()
		if r.metrics != nil {
			r.metrics.IncMirrorFailure()
		}
		r.logger.WarnContext(ctx, "failed to mirror schema version",
			"schema", name,
			"version", v.String(),
			"circuit_opened", change.Opened,
			"error", err,
		)
		return
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "schema mirror circuit closed", "schema", name)
	}
}

// AddMigration registers (or overwrites) the edge rs.From -> rs.To for rs.Schema.
func (r *Registry) AddMigration(rs *RuleSet) error {
	if rs == nil {
		return fmt.Errorf("%w: nil rule set", ErrInvalidRuleSet)
	}
	if err := rs.validate(); err != nil {
		return err
	}
	cp := *rs
	return r.publish(func(s *snapshot) error {
		s.withEdge(&cp)
		return nil
	})
}

// RegisterLegacy stores t in the legacy namespace under name + "_legacy",
// outside version and context resolution.
func (r *Registry) RegisterLegacy(name string, t Type) error {
	if name == "" || t == nil {
		return fmt.Errorf("%w: legacy schema needs a name and a type", ErrInvalidRegistration)
	}
	return r.publish(func(s *snapshot) error {
		s.legacy[name+legacySuffix] = t
		return nil
	})
}

// LegacyType returns the type registered with RegisterLegacy.
func (r *Registry) LegacyType(name string) (Type, bool) {
	t, ok := r.snap.Load().legacy[name+legacySuffix]
	return t, ok
}

// lookup collects the optional arguments of GetSchema.
type lookup struct {
	context Context
	version *Version
	at      *time.Time
}

// LookupOption narrows GetSchema.
type LookupOption func(*lookup)

// ForContext resolves against c instead of the active context.
func ForContext(c Context) LookupOption {
	return func(l *lookup) { l.context = c }
}

// ForVersion requests an exact version regardless of context.
func ForVersion(v Version) LookupOption {
	return func(l *lookup) { l.version = &v }
}

// At evaluates validity windows at t instead of now.
func At(t time.Time) LookupOption {
	return func(l *lookup) { l.at = &t }
}

// GetSchema resolves a definition. With ForVersion it is an exact lookup.
// Otherwise it returns the highest version whose context matches and whose
// validity window contains now.
func (r *Registry) GetSchema(name string, opts ...LookupOption) (*Definition, error) {
	return r.resolve(r.snap.Load(), name, opts)
}

func (r *Registry) resolve(s *snapshot, name string, opts []LookupOption) (*Definition, error) {
	var q lookup
	for _, opt := range opts {
		opt(&q)
	}
	defs := s.defs[name]
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSchemaNotFound, name)
	}
	if q.version != nil {
		for _, d := range defs {
			if d.Version == *q.version {
				return d, nil
			}
		}
		return nil, fmt.Errorf("%w: %q version %s", ErrSchemaNotFound, name, q.version)
	}
	c := q.context
	if c == "" {
		c = s.active
	}
	at := r.now()
	if q.at != nil {
		at = *q.at
	}
	for i := len(defs) - 1; i >= 0; i-- {
		if defs[i].Context == c && defs[i].ValidAt(at) {
			return defs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q in context %s", ErrNoValidSchema, name, c)
}

// ActiveContext is the process-wide default used when no context is given.
func (r *Registry) ActiveContext() Context {
	return r.snap.Load().active
}

// SetActiveContext swaps the process-wide default. In-flight lookups keep the
// snapshot they already loaded.
func (r *Registry) SetActiveContext(c Context) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidContext, c)
	}
	err := r.publish(func(s *snapshot) error {
		s.active = c
		return nil
	})
	if err == nil && r.metrics != nil {
		r.metrics.IncContextFlip(string(c))
	}
	return err
}

// Check resolves a schema and constructs data against it. Resolution errors
// are returned as errors; construction outcomes are carried by the Result.
func (r *Registry) Check(name string, data Document, opts ...LookupOption) (Result, error) {
	def, err := r.GetSchema(name, opts...)
	if err != nil {
		return Result{}, err
	}
	res := r.CheckDefinition(def, data)
	if res.Status == StatusInternalError {
		r.logger.Error("schema construction failed",
			"schema", def.Name,
			"version", def.Version.String(),
			"error", res.Cause,
		)
	}
	if r.metrics != nil {
		r.metrics.IncValidation(def.Name, string(res.Status))
	}
	return res, nil
}

// CheckDefinition constructs data against one definition.
func (r *Registry) CheckDefinition(def *Definition, data Document) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = InternalError(def, fmt.Errorf("schema type %s panicked: %v", def.Type.Name(), p))
		}
	}()
	value, err := def.Type.Construct(data)
	if err == nil {
		return Valid(def, value)
	}
	var shapeErr *ShapeError
	if errors.As(err, &shapeErr) {
		return Invalid(def, shapeErr.Fields...)
	}
	return InternalError(def, err)
}

// ValidateData reports whether data fits the resolved schema. Every
// construction failure, including a broken schema type, yields false; use
// Check to tell them apart.
func (r *Registry) ValidateData(name string, data Document, opts ...LookupOption) (bool, error) {
	res, err := r.Check(name, data, opts...)
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}

// GetMigrationRules returns the rule sets that take name from one version to
// another. Equal versions need none; otherwise only a direct edge qualifies.
func (r *Registry) GetMigrationRules(name string, from, to Version) ([]*RuleSet, error) {
	return r.migrationRules(r.snap.Load(), name, from, to)
}

func (r *Registry) migrationRules(s *snapshot, name string, from, to Version) ([]*RuleSet, error) {
	if !s.known(name) {
		return nil, fmt.Errorf("%w: %q", ErrSchemaNotFound, name)
	}
	if from == to {
		return []*RuleSet{}, nil
	}
	rs, ok := s.edges[name][edgeKey{from: from, to: to}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s -> %s", ErrMigrationPathNotFound, name, from, to)
	}
	return []*RuleSet{rs}, nil
}

// MigrateData applies the rule sets between from and to to a shallow copy of
// data. The input is never modified.
func (r *Registry) MigrateData(name string, data Document, from, to Version) (out Document, err error) {
	rules, err := r.GetMigrationRules(name, from, to)
	if err != nil {
		r.countMigration(name, "no_path")
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("%w: %s %s -> %s panicked: %v", ErrRuleFailed, name, from, to, p)
		}
		if err != nil {
			r.countMigration(name, "failed")
		}
	}()

	out = data.Clone()
	for _, rs := range rules {
		src := out.Clone()
		if err := rs.apply(src, out); err != nil {
			return nil, err
		}
	}
	if len(rules) > 0 {
		r.countMigration(name, "migrated")
	}
	return out, nil
}

func (r *Registry) countMigration(name, outcome string) {
	if r.metrics != nil {
		r.metrics.IncMigration(name, outcome)
	}
}

// VersionForContext returns the highest registered version of name whose
// context is c, ignoring validity windows.
func (r *Registry) VersionForContext(name string, c Context) (Version, error) {
	defs := r.snap.Load().defs[name]
	if len(defs) == 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrSchemaNotFound, name)
	}
	for i := len(defs) - 1; i >= 0; i-- {
		if defs[i].Context == c {
			return defs[i].Version, nil
		}
	}
	return Version{}, fmt.Errorf("%w: %q has no version in context %s", ErrNoValidSchema, name, c)
}

// SchemaForContext returns the type to read name with in context c. The
// legacy context prefers the legacy namespace when it holds name.
func (r *Registry) SchemaForContext(name string, c Context) (Type, error) {
	if c == ContextLegacy {
		if t, ok := r.LegacyType(name); ok {
			return t, nil
		}
	}
	def, err := r.GetSchema(name, ForContext(c))
	if err != nil {
		return nil, err
	}
	return def.Type, nil
}

// Definitions returns every definition of name in ascending version order.
func (r *Registry) Definitions(name string) ([]*Definition, error) {
	defs := r.snap.Load().defs[name]
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrSchemaNotFound, name)
	}
	return append([]*Definition(nil), defs...), nil
}

// AvailableVersions lists the registered versions of name, ascending.
func (r *Registry) AvailableVersions(name string) ([]Version, error) {
	defs, err := r.Definitions(name)
	if err != nil {
		return nil, err
	}
	out := make([]Version, len(defs))
	for i, d := range defs {
		out[i] = d.Version
	}
	return out, nil
}

// ListRegistered maps every registered name to its versions.
func (r *Registry) ListRegistered() map[string][]Version {
	s := r.snap.Load()
	out := make(map[string][]Version, len(s.defs))
	for name, defs := range s.defs {
		versions := make([]Version, len(defs))
		for i, d := range defs {
			versions[i] = d.Version
		}
		out[name] = versions
	}
	return out
}

// Names returns the registered schema names, sorted.
func (r *Registry) Names() []string {
	return r.snap.Load().names()
}

func (s *snapshot) names() []string {
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fingerprint hashes the registered (name, version, context) set. It changes
// whenever a definition is added or removed.
func (r *Registry) Fingerprint() uint64 {
	s := r.snap.Load()
	h := xxhash.New()
	for _, name := range s.names() {
		for _, d := range s.defs[name] {
			_, _ = h.WriteString(d.String())
			_, _ = h.WriteString("\n")
		}
	}
	return h.Sum64()
}

// Unregister drops every definition, edge and legacy type of name.
func (r *Registry) Unregister(name string) {
	_ = r.publish(func(s *snapshot) error {
		delete(s.defs, name)
		delete(s.edges, name)
		delete(s.legacy, name+legacySuffix)
		return nil
	})
}

// Reset drops everything and restores DefaultContext.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Store(emptySnapshot(DefaultContext))
}

// Rehydrate loads the mirrored version pointers and registers each one that is
// not already known from cat. A pointer cat cannot resolve is an error; the
// remaining pointers are still processed.
func (r *Registry) Rehydrate(ctx context.Context, cat Catalog) error {
	if r.mirror == nil {
		return nil
	}
	pointers, err := r.mirror.LoadVersions(ctx)
	if err != nil {
		return fmt.Errorf("loading schema versions: %w", err)
	}
	var errs []error
	for _, p := range pointers {
		if _, err := r.GetSchema(p.Name, ForVersion(p.Version)); err == nil {
			continue
		}
		reg, ok := cat.Resolve(p.Name, p.Version)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s@%s", ErrUnresolvableType, p.Name, p.Version))
			continue
		}
		if _, err := r.Register(ctx, reg); err != nil {
			errs = append(errs, fmt.Errorf("rehydrating %s@%s: %w", p.Name, p.Version, err))
		}
	}
	return errors.Join(errs...)
}
