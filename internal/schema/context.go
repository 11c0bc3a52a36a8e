package schema

import (
	"fmt"
	"strings"
)

// Context is a deployment flavor of an entity's shape. It is not a tenant.
type Context string

const (
	ContextLegacy   Context = "legacy"
	ContextEnhanced Context = "enhanced"
	ContextFuture   Context = "future"
	ContextCustom   Context = "custom"
	ContextCurrent  Context = "current"
)

// DefaultContext is active until something flips it.
const DefaultContext = ContextCurrent

var allContexts = []Context{ContextLegacy, ContextEnhanced, ContextFuture, ContextCustom, ContextCurrent}

// Contexts lists every known context.
func Contexts() []Context {
	return append([]Context(nil), allContexts...)
}

func (c Context) IsValid() bool {
	for _, known := range allContexts {
		if c == known {
			return true
		}
	}
	return false
}

func (c Context) String() string { return string(c) }

// ParseContext is case-insensitive and rejects anything outside the enum.
func ParseContext(s string) (Context, error) {
	c := Context(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidContext, s)
	}
	return c, nil
}
