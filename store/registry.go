// Package store provides a registry of block-store backend factories.
//
// Backends register themselves in their init functions,
// so importing a backend package
// (usually with a blank import)
// makes its type name available to Create.
package store

import (
	"context"
	"fmt"

	"github.com/perrin/gbs/roots"
)

// Factory produces a backend from its JSON-derived configuration.
type Factory func(context.Context, map[string]interface{}) (roots.Store, error)

var registry = make(map[string]Factory)

// Register associates a backend type name with its factory.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create builds the backend named by key from conf.
func Create(ctx context.Context, key string, conf map[string]interface{}) (roots.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}
