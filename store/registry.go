package store

import (
	"context"
	"fmt"
)

// Factory builds a Store from a configuration map.
type Factory func(context.Context, map[string]interface{}) (Store, error)

var registry = make(map[string]Factory)

// Register associates a factory with a backend key.
// Backends call it from init.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create builds a Store of the registered type `key`.
func Create(ctx context.Context, key string, conf map[string]interface{}) (Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}
