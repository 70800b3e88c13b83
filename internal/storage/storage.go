// Package storage measures how much space a disk occupies on its backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownDriver is returned by Open for drivers without a registered
// factory.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Driver reports usage of one configured disk.
type Driver interface {
	// Usage returns the number of bytes stored.
	Usage(ctx context.Context) (int64, error)
}

// Factory builds a Driver from a decrypted disk config.
type Factory func(ctx context.Context, cfg map[string]any) (Driver, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		"local": newLocal,
		"s3":    newS3,
	}
)

// Register adds or replaces the factory for name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Drivers lists the registered driver names.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Open returns the driver called name configured with cfg.
func Open(ctx context.Context, name string, cfg map[string]any) (Driver, error) {
	mu.RLock()
	f, ok := factories[strings.ToLower(name)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %s)", ErrUnknownDriver, name, strings.Join(Drivers(), ", "))
	}
	return f(ctx, cfg)
}

func str(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
