package validation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// RuleFunc checks a single present, non-null value. param is the text after
// the colon of the rule token, or "" when the token has none.
type RuleFunc func(v any, param string) error

var (
	mu    sync.RWMutex
	rules = make(map[string]RuleFunc)
	// ErrRuleExists is returned by Register when a rule with the same name
	// has already been registered.
	ErrRuleExists = errors.New("rule already registered")
)

// Register adds a custom rule. Built-in rule names cannot be overridden.
func Register(name string, fn RuleFunc) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := builtins[name]; ok {
		return fmt.Errorf("%w: %s", ErrRuleExists, name)
	}
	if _, ok := rules[name]; ok {
		return fmt.Errorf("%w: %s", ErrRuleExists, name)
	}
	rules[name] = fn
	return nil
}

// Lookup returns the rule registered under name, built-ins included.
func Lookup(name string) (RuleFunc, bool) {
	if fn, ok := builtins[name]; ok {
		return fn, true
	}
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := rules[name]
	return fn, ok
}

// Registered returns the names of all rules, sorted.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(builtins)+len(rules))
	for n := range builtins {
		names = append(names, n)
	}
	for n := range rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
