package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Errors maps a field name to the messages of every rule it failed.
type Errors map[string][]string

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e[k], ", "))
	}
	return strings.Join(parts, "; ")
}

// Fields returns the failing field names, sorted.
func (e Errors) Fields() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var builtins = map[string]RuleFunc{
	"string":  checkString,
	"integer": checkInteger,
	"boolean": checkBoolean,
	"email":   checkEmail,
	"url":     checkURL,
}

// Validate checks input against a rule map as produced by
// fields.Schema.Rules. It returns nil when every field passes.
func Validate(ruleMap map[string][]string, input map[string]any) error {
	errs := Errors{}
	for name, tokens := range ruleMap {
		if msgs := Field(name, tokens, input[name]); len(msgs) > 0 {
			errs[name] = msgs
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Field applies rule tokens to a single value and returns the failure
// messages. Absent, null and empty string values only fail "required".
func Field(name string, tokens []string, v any) []string {
	attr := strings.ReplaceAll(name, "_", " ")
	if empty(v) {
		for _, t := range tokens {
			if t == "required" {
				return []string{fmt.Sprintf("The %s field is required.", attr)}
			}
		}
		return nil
	}

	numeric := false
	for _, t := range tokens {
		if t == "integer" {
			numeric = true
		}
	}

	var msgs []string
	for _, t := range tokens {
		rule, param, _ := strings.Cut(t, ":")
		var err error
		switch rule {
		case "required", "nullable":
			continue
		case "min":
			err = checkBound(v, param, numeric, false)
		case "max":
			err = checkBound(v, param, numeric, true)
		default:
			fn, ok := Lookup(rule)
			if !ok {
				err = fmt.Errorf("unsupported rule %q", rule)
				break
			}
			err = fn(v, param)
		}
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("The %s field %s.", attr, err.Error()))
		}
	}
	return msgs
}

func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

func checkString(v any, _ string) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("must be a string")
	}
	return nil
}

func checkInteger(v any, _ string) error {
	if _, ok := toInt(v); !ok {
		return fmt.Errorf("must be an integer")
	}
	return nil
}

func checkBoolean(v any, _ string) error {
	switch x := v.(type) {
	case bool:
		return nil
	case string:
		if x == "0" || x == "1" {
			return nil
		}
	default:
		if n, ok := toInt(v); ok && (n == 0 || n == 1) {
			return nil
		}
	}
	return fmt.Errorf("must be true or false")
}

func checkEmail(v any, _ string) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("must be a valid email address")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("must be a valid email address")
	}
	return nil
}

func checkURL(v any, _ string) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("must be a valid URL")
	}
	u, err := url.ParseRequestURI(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a valid URL")
	}
	return nil
}

// checkBound compares integers by value and everything else by length in
// runes.
func checkBound(v any, param string, numeric, upper bool) error {
	limit, err := strconv.Atoi(param)
	if err != nil {
		return fmt.Errorf("has an invalid bound %q", param)
	}
	if numeric {
		n, ok := toInt(v)
		if !ok {
			return nil
		}
		if upper && n > int64(limit) {
			return fmt.Errorf("must not be greater than %d", limit)
		}
		if !upper && n < int64(limit) {
			return fmt.Errorf("must be at least %d", limit)
		}
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	l := utf8.RuneCountInString(s)
	if upper && l > limit {
		return fmt.Errorf("must not be greater than %d characters", limit)
	}
	if !upper && l < limit {
		return fmt.Errorf("must be at least %d characters", limit)
	}
	return nil
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}
