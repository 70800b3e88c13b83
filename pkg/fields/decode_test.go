package fields

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseJSON(t *testing.T) {
	s, err := ParseJSON([]byte(`[{"name":"root","type":"string","label":"Root Path","required":true,"max":500}]`))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	want := []FormField{{Name: "root", Label: "Root Path", Widget: "text", Rules: map[string]any{"required": true, "maxlength": 500}}}
	if diff := cmp.Diff(want, s.Form()); diff != "" {
		t.Fatalf("form mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeJSONEmpty(t *testing.T) {
	for _, in := range []string{"", "null", "  ", "[]"} {
		defs, err := DecodeJSON([]byte(in))
		if err != nil {
			t.Fatalf("DecodeJSON(%q): %v", in, err)
		}
		if defs == nil || len(defs) != 0 {
			t.Fatalf("DecodeJSON(%q) = %#v", in, defs)
		}
	}
}

func TestDecodeJSONInvalid(t *testing.T) {
	if _, err := DecodeJSON([]byte(`{"name":"x"}`)); err == nil {
		t.Fatalf("expected error for object input")
	}
}

func TestParseYAML(t *testing.T) {
	src := `
- name: bucket
  type: string
- name: endpoint
  type: url
  required: false
- name: secret_key
  type: password
`
	s, err := ParseYAML([]byte(src))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	want := map[string][]string{
		"bucket":     {"required", "string"},
		"endpoint":   {"nullable", "url"},
		"secret_key": {"required", "string"},
	}
	if diff := cmp.Diff(want, s.Rules()); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}
	if s.Form()[2].Label != "Secret Key" || s.Form()[2].Widget != "password" {
		t.Fatalf("unexpected form: %+v", s.Form()[2])
	}
}

func TestEncodeJSON(t *testing.T) {
	b, err := EncodeJSON(nil)
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	if string(b) != "[]" {
		t.Fatalf("got %s", b)
	}
	b, err = EncodeJSON([]Definition{{Name: "root", Type: "string", Max: ptr(500)}})
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	if string(b) != `[{"name":"root","type":"string","max":500}]` {
		t.Fatalf("got %s", b)
	}
}
