package disk

import (
	"errors"
	"testing"

	"github.com/faciam-dev/gcdisk/pkg/fields"
)

func TestSchemaCache(t *testing.T) {
	c := NewSchemaCache(nil)
	typ := DiskType{Code: "local", Fields: []fields.Definition{{Name: "root", Type: "string"}}}
	s1, err := c.Schema(typ)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	s2, _ := c.Schema(typ)
	if s1.Len() != 1 || s2.Len() != 1 || c.Len() != 1 {
		t.Fatalf("unexpected cache state")
	}

	typ.Fields = append(typ.Fields, fields.Definition{Name: "quota", Type: "integer"})
	s3, err := c.Schema(typ)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if s3.Len() != 2 {
		t.Fatalf("changed definitions must rebuild the schema")
	}

	c.Invalidate("local")
	if c.Len() != 0 {
		t.Fatalf("Invalidate kept entry")
	}
	_, _ = c.Schema(typ)
	c.Reset()
	if c.Len() != 0 {
		t.Fatalf("Reset kept entries")
	}
}

func TestSchemaCacheInvalid(t *testing.T) {
	c := NewSchemaCache(nil)
	_, err := c.Schema(DiskType{Code: "bad", Fields: []fields.Definition{{Name: "x", Type: "date"}}})
	if !errors.Is(err, fields.ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("invalid schema cached")
	}
}

func TestNilSchemaCache(t *testing.T) {
	var c *SchemaCache
	c.Invalidate("local")
	c.Reset()
	if n := c.Len(); n != 0 {
		t.Fatalf("Len = %d", n)
	}
	s, err := c.Schema(DiskType{Code: "local", Fields: []fields.Definition{{Name: "root", Type: "string"}}})
	if err != nil || s.Len() != 1 {
		t.Fatalf("Schema = %d fields, %v", s.Len(), err)
	}
}

func TestParseTypes(t *testing.T) {
	src := `
- code: Local
  driver: local
  fields:
    - name: root
      type: string
- code: empty
  driver: memory
`
	types, err := ParseTypes([]byte(src))
	if err != nil {
		t.Fatalf("ParseTypes: %v", err)
	}
	if types[0].Code != "local" || types[0].Name != "Local" {
		t.Fatalf("unexpected type: %+v", types[0])
	}
	if types[1].Fields == nil || len(types[1].Fields) != 0 {
		t.Fatalf("fields should be empty, got %#v", types[1].Fields)
	}
	for _, bad := range []string{
		"- driver: local\n",
		"- code: a\n",
		"- code: a\n  driver: x\n- code: A\n  driver: y\n",
	} {
		if _, err := ParseTypes([]byte(bad)); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
