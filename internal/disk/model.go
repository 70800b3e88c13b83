// Package disk manages disk types and the disks configured from them.
package disk

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/faciam-dev/gcdisk/internal/paging"
	"github.com/faciam-dev/gcdisk/pkg/fields"
)

var (
	// ErrNotFound is returned when a disk does not exist or was deleted.
	ErrNotFound = errors.New("disk not found")
	// ErrTypeNotFound is returned for unknown disk type codes.
	ErrTypeNotFound = errors.New("disk type not found")
)

// DiskType describes a storage backend and the config fields its disks need.
type DiskType struct {
	ID         int64               `db:"id" json:"-"`
	Code       string              `db:"code" json:"code"`
	Name       string              `db:"name" json:"name"`
	Driver     string              `db:"driver" json:"driver"`
	RawFields  string              `db:"fields" json:"-"`
	DisksCount int64               `db:"disks_count" json:"disksCount"`
	Fields     []fields.Definition `db:"-" json:"fields"`
}

// decode fills Fields from the stored JSON column.
func (t *DiskType) decode() error {
	defs, err := fields.DecodeJSON([]byte(t.RawFields))
	if err != nil {
		return err
	}
	t.Fields = defs
	return nil
}

// Schema builds the field schema of the type.
func (t DiskType) Schema() (fields.Schema, error) {
	return fields.NewSchema(t.Fields)
}

// ValidationRules returns the rule map config values are checked against.
func (t DiskType) ValidationRules() (map[string][]string, error) {
	s, err := t.Schema()
	if err != nil {
		return nil, err
	}
	return s.Rules(), nil
}

// Form returns the widget descriptors of the type's config fields.
func (t DiskType) Form() ([]fields.FormField, error) {
	s, err := t.Schema()
	if err != nil {
		return nil, err
	}
	return s.Form(), nil
}

// Disk is a configured instance of a disk type.
type Disk struct {
	ID         int64          `db:"id" json:"-"`
	UUID       string         `db:"uuid" json:"uuid"`
	DiskTypeID int64          `db:"disk_type_id" json:"-"`
	Type       string         `db:"type_code" json:"type"`
	Driver     string         `db:"driver" json:"-"`
	Name       string         `db:"name" json:"name"`
	RawConfig  string         `db:"config" json:"-"`
	Config     map[string]any `db:"-" json:"config"`
	Size       int64          `db:"size" json:"size"`
	Used       int64          `db:"used" json:"used"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

func (d *Disk) decode() error {
	d.Config = map[string]any{}
	if d.RawConfig == "" {
		return nil
	}
	return json.Unmarshal([]byte(d.RawConfig), &d.Config)
}

// Search filters disk listings.
type Search struct {
	Name string
	Type string
	paging.Params
}

// Sortable lists the columns disks can be ordered by.
var Sortable = []string{"name", "size", "used", "created_at", "updated_at"}

// CreateInput holds the values of a new disk.
type CreateInput struct {
	Name   string
	Type   string
	Config map[string]any
	Size   int64
	Used   int64
}

// UpdateInput holds optional changes to a disk. Config keys are merged into
// the stored config unless the type changes, in which case Config replaces
// it.
type UpdateInput struct {
	Name   *string
	Type   *string
	Config map[string]any
	Size   *int64
	Used   *int64
}
