package schema

import (
	"time"

	"github.com/faciam-dev/gcdisk/pkg/fields"
)

// DiskType is a disk type with its field definitions.
type DiskType struct {
	Code       string              `json:"code"`
	Name       string              `json:"name"`
	Driver     string              `json:"driver"`
	DisksCount int64               `json:"disksCount"`
	Fields     []fields.Definition `json:"fields"`
}

// DiskTypeDetail adds the rendered form widgets of the type.
type DiskTypeDetail struct {
	DiskType
	Rules   map[string][]string `json:"rules"`
	Widgets []fields.FormField  `json:"widgets"`
}

// DiskListItem is a disk as listed. Configs are only returned one disk at a
// time.
type DiskListItem struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Used int64  `json:"used"`
}

// Disk is a single disk with its decrypted config.
type Disk struct {
	UUID      string         `json:"uuid"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Config    map[string]any `json:"config"`
	Size      int64          `json:"size"`
	Used      int64          `json:"used"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// DiskCreate is validated by the disk service so that config errors and
// field errors share one format.
type DiskCreate struct {
	Name   string         `json:"name,omitempty" doc:"3 to 100 characters"`
	Type   string         `json:"type,omitempty" doc:"Disk type code"`
	Config map[string]any `json:"config,omitempty" doc:"Values for the disk type's fields"`
	Size   int64          `json:"size,omitempty" doc:"Capacity in bytes"`
	Used   int64          `json:"used,omitempty" doc:"Used bytes, at most size"`
}

// DiskUpdate is a partial update. Absent fields keep their stored value.
type DiskUpdate struct {
	Name   *string        `json:"name,omitempty"`
	Type   *string        `json:"type,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Size   *int64         `json:"size,omitempty"`
	Used   *int64         `json:"used,omitempty"`
}

// ListParams are the shared list query parameters.
type ListParams struct {
	Page      int    `query:"page" minimum:"1" default:"1"`
	PerPage   int    `query:"perPage" minimum:"1" maximum:"50" default:"15"`
	SortBy    string `query:"sortBy" doc:"Column in camelCase or snake_case"`
	SortOrder string `query:"sortOrder" enum:"asc,desc" default:"asc"`
}
