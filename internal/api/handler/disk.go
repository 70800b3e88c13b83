package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcdisk/internal/api/schema"
	"github.com/faciam-dev/gcdisk/internal/disk"
	"github.com/faciam-dev/gcdisk/internal/paging"
	"github.com/faciam-dev/gcdisk/internal/rbac"
	sm "github.com/faciam-dev/gcdisk/internal/server/middleware"
	"github.com/faciam-dev/gcdisk/pkg/fields"
)

// DiskService is the part of disk.Service the handlers use.
type DiskService interface {
	ListTypes(ctx context.Context, search string) ([]disk.DiskType, error)
	Type(ctx context.Context, code string) (disk.DiskType, error)
	Form(t disk.DiskType) ([]fields.FormField, error)
	Search(ctx context.Context, q disk.Search) ([]disk.Disk, paging.Meta, error)
	Get(ctx context.Context, id string) (disk.Disk, error)
	Create(ctx context.Context, actor string, in disk.CreateInput) (disk.Disk, error)
	Update(ctx context.Context, actor, id string, in disk.UpdateInput) (disk.Disk, error)
	Delete(ctx context.Context, actor, id string) error
	RefreshUsage(ctx context.Context, id string) (disk.Disk, error)
}

// DiskHandler provides the disk and disk type endpoints.
type DiskHandler struct {
	Service DiskService
}

type listDiskTypesInput struct {
	Search string `query:"search" doc:"Matches name or code"`
}

type listDiskTypesOutput struct {
	Body struct {
		Data []schema.DiskType `json:"data"`
	}
}

type diskTypeInput struct {
	Code string `path:"code"`
}

type diskTypeOutput struct {
	Body schema.DiskTypeDetail
}

type listDisksInput struct {
	Name string `query:"name"`
	Type string `query:"type" doc:"Disk type code"`
	schema.ListParams
}

type listDisksOutput struct {
	Body struct {
		Data []schema.DiskListItem `json:"data"`
		Meta paging.Meta           `json:"meta"`
	}
}

type diskPath struct {
	UUID string `path:"uuid"`
}

type createDiskInput struct {
	Body schema.DiskCreate
}

type updateDiskInput struct {
	UUID string `path:"uuid"`
	Body schema.DiskUpdate
}

type diskOutput struct {
	Body schema.Disk
}

// RegisterDisk registers the disk and disk type endpoints on api.
func RegisterDisk(api huma.API, h *DiskHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "listDiskTypes",
		Method:      http.MethodGet,
		Path:        "/v1/disk-types",
		Summary:     "List disk types",
		Tags:        []string{"Disks"},
	}, h.listTypes)

	huma.Register(api, huma.Operation{
		OperationID: "getDiskType",
		Method:      http.MethodGet,
		Path:        "/v1/disk-types/{code}",
		Summary:     "Get disk type with form widgets",
		Tags:        []string{"Disks"},
	}, h.getType)

	huma.Register(api, huma.Operation{
		OperationID: "listDisks",
		Method:      http.MethodGet,
		Path:        "/v1/disks",
		Summary:     "Search disks",
		Tags:        []string{"Disks"},
		Metadata:    sm.Require(rbac.DiskPolicy.MustPermission(rbac.ViewAny)),
	}, h.list)

	huma.Register(api, huma.Operation{
		OperationID:   "createDisk",
		Method:        http.MethodPost,
		Path:          "/v1/disks",
		Summary:       "Create disk",
		Tags:          []string{"Disks"},
		DefaultStatus: http.StatusCreated,
		Metadata:      sm.Require(rbac.DiskPolicy.MustPermission(rbac.Create)),
	}, h.create)

	huma.Register(api, huma.Operation{
		OperationID: "getDisk",
		Method:      http.MethodGet,
		Path:        "/v1/disks/{uuid}",
		Summary:     "Get disk",
		Tags:        []string{"Disks"},
		Metadata:    sm.Require(rbac.DiskPolicy.MustPermission(rbac.View)),
	}, h.get)

	huma.Register(api, huma.Operation{
		OperationID: "updateDisk",
		Method:      http.MethodPut,
		Path:        "/v1/disks/{uuid}",
		Summary:     "Update disk",
		Tags:        []string{"Disks"},
		Metadata:    sm.Require(rbac.DiskPolicy.MustPermission(rbac.Update)),
	}, h.update)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteDisk",
		Method:        http.MethodDelete,
		Path:          "/v1/disks/{uuid}",
		Summary:       "Delete disk",
		Tags:          []string{"Disks"},
		DefaultStatus: http.StatusNoContent,
		Metadata:      sm.Require(rbac.DiskPolicy.MustPermission(rbac.Delete)),
	}, h.delete)

	huma.Register(api, huma.Operation{
		OperationID: "refreshDiskUsage",
		Method:      http.MethodPost,
		Path:        "/v1/disks/{uuid}/refresh-usage",
		Summary:     "Measure disk usage on its backend",
		Tags:        []string{"Disks"},
		Metadata:    sm.Require(rbac.DiskPolicy.MustPermission(rbac.Update)),
	}, h.refresh)
}

func toTypeSchema(t disk.DiskType) schema.DiskType {
	return schema.DiskType{Code: t.Code, Name: t.Name, Driver: t.Driver, DisksCount: t.DisksCount, Fields: t.Fields}
}

func toDiskSchema(d disk.Disk) schema.Disk {
	cfg := d.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return schema.Disk{UUID: d.UUID, Name: d.Name, Type: d.Type, Config: cfg, Size: d.Size, Used: d.Used, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

func (h *DiskHandler) listTypes(ctx context.Context, in *listDiskTypesInput) (*listDiskTypesOutput, error) {
	types, err := h.Service.ListTypes(ctx, in.Search)
	if err != nil {
		return nil, err
	}
	out := &listDiskTypesOutput{}
	out.Body.Data = make([]schema.DiskType, 0, len(types))
	for _, t := range types {
		out.Body.Data = append(out.Body.Data, toTypeSchema(t))
	}
	return out, nil
}

func (h *DiskHandler) getType(ctx context.Context, in *diskTypeInput) (*diskTypeOutput, error) {
	t, err := h.Service.Type(ctx, in.Code)
	if err != nil {
		return nil, mapErr(err)
	}
	form, err := h.Service.Form(t)
	if err != nil {
		return nil, err
	}
	rules, err := t.ValidationRules()
	if err != nil {
		return nil, err
	}
	return &diskTypeOutput{Body: schema.DiskTypeDetail{DiskType: toTypeSchema(t), Rules: rules, Widgets: form}}, nil
}

func (h *DiskHandler) list(ctx context.Context, in *listDisksInput) (*listDisksOutput, error) {
	disks, meta, err := h.Service.Search(ctx, disk.Search{
		Name: in.Name,
		Type: in.Type,
		Params: paging.Params{
			Page:      in.Page,
			PerPage:   in.PerPage,
			SortBy:    in.SortBy,
			SortOrder: in.SortOrder,
		},
	})
	if err != nil {
		return nil, err
	}
	out := &listDisksOutput{}
	out.Body.Data = make([]schema.DiskListItem, 0, len(disks))
	for _, d := range disks {
		out.Body.Data = append(out.Body.Data, schema.DiskListItem{UUID: d.UUID, Name: d.Name, Type: d.Type, Size: d.Size, Used: d.Used})
	}
	out.Body.Meta = meta
	return out, nil
}

func (h *DiskHandler) create(ctx context.Context, in *createDiskInput) (*diskOutput, error) {
	d, err := h.Service.Create(ctx, sm.UserFromContext(ctx), disk.CreateInput{
		Name:   in.Body.Name,
		Type:   in.Body.Type,
		Config: in.Body.Config,
		Size:   in.Body.Size,
		Used:   in.Body.Used,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &diskOutput{Body: toDiskSchema(d)}, nil
}

func (h *DiskHandler) get(ctx context.Context, in *diskPath) (*diskOutput, error) {
	d, err := h.Service.Get(ctx, in.UUID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &diskOutput{Body: toDiskSchema(d)}, nil
}

func (h *DiskHandler) update(ctx context.Context, in *updateDiskInput) (*diskOutput, error) {
	d, err := h.Service.Update(ctx, sm.UserFromContext(ctx), in.UUID, disk.UpdateInput{
		Name:   in.Body.Name,
		Type:   in.Body.Type,
		Config: in.Body.Config,
		Size:   in.Body.Size,
		Used:   in.Body.Used,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &diskOutput{Body: toDiskSchema(d)}, nil
}

func (h *DiskHandler) delete(ctx context.Context, in *diskPath) (*struct{}, error) {
	if err := h.Service.Delete(ctx, sm.UserFromContext(ctx), in.UUID); err != nil {
		return nil, mapErr(err)
	}
	return nil, nil
}

func (h *DiskHandler) refresh(ctx context.Context, in *diskPath) (*diskOutput, error) {
	d, err := h.Service.RefreshUsage(ctx, in.UUID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &diskOutput{Body: toDiskSchema(d)}, nil
}
