package disk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
	"github.com/google/uuid"

	"github.com/faciam-dev/gcdisk/internal/metrics"
	"github.com/faciam-dev/gcdisk/internal/paging"
	"github.com/faciam-dev/gcdisk/pkg/fields"
	"github.com/faciam-dev/gcdisk/pkg/util"
)

// Repo persists disk types and disks.
type Repo struct {
	DB          *sql.DB
	Driver      string
	Dialect     ormdriver.Dialect
	TablePrefix string
}

func (r *Repo) t(name string) string { return r.TablePrefix + name }

func (r *Repo) dialect() ormdriver.Dialect {
	if r.Dialect != nil {
		return r.Dialect
	}
	return util.DialectFromDriver(r.Driver)
}

func (r *Repo) ready() error {
	if r == nil || r.DB == nil {
		return fmt.Errorf("repo not initialized")
	}
	return nil
}

func (r *Repo) typeQuery() *query.Query {
	tbl := r.t("disk_types")
	return query.New(r.DB, tbl, r.dialect()).
		Select("id", "code", "name", "driver", "fields").
		SelectRaw(fmt.Sprintf("(SELECT COUNT(*) FROM %s d WHERE d.disk_type_id = %s.id AND d.deleted_at IS NULL) AS disks_count", r.t("disks"), tbl))
}

// ListTypes returns disk types ordered by name. search matches name or code
// case-insensitively.
func (r *Repo) ListTypes(ctx context.Context, search string) ([]DiskType, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	q := r.typeQuery()
	if search != "" {
		cond := fmt.Sprintf("(%s OR %s)", util.ILike(r.Driver, "name", ":s1"), util.ILike(r.Driver, "code", ":s2"))
		q.WhereRaw(cond, map[string]any{"s1": "%" + search + "%", "s2": "%" + search + "%"})
	}
	q.OrderBy("name", "asc")
	var types []DiskType
	if err := q.WithContext(ctx).Get(&types); err != nil {
		return nil, err
	}
	if types == nil {
		types = []DiskType{}
	}
	for i := range types {
		if err := types[i].decode(); err != nil {
			return nil, fmt.Errorf("disk type %s: %w", types[i].Code, err)
		}
	}
	return types, nil
}

// TypeByCode looks a type up by code, ignoring case.
func (r *Repo) TypeByCode(ctx context.Context, code string) (DiskType, error) {
	if err := r.ready(); err != nil {
		return DiskType{}, err
	}
	var t DiskType
	err := r.typeQuery().
		WhereRaw("LOWER(code) = LOWER(:code)", map[string]any{"code": code}).
		WithContext(ctx).First(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return DiskType{}, fmt.Errorf("%w: %s", ErrTypeNotFound, code)
	}
	if err != nil {
		return DiskType{}, err
	}
	if err := t.decode(); err != nil {
		return DiskType{}, fmt.Errorf("disk type %s: %w", t.Code, err)
	}
	return t, nil
}

// UpsertType inserts t or updates the type with the same code.
func (r *Repo) UpsertType(ctx context.Context, t DiskType) error {
	if err := r.ready(); err != nil {
		return err
	}
	raw, err := fields.EncodeJSON(t.Fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	row := map[string]any{
		"code":       t.Code,
		"name":       t.Name,
		"driver":     t.Driver,
		"fields":     string(raw),
		"created_at": now,
		"updated_at": now,
	}
	_, err = query.New(r.DB, r.t("disk_types"), r.dialect()).WithContext(ctx).
		Upsert([]map[string]any{row}, []string{"code"}, []string{"name", "driver", "fields", "updated_at"})
	return err
}

func (r *Repo) diskQuery() *query.Query {
	tbl := r.t("disks")
	types := r.t("disk_types")
	return query.New(r.DB, tbl, r.dialect()).
		Select("id", "uuid", "disk_type_id", "name", "config", "size", "used", "created_at", "updated_at").
		SelectRaw(fmt.Sprintf("(SELECT code FROM %s dt WHERE dt.id = %s.disk_type_id) AS type_code", types, tbl)).
		SelectRaw(fmt.Sprintf("(SELECT driver FROM %s dt WHERE dt.id = %s.disk_type_id) AS driver", types, tbl)).
		WhereRaw("deleted_at IS NULL", nil)
}

func (r *Repo) applySearch(q *query.Query, s Search) {
	if s.Name != "" {
		q.WhereRaw(util.ILike(r.Driver, "name", ":name"), map[string]any{"name": "%" + s.Name + "%"})
	}
	if s.Type != "" {
		q.WhereRaw(fmt.Sprintf("disk_type_id IN (SELECT id FROM %s WHERE LOWER(code) = LOWER(:type))", r.t("disk_types")),
			map[string]any{"type": s.Type})
	}
}

// Search returns one page of disks and the page metadata.
func (r *Repo) Search(ctx context.Context, s Search) ([]Disk, paging.Meta, error) {
	if err := r.ready(); err != nil {
		return nil, paging.Meta{}, err
	}
	page := paging.Normalize(s.Params, Sortable, "name")
	q := r.diskQuery()
	r.applySearch(q, s)
	q.OrderBy(page.SortBy, page.SortOrder).Limit(page.PerPage).Offset(page.Offset())
	var disks []Disk
	if err := q.WithContext(ctx).Get(&disks); err != nil {
		return nil, paging.Meta{}, err
	}
	if disks == nil {
		disks = []Disk{}
	}
	for i := range disks {
		if err := disks[i].decode(); err != nil {
			return nil, paging.Meta{}, err
		}
	}
	cq := query.New(r.DB, r.t("disks"), r.dialect()).WhereRaw("deleted_at IS NULL", nil)
	r.applySearch(cq, s)
	total, err := cq.WithContext(ctx).Count("*")
	if err != nil {
		return nil, paging.Meta{}, err
	}
	return disks, paging.NewMeta(page, int(total)), nil
}

// All returns every live disk.
func (r *Repo) All(ctx context.Context) ([]Disk, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	var disks []Disk
	if err := r.diskQuery().OrderBy("id", "asc").WithContext(ctx).Get(&disks); err != nil {
		return nil, err
	}
	for i := range disks {
		if err := disks[i].decode(); err != nil {
			return nil, err
		}
	}
	return disks, nil
}

// Get returns a live disk by UUID.
func (r *Repo) Get(ctx context.Context, id string) (Disk, error) {
	if err := r.ready(); err != nil {
		return Disk{}, err
	}
	var d Disk
	if err := r.diskQuery().Where("uuid", id).WithContext(ctx).First(&d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Disk{}, ErrNotFound
		}
		return Disk{}, err
	}
	if err := d.decode(); err != nil {
		return Disk{}, err
	}
	return d, nil
}

// Create inserts a disk of type typeID with a new UUID. config must already
// be JSON encoded.
func (r *Repo) Create(ctx context.Context, typeID int64, name, config string, size, used int64) (string, error) {
	if err := r.ready(); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	_, err := query.New(r.DB, r.t("disks"), r.dialect()).WithContext(ctx).InsertGetId(map[string]any{
		"uuid":         id,
		"disk_type_id": typeID,
		"name":         name,
		"config":       config,
		"size":         size,
		"used":         used,
		"created_at":   now,
		"updated_at":   now,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update writes values to the live disk with the given id.
func (r *Repo) Update(ctx context.Context, id int64, values map[string]any) error {
	if err := r.ready(); err != nil {
		return err
	}
	values["updated_at"] = time.Now().UTC()
	_, err := query.New(r.DB, r.t("disks"), r.dialect()).
		Where("id", id).
		WhereRaw("deleted_at IS NULL", nil).
		WithContext(ctx).
		Update(values)
	return err
}

// UpdateUsed stores a measured usage.
func (r *Repo) UpdateUsed(ctx context.Context, id, used int64) error {
	return r.Update(ctx, id, map[string]any{"used": used})
}

// SoftDelete marks a disk deleted.
func (r *Repo) SoftDelete(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return r.Update(ctx, id, map[string]any{"deleted_at": now})
}

// StatsByType aggregates live disks per type code.
func (r *Repo) StatsByType(ctx context.Context) ([]metrics.TypeStat, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`SELECT t.code, COUNT(d.id), COALESCE(SUM(d.used), 0) FROM %s t LEFT JOIN %s d ON d.disk_type_id = t.id AND d.deleted_at IS NULL GROUP BY t.code ORDER BY t.code`,
		r.t("disk_types"), r.t("disks"))
	rows, err := r.DB.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []metrics.TypeStat
	for rows.Next() {
		var s metrics.TypeStat
		if err := rows.Scan(&s.Type, &s.Count, &s.Used); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
