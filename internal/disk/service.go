package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/faciam-dev/gcdisk/internal/events"
	"github.com/faciam-dev/gcdisk/internal/logger"
	"github.com/faciam-dev/gcdisk/internal/metrics"
	"github.com/faciam-dev/gcdisk/internal/paging"
	"github.com/faciam-dev/gcdisk/internal/storage"
	"github.com/faciam-dev/gcdisk/pkg/crypto"
	"github.com/faciam-dev/gcdisk/pkg/fields"
	"github.com/faciam-dev/gcdisk/pkg/validation"
)

const redacted = "********"

// Store is the persistence the service needs. *Repo implements it.
type Store interface {
	ListTypes(ctx context.Context, search string) ([]DiskType, error)
	TypeByCode(ctx context.Context, code string) (DiskType, error)
	Search(ctx context.Context, s Search) ([]Disk, paging.Meta, error)
	All(ctx context.Context) ([]Disk, error)
	Get(ctx context.Context, id string) (Disk, error)
	Create(ctx context.Context, typeID int64, name, config string, size, used int64) (string, error)
	Update(ctx context.Context, id int64, values map[string]any) error
	UpdateUsed(ctx context.Context, id, used int64) error
	SoftDelete(ctx context.Context, id int64) error
}

// Auditor records changes.
type Auditor interface {
	Write(ctx context.Context, actor, resource, id string, before, after any) error
}

// Service applies validation, encryption, auditing and events around Store.
type Service struct {
	Store Store
	Cache *SchemaCache
	Audit Auditor
	// Secrets seals password fields at rest; nil stores them in clear.
	Secrets *crypto.Sealer
	// Open builds storage drivers; storage.Open when nil.
	Open func(ctx context.Context, driver string, cfg map[string]any) (storage.Driver, error)
}

var diskRules = map[string][]string{
	"name": {"required", "string", "min:3", "max:100"},
	"type": {"required", "string"},
	"size": {"required", "integer", "min:1"},
	"used": {"required", "integer", "min:0"},
}

// ListTypes returns disk types matching search.
func (s *Service) ListTypes(ctx context.Context, search string) ([]DiskType, error) {
	return s.Store.ListTypes(ctx, search)
}

// Type returns a disk type by code.
func (s *Service) Type(ctx context.Context, code string) (DiskType, error) {
	return s.Store.TypeByCode(ctx, code)
}

// Form returns the widgets of a disk type through the schema cache.
func (s *Service) Form(t DiskType) ([]fields.FormField, error) {
	sch, err := s.Cache.Schema(t)
	if err != nil {
		return nil, err
	}
	return sch.Form(), nil
}

// Search lists disks without their configs.
func (s *Service) Search(ctx context.Context, q Search) ([]Disk, paging.Meta, error) {
	disks, meta, err := s.Store.Search(ctx, q)
	if err != nil {
		return nil, paging.Meta{}, err
	}
	for i := range disks {
		disks[i].Config = nil
	}
	return disks, meta, nil
}

// Get returns a disk with its config decrypted.
func (s *Service) Get(ctx context.Context, id string) (Disk, error) {
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Disk{}, err
	}
	if err := s.reveal(ctx, &d); err != nil {
		return Disk{}, err
	}
	return d, nil
}

// Create validates in and stores a new disk.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (Disk, error) {
	t, sch, config, err := s.check(ctx, in.Name, in.Type, in.Config, in.Size, in.Used, true)
	if err != nil {
		return Disk{}, err
	}
	raw, err := s.seal(sch, config)
	if err != nil {
		return Disk{}, err
	}
	// The stored form must read back before a row is written.
	stored := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return Disk{}, err
	}
	if err := s.open(sch, stored); err != nil {
		return Disk{}, err
	}
	id, err := s.Store.Create(ctx, t.ID, in.Name, raw, in.Size, in.Used)
	if err != nil {
		return Disk{}, err
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return Disk{}, err
	}
	s.record(ctx, actor, id, nil, redact(d, sch))
	events.Emit(ctx, events.New(events.DiskCreated, d.UUID, summary(d)).By(actor))
	return d, nil
}

// Update applies in to the disk id.
func (s *Service) Update(ctx context.Context, actor, id string, in UpdateInput) (Disk, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return Disk{}, err
	}
	name, typ, size, used := cur.Name, cur.Type, cur.Size, cur.Used
	if in.Name != nil {
		name = *in.Name
	}
	if in.Size != nil {
		size = *in.Size
	}
	if in.Used != nil {
		used = *in.Used
	}
	config := in.Config
	if in.Type != nil && !strings.EqualFold(*in.Type, cur.Type) {
		typ = *in.Type
	} else {
		config = merge(cur.Config, in.Config)
	}
	t, sch, config, err := s.check(ctx, name, typ, config, size, used, in.Size != nil || in.Used != nil)
	if err != nil {
		return Disk{}, err
	}
	raw, err := s.seal(sch, config)
	if err != nil {
		return Disk{}, err
	}
	err = s.Store.Update(ctx, cur.ID, map[string]any{
		"name":         name,
		"disk_type_id": t.ID,
		"config":       raw,
		"size":         size,
		"used":         used,
	})
	if err != nil {
		return Disk{}, err
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return Disk{}, err
	}
	before := cur
	if old, err := s.Store.TypeByCode(ctx, cur.Type); err == nil {
		if oldSch, err := s.Cache.Schema(old); err == nil {
			before = redact(cur, oldSch)
		}
	}
	s.record(ctx, actor, id, before, redact(d, sch))
	events.Emit(ctx, events.New(events.DiskUpdated, d.UUID, summary(d)).By(actor))
	return d, nil
}

// Delete soft deletes the disk id.
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	cur, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.SoftDelete(ctx, cur.ID); err != nil {
		return err
	}
	cur.Config = nil
	s.record(ctx, actor, id, cur, nil)
	events.Emit(ctx, events.New(events.DiskDeleted, cur.UUID, summary(cur)).By(actor))
	return nil
}

// RefreshUsage measures the disk on its backend and stores the result.
func (s *Service) RefreshUsage(ctx context.Context, id string) (Disk, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return Disk{}, err
	}
	if err := s.refresh(ctx, &d); err != nil {
		return Disk{}, err
	}
	return d, nil
}

// RefreshAll refreshes every disk and returns the joined errors.
func (s *Service) RefreshAll(ctx context.Context) error {
	disks, err := s.Store.All(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for i := range disks {
		d := &disks[i]
		if err := s.reveal(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("disk %s: %w", d.UUID, err))
			continue
		}
		if err := s.refresh(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("disk %s: %w", d.UUID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) refresh(ctx context.Context, d *Disk) error {
	open := s.Open
	if open == nil {
		open = storage.Open
	}
	drv, err := open(ctx, d.Driver, d.Config)
	if err != nil {
		metrics.UsageRefreshErrors.WithLabelValues(d.Driver).Inc()
		return err
	}
	used, err := drv.Usage(ctx)
	if err != nil {
		metrics.UsageRefreshErrors.WithLabelValues(d.Driver).Inc()
		return err
	}
	if used > d.Size {
		logger.L.Warn("disk usage exceeds size", "disk", d.UUID, "used", used, "size", d.Size)
	}
	if err := s.Store.UpdateUsed(ctx, d.ID, used); err != nil {
		return err
	}
	d.Used = used
	return nil
}

// check validates a full disk record and returns its type, schema and the
// config reduced to the type's fields. used is only compared with size when
// bounded is set.
func (s *Service) check(ctx context.Context, name, typ string, config map[string]any, size, used int64, bounded bool) (DiskType, fields.Schema, map[string]any, error) {
	errs := validation.Errors{}
	collect(errs, "", validation.Validate(diskRules, map[string]any{
		"name": name, "type": typ, "size": size, "used": used,
	}))
	if bounded && size >= 1 && used > size {
		errs["used"] = append(errs["used"], "The used field must not be greater than the size.")
	}
	if config == nil {
		errs["config"] = []string{"The config field is required."}
	}
	var t DiskType
	var sch fields.Schema
	if typ != "" {
		var err error
		t, err = s.Store.TypeByCode(ctx, typ)
		switch {
		case errors.Is(err, ErrTypeNotFound):
			errs["type"] = []string{"The selected type is invalid."}
		case err != nil:
			return DiskType{}, fields.Schema{}, nil, err
		default:
			if sch, err = s.Cache.Schema(t); err != nil {
				return DiskType{}, fields.Schema{}, nil, err
			}
			if config != nil {
				collect(errs, "config.", validation.Validate(sch.Rules(), config))
				s.checkSecrets(errs, sch, config)
			}
		}
	}
	if len(errs) > 0 {
		return DiskType{}, fields.Schema{}, nil, errs
	}
	out := make(map[string]any, sch.Len())
	for _, f := range sch.Fields() {
		if v, ok := config[f.Name()]; ok && v != nil {
			out[f.Name()] = v
		}
	}
	return t, sch, out, nil
}

// seal encrypts secret values when a key is configured and encodes config.
func (s *Service) seal(sch fields.Schema, config map[string]any) (string, error) {
	for _, f := range sch.Fields() {
		v, ok := config[f.Name()].(string)
		if !ok || !f.Type().Secret() || v == "" {
			continue
		}
		enc, err := s.Secrets.Seal(v)
		if err != nil {
			return "", err
		}
		config[f.Name()] = enc
	}
	b, err := json.Marshal(config)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// checkSecrets rejects secret values that would read back as ciphertext.
// With a key every secret is sealed, so only keyless services need it.
func (s *Service) checkSecrets(errs validation.Errors, sch fields.Schema, config map[string]any) {
	if s.Secrets != nil {
		return
	}
	for _, f := range sch.Fields() {
		v, ok := config[f.Name()].(string)
		if ok && f.Type().Secret() && crypto.IsSealed(v) {
			key := "config." + f.Name()
			errs[key] = append(errs[key], fmt.Sprintf("The %s field must not start with %q.", key, crypto.Prefix))
		}
	}
}

// reveal decrypts the secret fields of d.Config in place.
func (s *Service) reveal(ctx context.Context, d *Disk) error {
	t, err := s.Store.TypeByCode(ctx, d.Type)
	if errors.Is(err, ErrTypeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sch, err := s.Cache.Schema(t)
	if err != nil {
		return err
	}
	return s.open(sch, d.Config)
}

// open decrypts the secret fields of sch found in config. Other fields are
// left as they are.
func (s *Service) open(sch fields.Schema, config map[string]any) error {
	for _, f := range sch.Fields() {
		str, ok := config[f.Name()].(string)
		if !ok || !f.Type().Secret() {
			continue
		}
		plain, err := s.Secrets.Open(str)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", f.Name(), err)
		}
		config[f.Name()] = plain
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor, id string, before, after any) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Write(ctx, actor, "disk", id, before, after); err != nil {
		logger.L.Error("audit disk change", "disk", id, "err", err)
	}
}

func collect(dst validation.Errors, prefix string, err error) {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return
	}
	for k, msgs := range verrs {
		dst[prefix+k] = append(dst[prefix+k], msgs...)
	}
}

func merge(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// redact returns a copy of d with secret config values masked.
func redact(d Disk, sch fields.Schema) Disk {
	cfg := make(map[string]any, len(d.Config))
	for k, v := range d.Config {
		cfg[k] = v
	}
	for _, f := range sch.Fields() {
		if _, ok := cfg[f.Name()]; ok && f.Type().Secret() {
			cfg[f.Name()] = redacted
		}
	}
	d.Config = cfg
	return d
}

func summary(d Disk) map[string]any {
	return map[string]any{"uuid": d.UUID, "name": d.Name, "type": d.Type, "size": d.Size, "used": d.Used}
}
