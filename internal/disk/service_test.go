package disk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/faciam-dev/gcdisk/internal/events"
	"github.com/faciam-dev/gcdisk/internal/paging"
	"github.com/faciam-dev/gcdisk/internal/storage"
	"github.com/faciam-dev/gcdisk/pkg/crypto"
	"github.com/faciam-dev/gcdisk/pkg/fields"
	"github.com/faciam-dev/gcdisk/pkg/validation"
)

func ptr[T any](v T) *T { return &v }

type memStore struct {
	types map[string]DiskType
	disks map[string]*Disk
	seq   int64
}

func newMemStore() *memStore {
	return &memStore{
		types: map[string]DiskType{
			"local": {ID: 1, Code: "local", Name: "Local", Driver: "local", Fields: []fields.Definition{
				{Name: "root", Type: "string", Label: ptr("Root Path"), Max: ptr(500)},
			}},
			"s3": {ID: 2, Code: "s3", Name: "Amazon S3", Driver: "s3", Fields: []fields.Definition{
				{Name: "bucket", Type: "string"},
				{Name: "endpoint", Type: "url", Required: ptr(false)},
				{Name: "secret_key", Type: "password"},
			}},
		},
		disks: map[string]*Disk{},
	}
}

func (m *memStore) ListTypes(_ context.Context, search string) ([]DiskType, error) {
	var out []DiskType
	for _, t := range m.types {
		if search == "" || strings.Contains(t.Code, search) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) TypeByCode(_ context.Context, code string) (DiskType, error) {
	t, ok := m.types[strings.ToLower(code)]
	if !ok {
		return DiskType{}, fmt.Errorf("%w: %s", ErrTypeNotFound, code)
	}
	return t, nil
}

func (m *memStore) typeByID(id int64) DiskType {
	for _, t := range m.types {
		if t.ID == id {
			return t
		}
	}
	return DiskType{}
}

func (m *memStore) Search(_ context.Context, s Search) ([]Disk, paging.Meta, error) {
	var out []Disk
	for _, d := range m.disks {
		cp := *d
		_ = cp.decode()
		out = append(out, cp)
	}
	q := paging.Normalize(s.Params, Sortable, "name")
	return out, paging.NewMeta(q, len(out)), nil
}

func (m *memStore) All(ctx context.Context) ([]Disk, error) {
	out, _, err := m.Search(ctx, Search{})
	return out, err
}

func (m *memStore) Get(_ context.Context, id string) (Disk, error) {
	d, ok := m.disks[id]
	if !ok {
		return Disk{}, ErrNotFound
	}
	cp := *d
	if err := cp.decode(); err != nil {
		return Disk{}, err
	}
	return cp, nil
}

func (m *memStore) Create(_ context.Context, typeID int64, name, config string, size, used int64) (string, error) {
	m.seq++
	id := fmt.Sprintf("disk-%d", m.seq)
	t := m.typeByID(typeID)
	m.disks[id] = &Disk{ID: m.seq, UUID: id, DiskTypeID: typeID, Type: t.Code, Driver: t.Driver, Name: name, RawConfig: config, Size: size, Used: used}
	return id, nil
}

func (m *memStore) byID(id int64) *Disk {
	for _, d := range m.disks {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (m *memStore) Update(_ context.Context, id int64, values map[string]any) error {
	d := m.byID(id)
	if d == nil {
		return ErrNotFound
	}
	if v, ok := values["name"].(string); ok {
		d.Name = v
	}
	if v, ok := values["disk_type_id"].(int64); ok {
		t := m.typeByID(v)
		d.DiskTypeID, d.Type, d.Driver = v, t.Code, t.Driver
	}
	if v, ok := values["config"].(string); ok {
		d.RawConfig = v
	}
	if v, ok := values["size"].(int64); ok {
		d.Size = v
	}
	if v, ok := values["used"].(int64); ok {
		d.Used = v
	}
	return nil
}

func (m *memStore) UpdateUsed(ctx context.Context, id, used int64) error {
	return m.Update(ctx, id, map[string]any{"used": used})
}

func (m *memStore) SoftDelete(_ context.Context, id int64) error {
	d := m.byID(id)
	if d == nil {
		return ErrNotFound
	}
	delete(m.disks, d.UUID)
	return nil
}

type auditEntry struct {
	Actor, Resource, ID string
	Before, After       any
}

type memAudit struct{ entries []auditEntry }

func (m *memAudit) Write(_ context.Context, actor, resource, id string, before, after any) error {
	m.entries = append(m.entries, auditEntry{actor, resource, id, before, after})
	return nil
}

type captureSink struct {
	mu    sync.Mutex
	names []string
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Emit(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, e.Name)
	return nil
}

func newService(t *testing.T) (*Service, *memStore, *memAudit, *captureSink, *events.Dispatcher) {
	t.Helper()
	store := newMemStore()
	audit := &memAudit{}
	sink := &captureSink{}
	d := events.NewDispatcher(events.Config{}, nil, sink)
	prev := events.Default
	events.Default = d
	t.Cleanup(func() { events.Default = prev })
	return &Service{Store: store, Cache: NewSchemaCache(nil), Audit: audit}, store, audit, sink, d
}

func validationErrors(t *testing.T, err error) validation.Errors {
	t.Helper()
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	return verrs
}

func TestCreate(t *testing.T) {
	svc, _, audit, sink, dispatcher := newService(t)
	d, err := svc.Create(context.Background(), "7", CreateInput{
		Name:   "backups",
		Type:   "LOCAL",
		Config: map[string]any{"root": "/srv/backups", "unknown": "dropped"},
		Size:   1024,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Type != "local" || d.Name != "backups" || d.Size != 1024 || d.Used != 0 {
		t.Fatalf("unexpected disk: %+v", d)
	}
	if diff := cmp.Diff(map[string]any{"root": "/srv/backups"}, d.Config); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if len(audit.entries) != 1 || audit.entries[0].Before != nil || audit.entries[0].Resource != "disk" {
		t.Fatalf("unexpected audit: %+v", audit.entries)
	}
	dispatcher.Wait()
	if diff := cmp.Diff([]string{events.DiskCreated}, sink.names); diff != "" {
		t.Fatalf("events mismatch:\n%s", diff)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, _, _ := newService(t)
	tests := []struct {
		name   string
		in     CreateInput
		fields []string
	}{
		{"short name", CreateInput{Name: "ab", Type: "local", Config: map[string]any{"root": "/x"}, Size: 1}, []string{"name"}},
		{"unknown type", CreateInput{Name: "disk", Type: "ftp", Config: map[string]any{}, Size: 1}, []string{"type"}},
		{"missing config", CreateInput{Name: "disk", Type: "local", Size: 1}, []string{"config"}},
		{"config rules", CreateInput{Name: "disk", Type: "local", Config: map[string]any{}, Size: 1}, []string{"config.root"}},
		{"zero size", CreateInput{Name: "disk", Type: "local", Config: map[string]any{"root": "/x"}}, []string{"size"}},
		{"used over size", CreateInput{Name: "disk", Type: "local", Config: map[string]any{"root": "/x"}, Size: 5, Used: 6}, []string{"used"}},
		{"negative used", CreateInput{Name: "disk", Type: "local", Config: map[string]any{"root": "/x"}, Size: 5, Used: -1}, []string{"used"}},
		{"bad url", CreateInput{Name: "disk", Type: "s3", Config: map[string]any{"bucket": "b", "secret_key": "s", "endpoint": "nope"}, Size: 5}, []string{"config.endpoint"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "7", tt.in)
			verrs := validationErrors(t, err)
			if diff := cmp.Diff(tt.fields, verrs.Fields()); diff != "" {
				t.Fatalf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSecretsEncryptedAtRest(t *testing.T) {
	svc, store, audit, _, _ := newService(t)
	sealer, err := crypto.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	svc.Secrets = sealer
	d, err := svc.Create(context.Background(), "7", CreateInput{
		Name:   "objects",
		Type:   "s3",
		Config: map[string]any{"bucket": "media", "secret_key": "hunter2"},
		Size:   10,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Config["secret_key"] != "hunter2" {
		t.Fatalf("secret should be decrypted on read: %v", d.Config["secret_key"])
	}
	raw := store.disks[d.UUID].RawConfig
	if strings.Contains(raw, "hunter2") || !strings.Contains(raw, crypto.Prefix) {
		t.Fatalf("secret stored in clear: %s", raw)
	}
	after := audit.entries[0].After.(Disk)
	if after.Config["secret_key"] != redacted {
		t.Fatalf("audit leaked secret: %v", after.Config)
	}

	// Updating another key keeps the secret intact.
	u, err := svc.Update(context.Background(), "7", d.UUID, UpdateInput{Config: map[string]any{"bucket": "media2"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if u.Config["secret_key"] != "hunter2" || u.Config["bucket"] != "media2" {
		t.Fatalf("unexpected config: %v", u.Config)
	}
}

func TestUpdate(t *testing.T) {
	svc, _, audit, sink, dispatcher := newService(t)
	d, err := svc.Create(context.Background(), "7", CreateInput{Name: "backups", Type: "local", Config: map[string]any{"root": "/a"}, Size: 100})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Update(context.Background(), "7", d.UUID, UpdateInput{Used: ptr(int64(101))}); err == nil {
		t.Fatalf("used over stored size must fail")
	}
	u, err := svc.Update(context.Background(), "7", d.UUID, UpdateInput{Name: ptr("archive"), Size: ptr(int64(200)), Used: ptr(int64(150))})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if u.Name != "archive" || u.Size != 200 || u.Used != 150 || u.Config["root"] != "/a" {
		t.Fatalf("unexpected disk: %+v", u)
	}

	// Switching type replaces the config and requires one.
	if _, err := svc.Update(context.Background(), "7", d.UUID, UpdateInput{Type: ptr("s3")}); err == nil {
		t.Fatalf("expected config to be required")
	}
	u, err = svc.Update(context.Background(), "7", d.UUID, UpdateInput{Type: ptr("s3"), Config: map[string]any{"bucket": "b", "secret_key": "k"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if u.Type != "s3" {
		t.Fatalf("type not switched: %+v", u)
	}
	if _, ok := u.Config["root"]; ok {
		t.Fatalf("old config kept: %v", u.Config)
	}
	if len(audit.entries) != 3 {
		t.Fatalf("audit entries = %d", len(audit.entries))
	}
	dispatcher.Wait()
	sorted := cmpopts.SortSlices(func(a, b string) bool { return a < b })
	if diff := cmp.Diff([]string{events.DiskCreated, events.DiskUpdated, events.DiskUpdated}, sink.names, sorted); diff != "" {
		t.Fatalf("events mismatch:\n%s", diff)
	}
}

func TestDelete(t *testing.T) {
	svc, _, audit, _, _ := newService(t)
	d, err := svc.Create(context.Background(), "7", CreateInput{Name: "tmp-disk", Type: "local", Config: map[string]any{"root": "/tmp"}, Size: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(context.Background(), "7", d.UUID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), d.UUID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(context.Background(), "7", d.UUID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	last := audit.entries[len(audit.entries)-1]
	if last.After != nil || last.Before == nil {
		t.Fatalf("unexpected audit: %+v", last)
	}
}

type fixedUsage int64

func (f fixedUsage) Usage(context.Context) (int64, error) { return int64(f), nil }

func TestRefreshUsage(t *testing.T) {
	svc, _, _, _, _ := newService(t)
	var gotDriver string
	var gotCfg map[string]any
	svc.Open = func(_ context.Context, driver string, cfg map[string]any) (storage.Driver, error) {
		gotDriver, gotCfg = driver, cfg
		return fixedUsage(42), nil
	}
	d, err := svc.Create(context.Background(), "7", CreateInput{Name: "backups", Type: "local", Config: map[string]any{"root": "/srv"}, Size: 100})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r, err := svc.RefreshUsage(context.Background(), d.UUID)
	if err != nil {
		t.Fatalf("RefreshUsage: %v", err)
	}
	if r.Used != 42 || gotDriver != "local" || gotCfg["root"] != "/srv" {
		t.Fatalf("unexpected refresh: used=%d driver=%s cfg=%v", r.Used, gotDriver, gotCfg)
	}
	stored, _ := svc.Get(context.Background(), d.UUID)
	if stored.Used != 42 {
		t.Fatalf("usage not stored: %d", stored.Used)
	}
}

func TestRefreshAllJoinsErrors(t *testing.T) {
	svc, _, _, _, _ := newService(t)
	svc.Open = func(_ context.Context, driver string, _ map[string]any) (storage.Driver, error) {
		if driver == "s3" {
			return nil, errors.New("no network")
		}
		return fixedUsage(1), nil
	}
	ctx := context.Background()
	if _, err := svc.Create(ctx, "7", CreateInput{Name: "local-1", Type: "local", Config: map[string]any{"root": "/a"}, Size: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(ctx, "7", CreateInput{Name: "remote-1", Type: "s3", Config: map[string]any{"bucket": "b", "secret_key": "k"}, Size: 10}); err != nil {
		t.Fatal(err)
	}
	err := svc.RefreshAll(ctx)
	if err == nil || !strings.Contains(err.Error(), "no network") {
		t.Fatalf("expected joined error, got %v", err)
	}
}

func TestForm(t *testing.T) {
	svc, store, _, _, _ := newService(t)
	form, err := svc.Form(store.types["local"])
	if err != nil {
		t.Fatalf("Form: %v", err)
	}
	want := []fields.FormField{{Name: "root", Label: "Root Path", Widget: "text", Rules: map[string]any{"required": true, "maxlength": 500}}}
	if diff := cmp.Diff(want, form); diff != "" {
		t.Fatalf("form mismatch (-want +got):\n%s", diff)
	}
}

func TestPrefixedPlainValueStaysReadable(t *testing.T) {
	svc, _, _, _, _ := newService(t)
	ctx := context.Background()
	d, err := svc.Create(ctx, "7", CreateInput{Name: "odd-root", Type: "local", Config: map[string]any{"root": "enc:data"}, Size: 10})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Config["root"] != "enc:data" {
		t.Fatalf("root changed: %v", d.Config)
	}
	if _, err := svc.Get(ctx, d.UUID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	disks, meta, err := svc.Search(ctx, Search{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(disks) != 1 || meta.Total != 1 {
		t.Fatalf("unexpected search result: %d disks, meta %+v", len(disks), meta)
	}
}

func TestPrefixedSecretWithKey(t *testing.T) {
	svc, store, _, _, _ := newService(t)
	sealer, err := crypto.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	svc.Secrets = sealer
	d, err := svc.Create(context.Background(), "7", CreateInput{
		Name:   "objects",
		Type:   "s3",
		Config: map[string]any{"bucket": "media", "secret_key": "enc:hunter2"},
		Size:   10,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Config["secret_key"] != "enc:hunter2" {
		t.Fatalf("secret not round-tripped: %v", d.Config["secret_key"])
	}
	if raw := store.disks[d.UUID].RawConfig; strings.Contains(raw, "hunter2") {
		t.Fatalf("secret stored in clear: %s", raw)
	}
	got, err := svc.Get(context.Background(), d.UUID)
	if err != nil || got.Config["secret_key"] != "enc:hunter2" {
		t.Fatalf("Get = %v, %v", got.Config, err)
	}
}

func TestPrefixedSecretWithoutKey(t *testing.T) {
	svc, store, audit, _, _ := newService(t)
	_, err := svc.Create(context.Background(), "7", CreateInput{
		Name:   "objects",
		Type:   "s3",
		Config: map[string]any{"bucket": "media", "secret_key": "enc:hunter2"},
		Size:   10,
	})
	verrs := validationErrors(t, err)
	if diff := cmp.Diff([]string{"config.secret_key"}, verrs.Fields()); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if len(store.disks) != 0 || len(audit.entries) != 0 {
		t.Fatalf("rejected disk was stored: %d disks, %d audit entries", len(store.disks), len(audit.entries))
	}
}

func TestUpdateAfterUsageExceedsSize(t *testing.T) {
	svc, _, _, _, _ := newService(t)
	svc.Open = func(context.Context, string, map[string]any) (storage.Driver, error) {
		return fixedUsage(50), nil
	}
	ctx := context.Background()
	d, err := svc.Create(ctx, "7", CreateInput{Name: "small-disk", Type: "local", Config: map[string]any{"root": "/srv"}, Size: 10})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.RefreshUsage(ctx, d.UUID); err != nil {
		t.Fatalf("RefreshUsage: %v", err)
	}
	u, err := svc.Update(ctx, "7", d.UUID, UpdateInput{Name: ptr("renamed")})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if u.Name != "renamed" || u.Used != 50 || u.Size != 10 {
		t.Fatalf("unexpected disk: %+v", u)
	}
	if _, err := svc.Update(ctx, "7", d.UUID, UpdateInput{Size: ptr(int64(20))}); err == nil {
		t.Fatalf("size below used must fail")
	}
	if _, err := svc.Update(ctx, "7", d.UUID, UpdateInput{Size: ptr(int64(60))}); err != nil {
		t.Fatalf("grow: %v", err)
	}
}

func TestSearchOmitsConfig(t *testing.T) {
	svc, _, _, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Create(ctx, "7", CreateInput{Name: "backups", Type: "local", Config: map[string]any{"root": "/srv"}, Size: 10}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	disks, _, err := svc.Search(ctx, Search{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(disks) != 1 || disks[0].Config != nil {
		t.Fatalf("config listed: %+v", disks)
	}
}
