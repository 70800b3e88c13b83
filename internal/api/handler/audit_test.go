package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/gcdisk/internal/audit"
)

type fakeLogs struct {
	entries map[int64]audit.Entry
	filter  audit.Filter
	next    string
}

func (f *fakeLogs) List(_ context.Context, flt audit.Filter) ([]audit.Entry, string, error) {
	f.filter = flt
	var out []audit.Entry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, f.next, nil
}

func (f *fakeLogs) Get(_ context.Context, id int64) (audit.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return audit.Entry{}, audit.ErrNotFound
	}
	return e, nil
}

func sampleEntry() audit.Entry {
	return audit.Entry{
		ID:         3,
		Actor:      "Ops",
		Action:     "update",
		Resource:   "disk",
		ResourceID: "d-1",
		Before:     sql.NullString{String: `{"name":"a"}`, Valid: true},
		After:      sql.NullString{String: `{"name":"b"}`, Valid: true},
		AppliedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestListAuditLogs(t *testing.T) {
	logs := &fakeLogs{entries: map[int64]audit.Entry{3: sampleEntry()}, next: "abc"}
	h := &AuditHandler{Logs: logs}
	from := "2026-01-01T00:00:00Z"
	out, err := h.list(context.Background(), &auditListParams{Action: "add, update,", Resource: "disk", From: from, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"add", "update"}, logs.filter.Actions); diff != "" {
		t.Fatalf("actions mismatch (-want +got):\n%s", diff)
	}
	if logs.filter.From.Format(time.RFC3339) != from || !logs.filter.To.IsZero() || logs.filter.Limit != 10 {
		t.Fatalf("unexpected filter %+v", logs.filter)
	}
	if out.Body.NextCursor != "abc" || len(out.Body.Items) != 1 {
		t.Fatalf("unexpected output %+v", out.Body)
	}
	item := out.Body.Items[0]
	if item.Summary != "+1 -1" || item.DiffURL != "/v1/audit-logs/3/diff" {
		t.Fatalf("unexpected item %+v", item)
	}
	if string(item.After) != `{"name":"b"}` {
		t.Fatalf("after = %s", item.After)
	}
}

func TestListAuditLogsRejectsBadInput(t *testing.T) {
	h := &AuditHandler{Logs: &fakeLogs{}}
	for _, p := range []*auditListParams{{From: "yesterday"}, {Cursor: "%%%"}} {
		if _, err := h.list(context.Background(), p); statusOf(err) != http.StatusUnprocessableEntity {
			t.Fatalf("%+v: expected 422, got %v", p, err)
		}
	}
}

func TestGetAuditLog(t *testing.T) {
	e := sampleEntry()
	e.Before = sql.NullString{}
	h := &AuditHandler{Logs: &fakeLogs{entries: map[int64]audit.Entry{3: e}}}
	out, err := h.get(context.Background(), &auditPath{ID: 3})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Body.Before != nil || out.Body.Actor != "Ops" {
		t.Fatalf("unexpected body %+v", out.Body)
	}
	if _, err := h.get(context.Background(), &auditPath{ID: 4}); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestAuditDiff(t *testing.T) {
	h := &AuditHandler{Logs: &fakeLogs{entries: map[int64]audit.Entry{3: sampleEntry()}}}
	out, err := h.diff(context.Background(), &auditPath{ID: 3})
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if out.Body.Added != 1 || out.Body.Removed != 1 {
		t.Fatalf("counts = +%d -%d", out.Body.Added, out.Body.Removed)
	}
	if !strings.Contains(out.Body.Unified, `+  "name": "b"`) {
		t.Fatalf("unified diff:\n%s", out.Body.Unified)
	}
	if _, err := h.diff(context.Background(), &auditPath{ID: 9}); statusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
