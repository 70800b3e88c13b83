package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/faciam-dev/gcdisk/internal/metrics"
	"github.com/faciam-dev/gcdisk/internal/rbac"
)

func newGate(t *testing.T) *rbac.Gate {
	t.Helper()
	e, err := rbac.NewEnforcer()
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	if _, err := e.AddPolicy(rbac.RoleSubject("admin"), "disks", "list"); err != nil {
		t.Fatalf("policy: %v", err)
	}
	if _, err := e.AddGroupingPolicy(rbac.UserSubject("7"), rbac.RoleSubject("admin")); err != nil {
		t.Fatalf("grouping: %v", err)
	}
	return rbac.NewGateWithEnforcer(e)
}

// fakeAuth takes the user id from a header so RBAC can be tested alone.
func fakeAuth(ctx huma.Context, next func(huma.Context)) {
	r, w := humachi.Unwrap(ctx)
	c := WithUser(r.Context(), r.Header.Get("X-User"))
	next(humachi.NewContext(ctx.Operation(), r.WithContext(c), w))
}

type listOutput struct {
	Body struct {
		OK bool `json:"ok"`
	}
}

func newAPI(t *testing.T) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	api := humachi.New(r, huma.DefaultConfig("test", "1.0.0"))
	api.UseMiddleware(MetricsMW)
	api.UseMiddleware(fakeAuth)
	api.UseMiddleware(RBAC(api, newGate(t)))
	ok := func(context.Context, *struct{}) (*listOutput, error) {
		out := &listOutput{}
		out.Body.OK = true
		return out, nil
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-disks",
		Method:      http.MethodGet,
		Path:        "/v1/disks",
		Metadata:    Require(rbac.DisksList),
	}, ok)
	huma.Register(api, huma.Operation{
		OperationID: "delete-disk",
		Method:      http.MethodDelete,
		Path:        "/v1/disks/{uuid}",
		Metadata:    Require(rbac.DisksDelete),
	}, func(ctx context.Context, _ *struct {
		UUID string `path:"uuid"`
	}) (*listOutput, error) {
		return ok(ctx, nil)
	})
	huma.Register(api, huma.Operation{
		OperationID: "open",
		Method:      http.MethodGet,
		Path:        "/v1/open",
	}, ok)
	return r
}

func TestRBAC(t *testing.T) {
	srv := newAPI(t)
	tests := []struct {
		name   string
		method string
		path   string
		user   string
		want   int
	}{
		{"granted", http.MethodGet, "/v1/disks", "7", http.StatusOK},
		{"missing permission", http.MethodDelete, "/v1/disks/abc", "7", http.StatusForbidden},
		{"unknown user", http.MethodGet, "/v1/disks", "8", http.StatusForbidden},
		{"anonymous", http.MethodGet, "/v1/disks", "", http.StatusForbidden},
		{"no permission required", http.MethodGet, "/v1/open", "8", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("X-User", tt.user)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestMetricsMW(t *testing.T) {
	srv := newAPI(t)
	before := testutil.ToFloat64(metrics.APIRequests.WithLabelValues(http.MethodGet, "/v1/open", "200"))
	req := httptest.NewRequest(http.MethodGet, "/v1/open", nil)
	srv.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(metrics.APIRequests.WithLabelValues(http.MethodGet, "/v1/open", "200"))
	if after != before+1 {
		t.Fatalf("request not counted: %v -> %v", before, after)
	}
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	srv := newAPI(t)
	series := metrics.APIRequests.WithLabelValues(http.MethodDelete, "/v1/disks/{uuid}", "403")
	before := testutil.ToFloat64(series)
	for _, id := range []string{"0b6c9a5e-1111-4c4c-9999-000000000001", "0b6c9a5e-1111-4c4c-9999-000000000002"} {
		req := httptest.NewRequest(http.MethodDelete, "/v1/disks/"+id, nil)
		req.Header.Set("X-User", "7")
		srv.ServeHTTP(httptest.NewRecorder(), req)
	}
	if after := testutil.ToFloat64(series); after != before+2 {
		t.Fatalf("expected one series for both disks: %v -> %v", before, after)
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := WithUser(context.Background(), "12")
	if UserIDFromContext(ctx) != 12 {
		t.Fatalf("unexpected id")
	}
	if UserIDFromContext(context.Background()) != 0 {
		t.Fatalf("expected 0")
	}
}
