package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ops@example.com" || body["password"] != "secret" {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":401,"title":"Unauthorized","detail":"invalid credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_at":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	tok, err := c.Login(context.Background(), "ops@example.com", "secret")
	if err != nil || tok != "tok" {
		t.Fatalf("Login = %q, %v", tok, err)
	}
	_, err = c.Login(context.Background(), "ops@example.com", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected APIError 401, got %v", err)
	}
}

func TestListDisks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("type") != "s3" || q.Get("perPage") != "5" || q.Has("name") {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"uuid":"d-1","name":"media","type":"s3","size":10,"used":2}],"meta":{"page":1,"perPage":5,"total":1,"lastPage":1}}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL, WithToken("tok")).ListDisks(context.Background(), ListOptions{Type: "s3", PerPage: 5})
	if err != nil {
		t.Fatalf("ListDisks: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].UUID != "d-1" || out.Meta.Total != 1 {
		t.Fatalf("unexpected %+v", out)
	}
}

func TestDiskTypeValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"title":"Not Found","detail":"disk type not found"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).DiskType(context.Background(), "ftp")
	if err == nil || err.Error() != "404: disk type not found" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestAPIErrorDetails(t *testing.T) {
	e := &APIError{Status: 422, Title: "Unprocessable Entity", Detail: "The given data was invalid."}
	e.Errors = append(e.Errors, struct {
		Location string `json:"location"`
		Message  string `json:"message"`
	}{"body.config.root", "The config.root field is required."})
	want := "422: The given data was invalid. (body.config.root: The config.root field is required.)"
	if diff := cmp.Diff(want, e.Error()); diff != "" {
		t.Fatalf("message mismatch:\n%s", diff)
	}
}
