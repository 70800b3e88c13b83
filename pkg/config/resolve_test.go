package config

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newRoot() *cobra.Command {
	cmd := &cobra.Command{Use: "root"}
	cmd.PersistentFlags().String("api-url", "", "")
	cmd.PersistentFlags().String("token", "", "")
	cmd.PersistentFlags().String("profile", "", "")
	return cmd
}

func TestResolvePrecedence(t *testing.T) {
	f := &File{Current: "default", Profiles: map[string]Profile{
		"default": {APIURL: "cfg", Token: "cfgtok"},
		"p2":      {APIURL: "p2", Token: "p2tok"},
	}}
	tests := []struct {
		name      string
		env       [2]string
		o         Overrides
		wantURL   string
		wantToken string
		wantProf  string
	}{
		{name: "profile", wantURL: "cfg", wantToken: "cfgtok", wantProf: "default"},
		{name: "env", env: [2]string{"env", "envtok"}, wantURL: "env", wantToken: "envtok", wantProf: "default"},
		{name: "flag", env: [2]string{"env", "envtok"}, o: Overrides{APIURL: "flag", Token: "flagtok"}, wantURL: "flag", wantToken: "flagtok", wantProf: "default"},
		{name: "profile flag", o: Overrides{Profile: "p2"}, wantURL: "p2", wantToken: "p2tok", wantProf: "p2"},
		{name: "mixed", env: [2]string{"", "envtok"}, o: Overrides{Profile: "p2"}, wantURL: "p2", wantToken: "envtok", wantProf: "p2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvAPIURL, tt.env[0])
			t.Setenv(EnvToken, tt.env[1])
			r, err := f.Resolve(tt.o)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if r.APIURL != tt.wantURL || r.Token != tt.wantToken || r.Profile != tt.wantProf {
				t.Fatalf("unexpected %+v", r)
			}
		})
	}
}

func TestResolveMissing(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvToken, "")
	f := &File{Current: "default", Profiles: map[string]Profile{"default": {APIURL: "cfg"}}}
	_, err := f.Resolve(Overrides{})
	if err == nil || !strings.Contains(err.Error(), "token") || strings.Contains(err.Error(), "API URL") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestResolveFromFlags(t *testing.T) {
	t.Setenv(PathEnv, t.TempDir()+"/config.json")
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvToken, "")
	root := newRoot()
	if err := root.PersistentFlags().Set("api-url", "flag"); err != nil {
		t.Fatalf("set api-url: %v", err)
	}
	if err := root.PersistentFlags().Set("token", "flagtok"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	r, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.APIURL != "flag" || r.Token != "flagtok" || r.Profile != "default" {
		t.Fatalf("unexpected %+v", r)
	}
}
