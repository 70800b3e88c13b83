package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const (
	EnvAPIURL = "DISKCTL_API_URL"
	EnvToken  = "DISKCTL_TOKEN"
)

// Overrides are values given on the command line. Empty fields are unset.
type Overrides struct {
	APIURL  string
	Token   string
	Profile string
}

type Resolved struct {
	APIURL  string
	Token   string
	Profile string
}

// FromFlags reads the persistent --api-url, --token and --profile flags.
func FromFlags(cmd *cobra.Command) Overrides {
	fs := cmd.Root().PersistentFlags()
	var o Overrides
	o.APIURL, _ = fs.GetString("api-url")
	o.Token, _ = fs.GetString("token")
	o.Profile, _ = fs.GetString("profile")
	return o
}

// Resolve picks each value from the overrides, then the environment, then
// the selected profile.
func (f *File) Resolve(o Overrides) (Resolved, error) {
	name := o.Profile
	if name == "" {
		name = f.Current
	}
	p, _ := f.Profile(name)
	r := Resolved{
		APIURL:  pick(o.APIURL, os.Getenv(EnvAPIURL), p.APIURL),
		Token:   pick(o.Token, os.Getenv(EnvToken), p.Token),
		Profile: name,
	}
	var missing []string
	if r.APIURL == "" {
		missing = append(missing, "API URL (--api-url or "+EnvAPIURL+")")
	}
	if r.Token == "" {
		missing = append(missing, "token (--token, "+EnvToken+" or diskctl login)")
	}
	if len(missing) > 0 {
		return Resolved{}, errors.New("missing " + strings.Join(missing, " and "))
	}
	return r, nil
}

// Resolve loads the profile file and resolves it against cmd's flags.
func Resolve(cmd *cobra.Command) (Resolved, error) {
	f, err := Load()
	if err != nil {
		return Resolved{}, err
	}
	return f.Resolve(FromFlags(cmd))
}

func pick(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
