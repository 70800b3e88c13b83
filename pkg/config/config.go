// Package config keeps diskctl profiles, one API endpoint and token each.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// PathEnv overrides the profile file location.
const PathEnv = "DISKCTL_CONFIG"

const defaultProfile = "default"

var ErrNoProfile = errors.New("profile not found")

type Profile struct {
	APIURL string `json:"apiUrl"`
	Token  string `json:"token,omitempty"`
	Email  string `json:"email,omitempty"`
}

// File is the content of the profile file.
type File struct {
	Current  string             `json:"current"`
	Profiles map[string]Profile `json:"profiles"`
}

// Path returns $DISKCTL_CONFIG or ~/.diskctl/config.json.
func Path() (string, error) {
	if p := os.Getenv(PathEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".diskctl", "config.json"), nil
}

// Load reads the profile file. A missing file is not an error.
func Load() (*File, error) {
	f := &File{Current: defaultProfile, Profiles: map[string]Profile{}}
	p, err := Path()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	if f.Current == "" {
		f.Current = defaultProfile
	}
	return f, nil
}

// Save writes the file with owner-only permissions. The file is replaced
// atomically.
func (f *File) Save() error {
	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".config-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Profile returns the named profile, or the current one for "".
func (f *File) Profile(name string) (Profile, bool) {
	if name == "" {
		name = f.Current
	}
	p, ok := f.Profiles[name]
	return p, ok
}

// Put stores p under name and makes it current.
func (f *File) Put(name string, p Profile) {
	if name == "" {
		name = defaultProfile
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	f.Profiles[name] = p
	f.Current = name
}

// Use switches the current profile.
func (f *File) Use(name string) error {
	if _, ok := f.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNoProfile, name)
	}
	f.Current = name
	return nil
}

// Names returns the profile names, sorted.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Profiles))
	for n := range f.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
