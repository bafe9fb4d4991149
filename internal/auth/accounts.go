// Package auth answers who is signed in and which features they hold. State
// lives in a small YAML accounts file so the CLI and the TUI share it.
package auth

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownUser is returned when an operation names a user that is not in
// the accounts file.
var ErrUnknownUser = errors.New("auth: unknown user")

// User is one account.
type User struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name,omitempty"`
	Features []string `yaml:"features,omitempty"`
}

// HasFeature reports whether the user holds feature.
func (u User) HasFeature(feature string) bool {
	return slices.Contains(u.Features, feature)
}

// Accounts is the on-disk document.
type Accounts struct {
	Current string `yaml:"current,omitempty"`
	Users   []User `yaml:"users"`
}

// Find returns the user with id.
func (a Accounts) Find(id string) (User, bool) {
	for _, u := range a.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func (a *Accounts) upsert(user User) {
	for i := range a.Users {
		if a.Users[i].ID == user.ID {
			a.Users[i] = user
			return
		}
	}
	a.Users = append(a.Users, user)
}

func (a *Accounts) normalize() {
	a.Current = strings.TrimSpace(a.Current)
	users := a.Users[:0]
	seen := make(map[string]struct{}, len(a.Users))
	for _, u := range a.Users {
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		features := u.Features[:0]
		for _, f := range u.Features {
			f = strings.TrimSpace(f)
			if f != "" && !slices.Contains(features, f) {
				features = append(features, f)
			}
		}
		u.Features = features
		users = append(users, u)
	}
	a.Users = users
}

func readAccounts(path string) (Accounts, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Accounts{}, nil
	}
	if err != nil {
		return Accounts{}, fmt.Errorf("auth: read %s: %w", path, err)
	}
	var accounts Accounts
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		return Accounts{}, fmt.Errorf("auth: parse %s: %w", path, err)
	}
	accounts.normalize()
	return accounts, nil
}

func encodeAccounts(accounts Accounts) ([]byte, error) {
	if accounts.Users == nil {
		accounts.Users = []User{}
	}
	data, err := yaml.Marshal(accounts)
	if err != nil {
		return nil, fmt.Errorf("auth: encode accounts: %w", err)
	}
	return data, nil
}
