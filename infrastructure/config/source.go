package config

import (
	"os"
	"strings"
)

// Source is an opaque key-value configuration source. Keys use the dotted
// section form, e.g. "JwtSettings.Secret".
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource resolves dotted keys against the process environment. A key is
// looked up first with ASP.NET-style separators ("JwtSettings__Secret") and
// then in upper snake case ("JWTSETTINGS_SECRET").
type EnvSource struct{}

func (EnvSource) Lookup(key string) (string, bool) {
	for _, name := range envNames(key) {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			return value, true
		}
	}
	return "", false
}

func envNames(key string) []string {
	return []string{
		strings.ReplaceAll(key, ".", "__"),
		strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
	}
}

// MapSource serves keys from memory. Mostly useful in tests.
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool) {
	value, ok := m[key]
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}
