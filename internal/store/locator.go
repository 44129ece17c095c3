package store

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies a backend engine.
type Kind string

const (
	KindDefault  Kind = "default"
	KindRedis    Kind = "redis"
	KindMySQL    Kind = "mysql"
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
)

// Locator is a parsed backend connection string.
type Locator struct {
	Kind Kind
	URL  string
}

// ParseLocator selects the backend kind from the locator scheme.
// An empty value or "default" selects the in-process store.
func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == string(KindDefault) {
		return Locator{Kind: KindDefault}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, fmt.Errorf("invalid backend locator: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss":
		return Locator{Kind: KindRedis, URL: raw}, nil
	case "mysql":
		return Locator{Kind: KindMySQL, URL: raw}, nil
	case "postgres", "postgresql":
		return Locator{Kind: KindPostgres, URL: raw}, nil
	case "sqlite":
		return Locator{Kind: KindSQLite, URL: raw}, nil
	default:
		return Locator{}, fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
}
