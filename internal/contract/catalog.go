package contract

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var contractName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// UnknownError reports a contract name the catalog will not serve. The
// message never includes the underlying cause, which may hold file
// contents or bucket details.
type UnknownError struct {
	Name  string
	Cause error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown contract %q", e.Name)
}

// Catalog serves contracts to untrusted callers by name. The empty name
// maps to the operator's configured source, "default" to the embedded
// contract, and any other plain name to <dir>/<name>.yaml, where dir is a
// local directory or an s3:// prefix. Paths and URIs are never accepted
// from callers.
type Catalog struct {
	cache    *Cache
	fallback string
	dir      string
}

// NewCatalog creates a catalog over cache. fallback is the operator's
// contract source; dir may be empty to serve only fallback and "default".
func NewCatalog(cache *Cache, fallback, dir string) *Catalog {
	return &Catalog{cache: cache, fallback: fallback, dir: strings.TrimSpace(dir)}
}

// Source maps a caller-supplied name to a loader source.
func (c *Catalog) Source(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		if c.fallback == "" {
			return DefaultSource, nil
		}
		return c.fallback, nil
	case name == DefaultSource:
		return DefaultSource, nil
	case !contractName.MatchString(name):
		return "", &UnknownError{Name: name, Cause: fmt.Errorf("name must match %s", contractName)}
	case c.dir == "":
		return "", &UnknownError{Name: name, Cause: fmt.Errorf("no contract directory configured")}
	case strings.HasPrefix(c.dir, "s3://"):
		return strings.TrimSuffix(c.dir, "/") + "/" + name + ".yaml", nil
	default:
		return filepath.Join(c.dir, name+".yaml"), nil
	}
}

// Get resolves name and returns its contract. Every failure is an
// *UnknownError.
func (c *Catalog) Get(ctx context.Context, name string) (*Contract, error) {
	src, err := c.Source(name)
	if err != nil {
		return nil, err
	}
	loaded, err := c.cache.Get(ctx, src)
	if err != nil {
		return nil, &UnknownError{Name: strings.TrimSpace(name), Cause: err}
	}
	return loaded, nil
}
