package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
)

var ErrNoDatabase = errors.New("geoip database not loaded")

// Resolver maps a visitor IP to an ISO-3166-1 alpha-2 code, "" when unknown.
type Resolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

// MMDBResolver reads a GeoLite2/GeoIP2 country database. The file is opened
// on first lookup and swapped in place by Reload when its mtime changes.
type MMDBResolver struct {
	path    string
	once    sync.Once
	mu      sync.RWMutex
	db      *geoip2.Reader
	modTime time.Time
}

func NewMMDBResolver(path string) *MMDBResolver {
	return &MMDBResolver{path: path}
}

func (r *MMDBResolver) Country(_ context.Context, ip string) (string, error) {
	r.once.Do(func() {
		_, _ = r.Reload()
	})

	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return "", nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return "", fmt.Errorf("%w: %s", ErrNoDatabase, r.path)
	}
	record, err := r.db.Country(parsed)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Reload opens the database again if the file changed since the last load.
// Readers in flight finish on the old handle before it is closed.
func (r *MMDBResolver) Reload() (bool, error) {
	if r.path == "" {
		return false, ErrNoDatabase
	}
	fi, err := os.Stat(r.path)
	if err != nil {
		return false, err
	}

	r.mu.RLock()
	unchanged := r.db != nil && !fi.ModTime().After(r.modTime)
	r.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	db, err := geoip2.Open(r.path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", r.path, err)
	}
	r.mu.Lock()
	old := r.db
	r.db = db
	r.modTime = fi.ModTime()
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return true, nil
}

func (r *MMDBResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// StaticResolver answers from a fixed table; used in tests and for local setups.
type StaticResolver map[string]string

func (s StaticResolver) Country(_ context.Context, ip string) (string, error) {
	return strings.ToUpper(s[strings.TrimSpace(ip)]), nil
}
