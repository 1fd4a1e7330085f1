package versioning

import (
	"fmt"
	"strings"
	"time"
)

// Default option values.
const (
	DefaultHistoryCollection = "versions"
	DefaultLeaseCollection   = "leases"
	DefaultLeaseTTL          = 30 * time.Second
	DefaultTenantField       = "companyId"
)

// Options configures a Guard.
type Options struct {
	// Collection holding the live records. Required.
	Collection string
	// HistoryCollection holding the history records (default "versions").
	HistoryCollection string
	// LeaseCollection holding the per-record write leases (default "leases").
	LeaseCollection string
	// LeaseTTL is the time after which an abandoned write lease may be taken over (default 30s).
	LeaseTTL time.Duration
	// TenantField is the payload field copied onto tombstones (default "companyId").
	// An empty value after defaulting is not possible, use a field name that never occurs to disable it.
	TenantField string
	// LogErrors logs every failed mutation at error level. Errors are returned either way.
	LogErrors bool
	// Now returns the current time, used for changedAt and lease expiry (default time.Now).
	Now func() time.Time
}

// DefaultOptions returns the default options for the given live collection.
func DefaultOptions(collection string) *Options {
	return &Options{
		Collection:        collection,
		HistoryCollection: DefaultHistoryCollection,
		LeaseCollection:   DefaultLeaseCollection,
		LeaseTTL:          DefaultLeaseTTL,
		TenantField:       DefaultTenantField,
		Now:               time.Now,
	}
}

// withDefaults returns a copy of the options with every unset field defaulted.
func (o Options) withDefaults() Options {
	if o.HistoryCollection == "" {
		o.HistoryCollection = DefaultHistoryCollection
	}
	if o.LeaseCollection == "" {
		o.LeaseCollection = DefaultLeaseCollection
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = DefaultLeaseTTL
	}
	if o.TenantField == "" {
		o.TenantField = DefaultTenantField
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) validate() error {
	if o.Collection == "" {
		return fmt.Errorf("versioning: collection must be set")
	}
	names := map[string]string{
		"collection":         o.Collection,
		"history collection": o.HistoryCollection,
		"lease collection":   o.LeaseCollection,
	}
	seen := make(map[string]string, len(names))
	for what, name := range names {
		if strings.ContainsAny(name, "/#") {
			return fmt.Errorf("versioning: %s %q must not contain '/' or '#'", what, name)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("versioning: %s and %s must differ (both %q)", what, other, name)
		}
		seen[name] = what
	}
	for _, f := range reservedFields {
		if o.TenantField == f {
			return fmt.Errorf("versioning: tenant field %q is reserved", f)
		}
	}
	return nil
}

// String returns a readable representation of the options.
func (o Options) String() string {
	return fmt.Sprintf("collection=%s history=%s leases=%s leaseTTL=%s tenantField=%s logErrors=%t",
		o.Collection, o.HistoryCollection, o.LeaseCollection, o.LeaseTTL, o.TenantField, o.LogErrors)
}
