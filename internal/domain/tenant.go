package domain

import (
	"fmt"
	"time"
)

// CommunicationStyle holds the tenant's customer-facing voice parameters.
// The aggregator applies these when composing replies.
type CommunicationStyle struct {
	Tone          string `json:"tone"`
	Greeting      string `json:"greeting"`
	BusinessHours string `json:"business_hours"`
}

// TenantConfig represents one tenant's operating parameters. Instances are
// immutable once resolved: the cache replaces them atomically as whole
// values, never field by field.
type TenantConfig struct {
	TenantID    string             `json:"tenant_id"`
	Domain      string             `json:"domain"`
	Collections []string           `json:"collections"`
	BackendRef  string             `json:"backend_ref"`
	Style       CommunicationStyle `json:"style"`
	Version     int64              `json:"version"`
	ETag        string             `json:"etag,omitempty"`
	FetchedAt   time.Time          `json:"-"`
}

// CollectionEnabled reports whether the named retrieval collection is in the
// tenant's enabled set.
func (c *TenantConfig) CollectionEnabled(name string) bool {
	for _, collection := range c.Collections {
		if collection == name {
			return true
		}
	}
	return false
}

// ValidateTenantConfig validates a TenantConfig instance
func ValidateTenantConfig(c *TenantConfig) error {
	if c == nil {
		return fmt.Errorf("tenant config cannot be nil")
	}

	if c.TenantID == "" {
		return fmt.Errorf("tenant config TenantID is required")
	}

	if c.Version < 0 {
		return fmt.Errorf("tenant config Version cannot be negative")
	}

	seen := make(map[string]bool, len(c.Collections))
	for _, collection := range c.Collections {
		if collection == "" {
			return fmt.Errorf("tenant config Collections cannot contain empty names")
		}
		if seen[collection] {
			return fmt.Errorf("tenant config Collections contains duplicate: %s", collection)
		}
		seen[collection] = true
	}

	return nil
}
