package ows

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ServiceContext is the descriptive metadata of a service instance, read
// from its context file.
type ServiceContext struct {
	Title             string   `yaml:"title" json:"title"`
	Abstract          string   `yaml:"abstract" json:"abstract"`
	Keywords          []string `yaml:"keywords" json:"keywords"`
	Provider          string   `yaml:"provider" json:"provider"`
	ProviderSite      string   `yaml:"provider_site" json:"provider_site"`
	Fees              string   `yaml:"fees" json:"fees"`
	AccessConstraints string   `yaml:"access_constraints" json:"access_constraints"`
}

// LoadServiceContext reads a YAML context file.
func LoadServiceContext(path string) (*ServiceContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc ServiceContext
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse context file %s: %w", path, err)
	}
	return &sc, nil
}

// Capabilities is a rendered capabilities document. Serializing it to the
// protocol's XML schema is left to the protocol front end.
type Capabilities struct {
	Specification  Specification     `json:"specification"`
	ServiceID      string            `json:"service_id"`
	Version        string            `json:"version"`
	Language       string            `json:"language,omitempty"`
	ServiceURL     string            `json:"service_url"`
	UpdateSequence string            `json:"update_sequence"`
	Service        ServiceContext    `json:"service"`
	Operations     []string          `json:"operations"`
	Languages      []string          `json:"languages,omitempty"`
	Extensions     map[string]string `json:"extensions,omitempty"`
	// Unchanged marks the minimal answer sent to a client that already holds
	// the current update sequence.
	Unchanged bool `json:"unchanged,omitempty"`
}

// clone returns a copy safe to modify.
func (c *Capabilities) clone() *Capabilities {
	out := *c
	out.Service.Keywords = append([]string(nil), c.Service.Keywords...)
	out.Operations = append([]string(nil), c.Operations...)
	out.Languages = append([]string(nil), c.Languages...)
	if c.Extensions != nil {
		out.Extensions = make(map[string]string, len(c.Extensions))
		for k, v := range c.Extensions {
			out.Extensions[k] = v
		}
	}
	return &out
}

// CacheKey is the capabilities cache key of a rendered document.
func CacheKey(spec Specification, id, version, language string) string {
	return string(spec) + "-" + id + "-" + version + "-" + language
}

// CapabilitiesCache holds rendered capabilities documents for every service
// of the process.
type CapabilitiesCache struct {
	mu      sync.RWMutex
	entries map[string]*Capabilities
}

// NewCapabilitiesCache creates an empty cache.
func NewCapabilitiesCache() *CapabilitiesCache {
	return &CapabilitiesCache{entries: make(map[string]*Capabilities)}
}

// Get returns a copy of the cached document with its service URL replaced
// by serviceURL, which varies per request while the content does not.
func (c *CapabilitiesCache) Get(key, serviceURL string) (*Capabilities, bool) {
	c.mu.RLock()
	caps, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	out := caps.clone()
	if serviceURL != "" {
		out.ServiceURL = serviceURL
	}
	return out, true
}

// Put stores a copy of caps under key.
func (c *CapabilitiesCache) Put(key string, caps *Capabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = caps.clone()
}

// Clear removes every entry of spec.
func (c *CapabilitiesCache) Clear(spec Specification) int {
	prefix := string(spec) + "-"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Keys returns the cached keys, sorted.
func (c *CapabilitiesCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (c *CapabilitiesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
