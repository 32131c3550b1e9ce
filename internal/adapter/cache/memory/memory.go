// Package memory provides an in-process match cache for the CLI and tests.
package memory

import (
	"sync"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

type key struct{ structure, resume, version string }

// MatchCache keeps results in a map. First write wins, like the durable store.
type MatchCache struct {
	mu   sync.RWMutex
	rows map[key]domain.MatchResult
}

// New returns an empty cache.
func New() *MatchCache { return &MatchCache{rows: make(map[key]domain.MatchResult)} }

// Lookup implements domain.MatchCache.
func (c *MatchCache) Lookup(_ domain.Context, structureHash, resumeID string) (domain.MatchResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.rows[key{structureHash, resumeID, domain.EngineVersion}]
	return m, ok, nil
}

// LookupMany implements domain.MatchCache.
func (c *MatchCache) LookupMany(ctx domain.Context, structureHash string, resumeIDs []string) (map[string]domain.MatchResult, error) {
	out := make(map[string]domain.MatchResult, len(resumeIDs))
	for _, id := range resumeIDs {
		if m, ok, _ := c.Lookup(ctx, structureHash, id); ok {
			out[id] = m
		}
	}
	return out, nil
}

// Store implements domain.MatchCache.
func (c *MatchCache) Store(_ domain.Context, m domain.MatchResult) error {
	if m.EngineVersion == "" {
		m.EngineVersion = domain.EngineVersion
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{m.StructureHash, m.ResumeID, m.EngineVersion}
	if _, exists := c.rows[k]; !exists {
		c.rows[k] = m
	}
	return nil
}

// Len reports the number of stored rows.
func (c *MatchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}
