// Package artifact tracks the images produced during a session.
package artifact

import (
	"strings"
	"sync"
)

// Reference identifies a generated or edited image. At least one of URL or
// B64JSON is set; the image service returns one or the other depending on
// the requested response format.
type Reference struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// IsZero reports whether the reference carries neither a URL nor a payload.
func (r Reference) IsZero() bool {
	return strings.TrimSpace(r.URL) == "" && r.B64JSON == ""
}

// Cache holds the references produced by the most recent successful image
// tool call, most recent first. A session owns one Cache and hands it to
// every tool invocation.
type Cache struct {
	mu   sync.RWMutex
	refs []Reference // immutable once published
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps the cache contents for refs in one step. Zero references are
// skipped. Readers see either the old snapshot or the new one, never an empty
// cache in between.
func (c *Cache) Replace(refs []Reference) {
	next := make([]Reference, 0, len(refs))
	for _, r := range refs {
		if !r.IsZero() {
			next = append(next, r)
		}
	}

	c.mu.Lock()
	c.refs = next
	c.mu.Unlock()
}

// Latest returns the most recent reference.
func (c *Cache) Latest() (Reference, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.refs) == 0 {
		return Reference{}, false
	}
	return c.refs[0], true
}

// Snapshot returns a copy of the current contents.
func (c *Cache) Snapshot() []Reference {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make([]Reference, len(c.refs))
	copy(cp, c.refs)
	return cp
}

// URLs returns the URLs of the cached references, skipping inline-only entries.
func (c *Cache) URLs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	urls := make([]string, 0, len(c.refs))
	for _, r := range c.refs {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// Len returns the number of cached references.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.refs)
}
