package artifact

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEmpty(t *testing.T) {
	c := NewCache()
	_, ok := c.Latest()
	assert.False(t, ok)
	assert.Empty(t, c.Snapshot())
	assert.Empty(t, c.URLs())
	assert.Equal(t, 0, c.Len())
}

func TestCacheReplaceDiscardsPrevious(t *testing.T) {
	c := NewCache()
	c.Replace([]Reference{{URL: "http://x/a.png"}, {URL: "http://x/b.png"}})
	c.Replace([]Reference{{URL: "http://x/c.png"}})

	assert.Equal(t, []string{"http://x/c.png"}, c.URLs())
	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, "http://x/c.png", latest.URL)
}

func TestCacheReplaceKeepsOrderAndSkipsZero(t *testing.T) {
	c := NewCache()
	c.Replace([]Reference{{URL: "http://x/1.png"}, {}, {B64JSON: "aGVsbG8="}, {URL: "http://x/2.png"}})

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"http://x/1.png", "http://x/2.png"}, c.URLs())
	latest, _ := c.Latest()
	assert.Equal(t, "http://x/1.png", latest.URL)
}

func TestCacheSnapshotIsACopy(t *testing.T) {
	c := NewCache()
	c.Replace([]Reference{{URL: "http://x/a.png"}})

	snap := c.Snapshot()
	snap[0].URL = "mutated"

	latest, _ := c.Latest()
	assert.Equal(t, "http://x/a.png", latest.URL)
}

func TestCacheReplaceDoesNotAliasInput(t *testing.T) {
	c := NewCache()
	in := []Reference{{URL: "http://x/a.png"}}
	c.Replace(in)
	in[0].URL = "mutated"

	assert.Equal(t, []string{"http://x/a.png"}, c.URLs())
}

func TestCacheConcurrentReplaceNeverEmpty(t *testing.T) {
	c := NewCache()
	c.Replace([]Reference{{URL: "http://x/seed.png"}})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				c.Replace([]Reference{{URL: "http://x/w.png"}})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_, ok := c.Latest()
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}
