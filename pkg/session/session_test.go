package session

import (
	"context"
	"sync"
	"testing"

	"imagent/pkg/artifact"
	"imagent/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeedsSystemPrompt(t *testing.T) {
	s := New("", "你是图片助手")
	assert.Len(t, s.ID, 8)
	require.Equal(t, 1, s.History.Len())
	msgs := s.History.GetMessages()
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "你是图片助手", msgs[0].GetTextContent())
	assert.Equal(t, 0, s.Artifacts.Len())
}

func TestContextCarriesID(t *testing.T) {
	s := New("abc", "")
	ctx := s.Context(context.Background())
	assert.Equal(t, "abc", ctx.Value(llm.DebugDirContextKey))
}

func TestManagerIsolatesSessions(t *testing.T) {
	m := NewManager("sys")
	a := m.Get("a")
	b := m.Get("b")
	assert.Same(t, a, m.Get("a"))

	a.Artifacts.Replace([]artifact.Reference{{URL: "https://img/a.png"}})
	assert.Equal(t, 0, b.Artifacts.Len())

	c := m.Create()
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, 3, m.Len())
}

func TestManagerConcurrentGet(t *testing.T) {
	m := NewManager("sys")
	var wg sync.WaitGroup
	got := make([]*Session, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = m.Get("shared")
		}(i)
	}
	wg.Wait()
	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, m.Len())
}
