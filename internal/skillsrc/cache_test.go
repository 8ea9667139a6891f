package skillsrc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	cache.Set("https://example.com/skill.md", "# Skill Content")

	content, ok := cache.Get("https://example.com/skill.md")
	assert.True(t, ok)
	assert.Equal(t, "# Skill Content", content)
}

func TestCache_Miss(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	content, ok := cache.Get("https://example.com/nonexistent.md")
	assert.False(t, ok)
	assert.Equal(t, "", content)
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)
	cache.Set("key", "content")

	content, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "content", content)

	time.Sleep(60 * time.Millisecond)

	_, ok = cache.Get("key")
	assert.False(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	cache.Set("key", "old")
	cache.Set("key", "new")

	content, ok := cache.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "new", content)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Set("shared-key", "content")
		}()
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Get("shared-key")
		}()
	}
	wg.Wait()

	content, ok := cache.Get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "content", content)
}
