package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key("lena.jpg", "full/max/0/default.jpg")
	assert.Equal(t, k, Key("lena.jpg", "full/max/0/default.jpg"))
	assert.Len(t, k, 64)

	assert.NotEqual(t, k, Key("lena.jpg", "full/max/0/default.png"))
	assert.NotEqual(t, k, Key("lena.jpg:page:1", "full/max/0/default.jpg"))
	assert.NotEqual(t, Key("a1", "0,0,1,1/max/0/default.jpg"), Key("a", "10,0,1,1/max/0/default.jpg"))
}

func TestMemory(t *testing.T) {
	m := NewMemory(100)
	assert.EqualValues(t, 100, m.Capacity())

	_, err := m.Get("a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, m.Set("a", make([]byte, 39)))
	require.NoError(t, m.Set("b", make([]byte, 39)))
	assert.EqualValues(t, 80, m.Bytes())

	// touch a so that b is the oldest
	_, err = m.Get("a")
	require.NoError(t, err)

	require.NoError(t, m.Set("c", make([]byte, 39)))
	assert.Equal(t, 2, m.Len())
	assert.LessOrEqual(t, m.Bytes(), m.Capacity())

	_, err = m.Get("b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = m.Get("a")
	assert.NoError(t, err)
	_, err = m.Get("c")
	assert.NoError(t, err)
}

func TestMemoryReplace(t *testing.T) {
	m := NewMemory(100)

	require.NoError(t, m.Set("a", make([]byte, 10)))
	require.NoError(t, m.Set("a", make([]byte, 20)))
	assert.EqualValues(t, 21, m.Bytes())
	assert.Equal(t, 1, m.Len())
}

func TestMemoryTooLarge(t *testing.T) {
	m := NewMemory(10)

	require.NoError(t, m.Set("a", make([]byte, 20)))
	assert.Equal(t, 0, m.Len())
	assert.EqualValues(t, 0, m.Bytes())
}

func TestMemoryConcurrent(t *testing.T) {
	m := NewMemory(1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := Key(string(rune('a'+i)), string(rune('a'+j)))
				_ = m.Set(key, make([]byte, j))
				_, _ = m.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Bytes(), m.Capacity())
}

func TestDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tiles")
	d, err := NewDisk(root)
	require.NoError(t, err)
	assert.Equal(t, root, d.Root())

	_, err = d.Get("nope")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, d.Set("abc", []byte("hello")))
	body, err := d.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)

	require.NoError(t, d.Set("abc", []byte("world")))
	body, err = d.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), body)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file is left behind")
}

// countingCache wraps a tier and counts the reads.
type countingCache struct {
	Cache
	mu    sync.Mutex
	reads int
	fail  bool
}

func (c *countingCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.Cache.Get(key)
}

func (c *countingCache) Set(key string, body []byte) error {
	if c.fail {
		return errors.New("disk full")
	}
	return c.Cache.Set(key, body)
}

func TestTileCachePromotes(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	disk := &countingCache{Cache: d}

	key := Key("lena.jpg", "full/max/0/default.jpg")
	require.NoError(t, d.Set(key, []byte("tile")))

	c := New(NewMemory(1<<20), disk)

	body, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("tile"), body)
	assert.Equal(t, 1, disk.reads)

	body, ok = c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("tile"), body)
	assert.Equal(t, 1, disk.reads, "the second read comes from memory")

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.MemoryHits)
	assert.EqualValues(t, 1, stats.MemoryMisses)
	assert.EqualValues(t, 1, stats.DiskHits)
	assert.EqualValues(t, 1, stats.DiskReads)
}

func TestTileCacheMiss(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	c := New(NewMemory(1<<20), d)

	_, ok := c.Get(Key("x", "y"))
	assert.False(t, ok)
	assert.EqualValues(t, 1, c.Stats().DiskMisses)
}

func TestTileCacheSet(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	m := NewMemory(1 << 20)
	c := New(m, d)

	key := Key("lena.jpg", "square/max/0/default.png")
	c.Set(key, []byte("tile"))

	body, err := m.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("tile"), body)

	body, err = d.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("tile"), body)
}

func TestTileCacheDiskFailure(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)

	c := New(NewMemory(1<<20), &countingCache{Cache: d, fail: true})

	key := Key("lena.jpg", "full/max/0/default.jpg")
	c.Set(key, []byte("tile"))

	body, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("tile"), body)
	assert.EqualValues(t, 1, c.Stats().DiskWriteErrors)
}
