package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHostSet(t *testing.T) {
	set := NewHostSet()

	assert.NotNil(t, set)
	assert.NotNil(t, set.items)
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, set.Hosts())
}

func TestHostSet_AddContains(t *testing.T) {
	set := NewHostSet("a.com")

	assert.True(t, set.Contains("a.com"))
	assert.False(t, set.Contains("b.com"))

	assert.True(t, set.Add("b.com"))
	assert.False(t, set.Add("b.com"), "second add is a no-op")
	assert.True(t, set.Contains("b.com"))
	assert.Equal(t, 2, set.Len())
}

func TestHostSet_PreservesInsertionOrder(t *testing.T) {
	set := NewHostSet("z.com", "a.com", "z.com")
	set.Add("m.com")

	assert.Equal(t, []string{"z.com", "a.com", "m.com"}, set.Hosts())
}

func TestLoadHostSet_MissingFile(t *testing.T) {
	set, err := LoadHostSet(filepath.Join(t.TempDir(), "badhosts.json"))

	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestLoadHostSet_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badhosts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadHostSet(path)
	assert.Error(t, err)
}

func TestHostSet_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "badhosts.json")

	set := NewHostSet("foo.com", "foo.net")
	require.NoError(t, set.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"foo.com\",\n  \"foo.net\"\n]\n", string(data))

	loaded, err := LoadHostSet(path)
	require.NoError(t, err)
	assert.Equal(t, set.Hosts(), loaded.Hosts())

	// Saving again fully rewrites the file.
	loaded.Add("foo.org")
	require.NoError(t, loaded.Save(path))

	reloaded, err := LoadHostSet(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.com", "foo.net", "foo.org"}, reloaded.Hosts())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestHostSet_SaveEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badhosts.json")
	require.NoError(t, NewHostSet().Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestHostSet_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := NewHostSet("a.com").Save(filepath.Join(blocker, "badhosts.json"))
	assert.Error(t, err)
}

func TestHostSet_Concurrency(t *testing.T) {
	set := NewHostSet()
	var wg sync.WaitGroup
	numGoroutines := 50

	for i := range numGoroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			host := fmt.Sprintf("host-%d.com", id%10)
			set.Add(host)
			_ = set.Contains(host)
			_ = set.Hosts()
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 10, set.Len())
}
