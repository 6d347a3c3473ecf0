package download

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFileName(t *testing.T) {
	name, err := ResolveFileName(PathGet, "https://cdn.example.com/dumps/2020.tar.gz?v=2&a=1", "")
	require.NoError(t, err)
	assert.Equal(t, "2020.tar.gz#a=1,v=2", name)

	again, err := ResolveFileName(PathGet, "https://cdn.example.com/dumps/2020.tar.gz?a=1&v=2", "")
	require.NoError(t, err)
	assert.Equal(t, name, again)

	name, err = ResolveFileName(PathGet, "https://cdn.example.com/", "")
	require.NoError(t, err)
	assert.Equal(t, "index", name)

	name, err = ResolveFileName(Specify, "https://cdn.example.com/a", "../my:file.bin")
	require.NoError(t, err)
	assert.Equal(t, "..myfile.bin", name)

	_, err = ResolveFileName(Specify, "https://cdn.example.com/a", "")
	assert.Equal(t, ErrFileNameRequired, err)

	r1, err := ResolveFileName(Random, "https://cdn.example.com/a", "")
	require.NoError(t, err)
	r2, _ := ResolveFileName(Random, "https://cdn.example.com/a", "")
	assert.Len(t, r1, 36)
	assert.NotEqual(t, r1, r2)
}

func TestResolveFileNameRejectsDirectoryNames(t *testing.T) {
	for _, name := range []string{".", "..", "/", "?*"} {
		_, err := ResolveFileName(PathGet, "https://cdn.example.com/a.bin", name)
		assert.True(t, errors.Is(err, ErrFileNameRequired), name)
	}

	_, err := ResolveFileName(PathGet, "http://files.test/a/..", "")
	assert.True(t, errors.Is(err, ErrFileNameRequired))
	_, err = ResolveFileName(PathGet, "http://files.test/a/.", "")
	assert.True(t, errors.Is(err, ErrFileNameRequired))

	name, err := ResolveFileName(PathGet, "http://files.test/a/..?v=1", "")
	require.NoError(t, err)
	assert.Equal(t, "..#v=1", name)
}

func TestParseNamingStrategy(t *testing.T) {
	data := map[string]NamingStrategy{
		"":        PathGet,
		"PathGet": PathGet,
		"random":  Random,
		"Specify": Specify,
	}
	for in, want := range data {
		got, err := ParseNamingStrategy(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseNamingStrategy("guess")
	assert.Error(t, err)
}

func listNames(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	require.NoError(t, ClearDir(dir, 2))
	assert.Equal(t, []string{"d", "e", "sub"}, listNames(t, dir))

	require.NoError(t, ClearDir(dir, 20))
	assert.Equal(t, []string{"d", "e", "sub"}, listNames(t, dir))

	require.NoError(t, ClearDir(dir, 0))
	assert.Equal(t, []string{"sub"}, listNames(t, dir))
}

func TestClearDirCreatesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tempDownloads")
	require.NoError(t, ClearDir(dir, 20))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
