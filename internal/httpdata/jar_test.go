package httpdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieJarPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")

	jar := NewCookieJar()
	require.NoError(t, jar.Load(path))
	assert.Empty(t, jar.Cookies())

	jar.SetCookie("session", "abc")
	jar.SetCookie("lang", "en")
	require.NoError(t, jar.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := NewCookieJar()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, map[string]string{"session": "abc", "lang": "en"}, loaded.Cookies())

	cookies := loaded.Cookies()
	cookies["session"] = "changed"
	assert.Equal(t, "abc", loaded.Cookies()["session"])
}

func TestCookieJarLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))
	assert.Error(t, NewCookieJar().Load(path))
}
