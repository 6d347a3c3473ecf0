package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity(t *testing.T) {
	direct := Direct()
	assert.True(t, direct.IsDirect())
	assert.Equal(t, "", direct.DialAddress())
	assert.Len(t, direct.ID, 20)

	p := NewIdentity("http://10.0.0.7:3128", "bob", "hunter2")
	assert.False(t, p.IsDirect())
	assert.Equal(t, "bob:hunter2@10.0.0.7:3128", p.DialAddress())
	assert.NotContains(t, p.String(), "hunter2")
	assert.NotEqual(t, direct.ID, p.ID)
	assert.True(t, p.Equal(NewIdentity("http://10.0.0.7:3128", "bob", "other")))
	assert.False(t, p.Equal(NewIdentity("http://10.0.0.7:3128", "alice", "hunter2")))
	assert.False(t, p.Equal(nil))
}

func TestIdentityCookies(t *testing.T) {
	p := NewIdentity("10.0.0.7:3128", "", "")
	assert.Empty(t, p.Cookies())

	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.SetCookie("session", "abc")
			_ = p.Cookies()
		}()
	}
	wg.Wait()

	cookies := p.Cookies()
	assert.Equal(t, "abc", cookies["session"])
	cookies["session"] = "changed"
	assert.Equal(t, "abc", p.Cookies()["session"])
}
