package httpdata

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// CookieJar is a name to value cookie store that can be saved between runs.
type CookieJar struct {
	mutex   sync.Mutex
	cookies map[string]string
}

func NewCookieJar() *CookieJar {
	return &CookieJar{cookies: make(map[string]string)}
}

func (j *CookieJar) Cookies() map[string]string {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	out := make(map[string]string, len(j.cookies))
	for k, v := range j.cookies {
		out[k] = v
	}
	return out
}

func (j *CookieJar) SetCookie(key, value string) {
	j.mutex.Lock()
	j.cookies[key] = value
	j.mutex.Unlock()
}

// Load merges the cookies saved at path. A missing file is not an error.
func (j *CookieJar) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	saved := make(map[string]string)
	if err := json.Unmarshal(data, &saved); err != nil {
		return err
	}

	j.mutex.Lock()
	for k, v := range saved {
		j.cookies[k] = v
	}
	j.mutex.Unlock()
	return nil
}

func (j *CookieJar) Save(path string) error {
	data, err := json.Marshal(j.Cookies())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0600)
}
