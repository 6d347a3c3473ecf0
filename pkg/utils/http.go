package utils

import (
	"net/url"
	"sort"
	"strings"
)

func GetPathLastPart(str string) string {
	u, e := url.Parse(str)
	if e != nil {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	return parts[len(parts)-1]
}

func GetQueryPart(str string) string {
	u, e := url.Parse(str)
	if e != nil {
		return ""
	}
	return u.RawQuery
}

// GetURLSaveFileName derives a file name from the last path segment and the query.
// Query parameters are sorted so the same URL always maps to the same name.
func GetURLSaveFileName(str string) string {
	if _, e := url.Parse(str); e != nil {
		return ""
	}

	fileName := GetPathLastPart(str)
	if fileName == "" {
		fileName = "index"
	}
	if query := sortedQuery(GetQueryPart(str)); query != "" {
		fileName += "#" + query
	}
	return SafeFileName(fileName)
}

// sortedQuery renders rawQuery as "k=v,k=v" ordered by key.
func sortedQuery(rawQuery string) string {
	query, _ := url.ParseQuery(rawQuery)
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		for _, val := range query[key] {
			pairs = append(pairs, key+"="+val)
		}
	}
	return strings.Join(pairs, ",")
}

// SafeFileName drops path separators, reserved characters and control characters.
func SafeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name)
}

var secretParams = []string{"key", "token", "secret", "pass", "pswd"}

// HideSecrets masks the values of query parameters that look like credentials.
func HideSecrets(rawURL string) string {
	i := strings.IndexByte(rawURL, '?')
	if i < 0 || i == len(rawURL)-1 {
		return rawURL
	}

	pairs := strings.Split(rawURL[i+1:], "&")
	hidden := false
	for n, pair := range pairs {
		key := pair
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			key = pair[:eq]
		}
		if isSecretParam(key) {
			pairs[n] = key + "=***"
			hidden = true
		}
	}
	if !hidden {
		return rawURL
	}
	return rawURL[:i+1] + strings.Join(pairs, "&")
}

func isSecretParam(key string) bool {
	if k, err := url.QueryUnescape(key); err == nil {
		key = k
	}
	key = strings.ToLower(key)
	for _, s := range secretParams {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
