package httpdata

import (
	"net/url"
	"strings"
)

// parseBaseURL validates the pinned base. An empty base means no pinning.
func parseBaseURL(raw string, onlyHTTPS bool) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigError{URL: raw, Reason: "bad base url: " + err.Error()}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &ConfigError{URL: raw, Reason: "base url must be absolute"}
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if onlyHTTPS {
			return nil, &ConfigError{URL: raw, Reason: "only https base url allowed"}
		}
	default:
		return nil, &ConfigError{URL: raw, Reason: "only http and https base url allowed"}
	}
	return u, nil
}

// checkURL validates raw against the base and scheme rules and returns the URL to request.
func checkURL(base *url.URL, raw string, onlyHTTPS bool) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", &ConfigError{URL: raw, Reason: err.Error()}
	}
	absolute := u.IsAbs() && u.Host != ""

	if base == nil {
		if !absolute {
			return "", &ConfigError{URL: raw, Reason: "need absolute path"}
		}
		switch strings.ToLower(u.Scheme) {
		case "https":
			return raw, nil
		case "http":
			if onlyHTTPS {
				return "", &ConfigError{URL: raw, Reason: "only https allowed"}
			}
			return raw, nil
		default:
			return "", &ConfigError{URL: raw, Reason: "only http and https allowed"}
		}
	}

	if u.Host != "" {
		// scheme-relative references inherit the base scheme
		if u.Scheme == "" {
			u.Scheme = base.Scheme
		}
		if authority(u) != authority(base) {
			return "", &ConfigError{URL: raw, Reason: "only site '" + authority(base) + "' allowed"}
		}
		return u.String(), nil
	}
	if u.IsAbs() {
		return "", &ConfigError{URL: raw, Reason: "need absolute path"}
	}
	return base.ResolveReference(u).String(), nil
}

func authority(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
