package download

import (
	"fmt"
	"strings"

	"github.com/SolarDomo/HttpData/pkg/utils"
	uuid "github.com/satori/go.uuid"
)

// NamingStrategy decides the local file name of a stream download when the caller gives none.
type NamingStrategy int

const (
	// PathGet derives the name from the URL path and query.
	PathGet NamingStrategy = iota
	// Random uses a fresh uuid for every download.
	Random
	// Specify requires the caller to name the file.
	Specify
)

func (s NamingStrategy) String() string {
	switch s {
	case PathGet:
		return "pathget"
	case Random:
		return "random"
	case Specify:
		return "specify"
	default:
		return fmt.Sprintf("NamingStrategy(%d)", int(s))
	}
}

func ParseNamingStrategy(s string) (NamingStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pathget", "path_get", "path":
		return PathGet, nil
	case "random":
		return Random, nil
	case "specify":
		return Specify, nil
	}
	return PathGet, fmt.Errorf("unknown file naming strategy %q", s)
}

// usableName rejects names that would resolve to the directory itself or its parent.
func usableName(name string) bool {
	return name != "" && name != "." && name != ".."
}

// ResolveFileName returns the bare file name for url. A non-empty name always wins.
func ResolveFileName(strategy NamingStrategy, url, name string) (string, error) {
	if name = strings.TrimSpace(name); name != "" {
		if safe := utils.SafeFileName(name); usableName(safe) {
			return safe, nil
		}
		return "", fmt.Errorf("%w: unusable name %q", ErrFileNameRequired, name)
	}

	switch strategy {
	case PathGet:
		fileName := utils.GetURLSaveFileName(url)
		if !usableName(fileName) {
			return "", fmt.Errorf("%w: cannot derive a name from %q", ErrFileNameRequired, url)
		}
		return fileName, nil
	case Random:
		return uuid.NewV4().String(), nil
	case Specify:
		return "", ErrFileNameRequired
	}
	return "", fmt.Errorf("unknown file naming strategy %d", int(strategy))
}
