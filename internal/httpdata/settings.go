package httpdata

import (
	"time"

	"github.com/SolarDomo/HttpData/internal/download"
	"github.com/SolarDomo/HttpData/internal/loadstat"
	"github.com/SolarDomo/HttpData/internal/retry"
	"github.com/SolarDomo/HttpData/internal/transport"
)

// Settings configure a Client. Start from DefaultSettings.
type Settings struct {
	// BaseURL pins every request to one scheme://host. Relative URLs are resolved against it.
	BaseURL string
	// OnlyHTTPS rejects plain http URLs. A proxy always forces it.
	OnlyHTTPS bool

	// PreLoadTimeout is the wait before the first attempt and the unit of the retry backoff.
	PreLoadTimeout     time.Duration
	RetriesCount       int
	RetriesStopGrowing int
	// DownloadTimeout bounds a single attempt.
	DownloadTimeout time.Duration

	StrategyFileName download.NamingStrategy
	DownloadDir      string
	ChunkSize        int64
	// ClearDownloadDir makes Close trim DownloadDir to SkipFilesWhenClear files
	// (none for Random names). Off by default so partial downloads can be resumed.
	ClearDownloadDir   bool
	SkipFilesWhenClear int

	UseDefaultBrowserSettings bool
	Headers                   map[string]string
	PostContentType           string
	CookiesPath               string

	Proxy              string
	ProxyUser          string
	ProxyPassword      string
	InsecureSkipVerify bool

	// RateLimit is in requests per second; zero disables pacing.
	RateLimit float64
	RateBurst int

	HideSecrets      bool
	LoadReportSpec   string
	MetricsFlushSpec string
}

func DefaultSettings() Settings {
	return Settings{
		OnlyHTTPS:                 true,
		PreLoadTimeout:            time.Second,
		RetriesCount:              5,
		RetriesStopGrowing:        8,
		DownloadTimeout:           transport.DefaultTimeout,
		StrategyFileName:          download.PathGet,
		DownloadDir:               "tempDownloads",
		ChunkSize:                 download.DefaultChunkSize,
		SkipFilesWhenClear:        20,
		UseDefaultBrowserSettings: true,
		RateBurst:                 1,
		HideSecrets:               true,
		LoadReportSpec:            loadstat.DefaultReportSpec,
	}
}

// DefaultShufflerSettings are used for requests made through pooled identities.
func DefaultShufflerSettings() Settings {
	s := DefaultSettings()
	s.RetriesCount = 3
	s.PreLoadTimeout = 2 * time.Second
	return s
}

func (s Settings) Policy() retry.Policy {
	return retry.Policy{
		InitialDelay:     s.PreLoadTimeout,
		AttemptLimit:     s.RetriesCount,
		GrowthCapAttempt: s.RetriesStopGrowing,
	}
}

// keepOnClear is how many downloaded files survive a directory cleanup.
func (s Settings) keepOnClear() int {
	if s.StrategyFileName == download.Random {
		return 0
	}
	return s.SkipFilesWhenClear
}
