// Package config reads the httpdata settings file and HTTPDATA_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/SolarDomo/HttpData/internal/download"
	"github.com/SolarDomo/HttpData/internal/httpdata"
	"github.com/SolarDomo/HttpData/internal/logging"
	"github.com/SolarDomo/HttpData/internal/proxypool/storage"
	"github.com/spf13/viper"
)

const EnvPrefix = "HTTPDATA"

// File is everything the command line tool needs to build clients.
type File struct {
	Client        httpdata.Settings
	Log           logging.Config
	Proxies       []string
	ProxyUser     string
	ProxyPassword string
	Storage       storage.Config
}

type clientSection struct {
	BaseURL            string            `mapstructure:"base_url"`
	OnlyHTTPS          bool              `mapstructure:"only_https"`
	PreLoadTimeout     time.Duration     `mapstructure:"pre_load_timeout"`
	RetriesCount       int               `mapstructure:"retries_count"`
	RetriesStopGrowing int               `mapstructure:"retries_stop_growing"`
	DownloadTimeout    time.Duration     `mapstructure:"download_timeout"`
	StrategyFileName   string            `mapstructure:"strategy_file_name"`
	DownloadDir        string            `mapstructure:"download_dir"`
	ChunkSize          int64             `mapstructure:"chunk_size"`
	ClearDownloadDir   bool              `mapstructure:"clear_download_dir"`
	SkipFilesWhenClear int               `mapstructure:"skip_files_when_clear"`
	BrowserHeaders     bool              `mapstructure:"use_default_browser_settings"`
	Headers            map[string]string `mapstructure:"headers"`
	PostContentType    string            `mapstructure:"post_content_type"`
	CookiesPath        string            `mapstructure:"cookies_path"`
	Proxy              string            `mapstructure:"proxy"`
	ProxyUser          string            `mapstructure:"proxy_user"`
	ProxyPassword      string            `mapstructure:"proxy_password"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	RateLimit          float64           `mapstructure:"rate_limit"`
	RateBurst          int               `mapstructure:"rate_burst"`
	HideSecrets        bool              `mapstructure:"hide_secrets"`
	LoadReportSpec     string            `mapstructure:"load_report_spec"`
	MetricsFlushSpec   string            `mapstructure:"metrics_flush_spec"`
}

type rawFile struct {
	Client        clientSection  `mapstructure:"client"`
	Log           logging.Config `mapstructure:"log"`
	Proxies       []string       `mapstructure:"proxies"`
	ProxyUser     string         `mapstructure:"proxy_user"`
	ProxyPassword string         `mapstructure:"proxy_password"`
	Storage       storage.Config `mapstructure:"storage"`
}

func setDefaults(v *viper.Viper) {
	s := httpdata.DefaultSettings()
	v.SetDefault("client.base_url", s.BaseURL)
	v.SetDefault("client.only_https", s.OnlyHTTPS)
	v.SetDefault("client.pre_load_timeout", s.PreLoadTimeout)
	v.SetDefault("client.retries_count", s.RetriesCount)
	v.SetDefault("client.retries_stop_growing", s.RetriesStopGrowing)
	v.SetDefault("client.download_timeout", s.DownloadTimeout)
	v.SetDefault("client.strategy_file_name", s.StrategyFileName.String())
	v.SetDefault("client.download_dir", s.DownloadDir)
	v.SetDefault("client.chunk_size", s.ChunkSize)
	v.SetDefault("client.clear_download_dir", s.ClearDownloadDir)
	v.SetDefault("client.skip_files_when_clear", s.SkipFilesWhenClear)
	v.SetDefault("client.use_default_browser_settings", s.UseDefaultBrowserSettings)
	v.SetDefault("client.post_content_type", s.PostContentType)
	v.SetDefault("client.cookies_path", s.CookiesPath)
	v.SetDefault("client.proxy", s.Proxy)
	v.SetDefault("client.proxy_user", s.ProxyUser)
	v.SetDefault("client.proxy_password", s.ProxyPassword)
	v.SetDefault("client.insecure_skip_verify", s.InsecureSkipVerify)
	v.SetDefault("client.rate_limit", s.RateLimit)
	v.SetDefault("client.rate_burst", s.RateBurst)
	v.SetDefault("client.hide_secrets", s.HideSecrets)
	v.SetDefault("client.load_report_spec", s.LoadReportSpec)
	v.SetDefault("client.metrics_flush_spec", s.MetricsFlushSpec)

	l := logging.DefaultConfig()
	v.SetDefault("log.level", l.Level)
	v.SetDefault("log.format", l.Format)
	v.SetDefault("log.file", l.File)
	v.SetDefault("log.max_size_mb", l.MaxSizeMB)
	v.SetDefault("log.max_backups", l.MaxBackups)
	v.SetDefault("log.max_age_days", l.MaxAgeDays)
	v.SetDefault("log.compress", l.Compress)

	v.SetDefault("proxies", []string{})
	v.SetDefault("proxy_user", "")
	v.SetDefault("proxy_password", "")
	v.SetDefault("storage.dialect", storage.DefaultConfig.Dialect)
	v.SetDefault("storage.dsn", storage.DefaultConfig.DSN)
}

// Load reads path (any format viper understands) over the defaults.
// An empty path loads defaults and environment only.
func Load(path string) (*File, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	raw := rawFile{}
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return raw.toFile()
}

func (r rawFile) toFile() (*File, error) {
	strategy, err := download.ParseNamingStrategy(r.Client.StrategyFileName)
	if err != nil {
		return nil, err
	}
	if err := r.Storage.Validate(); err != nil {
		return nil, err
	}

	c := r.Client
	return &File{
		Client: httpdata.Settings{
			BaseURL:                   c.BaseURL,
			OnlyHTTPS:                 c.OnlyHTTPS,
			PreLoadTimeout:            c.PreLoadTimeout,
			RetriesCount:              c.RetriesCount,
			RetriesStopGrowing:        c.RetriesStopGrowing,
			DownloadTimeout:           c.DownloadTimeout,
			StrategyFileName:          strategy,
			DownloadDir:               c.DownloadDir,
			ChunkSize:                 c.ChunkSize,
			ClearDownloadDir:          c.ClearDownloadDir,
			SkipFilesWhenClear:        c.SkipFilesWhenClear,
			UseDefaultBrowserSettings: c.BrowserHeaders,
			Headers:                   c.Headers,
			PostContentType:           c.PostContentType,
			CookiesPath:               c.CookiesPath,
			Proxy:                     c.Proxy,
			ProxyUser:                 c.ProxyUser,
			ProxyPassword:             c.ProxyPassword,
			InsecureSkipVerify:        c.InsecureSkipVerify,
			RateLimit:                 c.RateLimit,
			RateBurst:                 c.RateBurst,
			HideSecrets:               c.HideSecrets,
			LoadReportSpec:            c.LoadReportSpec,
			MetricsFlushSpec:          c.MetricsFlushSpec,
		},
		Log:           r.Log,
		Proxies:       r.Proxies,
		ProxyUser:     r.ProxyUser,
		ProxyPassword: r.ProxyPassword,
		Storage:       r.Storage,
	}, nil
}
