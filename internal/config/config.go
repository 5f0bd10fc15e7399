package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the application.
type Config struct {
	// FirehoseURL is the Jetstream WebSocket endpoint.
	FirehoseURL string `toml:"firehose_url"`

	// DBPath is the SQLite database file path.
	DBPath string `toml:"db_path"`

	// CapturePath is the default destination for capture logs.
	CapturePath string `toml:"capture_path"`

	// AppViewURL is the AppView base URL used for profile lookups. Empty
	// means the public Bluesky AppView.
	AppViewURL string `toml:"appview_url"`

	// Capture holds the default capture-session settings.
	Capture CaptureConfig `toml:"capture"`
}

// CaptureConfig holds capture-session defaults, overridable per invocation
// by CLI flags.
type CaptureConfig struct {
	// Seconds is the capture duration.
	Seconds int `toml:"seconds"`

	// Langs restricts captures to posts declaring one of these language
	// tags. An empty list means no language filter.
	Langs []string `toml:"langs"`

	// IncludeReplies controls whether reply posts are captured. Disabling
	// it reproduces root-only capture, which reduces every thread to a
	// single post.
	IncludeReplies bool `toml:"include_replies"`
}

func defaults() *Config {
	return &Config{
		FirehoseURL: "wss://jetstream2.us-east.bsky.network/subscribe",
		DBPath:      "data/firehose.db",
		CapturePath: "firehose_capture.jsonl",
		Capture: CaptureConfig{
			Seconds:        30,
			Langs:          []string{"en"},
			IncludeReplies: true,
		},
	}
}

// Load reads configuration from an optional TOML file (SKYINDEX_CONFIG, or
// skyindex.toml in the working directory) layered over built-in defaults,
// with individual environment variables taking precedence over both.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("SKYINDEX_CONFIG")
	explicit := path != ""
	if !explicit {
		path = "skyindex.toml"
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		// no config file is fine, defaults apply
	}

	if v := os.Getenv("SKYINDEX_FIREHOSE_URL"); v != "" {
		cfg.FirehoseURL = v
	}
	if v := os.Getenv("SKYINDEX_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SKYINDEX_CAPTURE_PATH"); v != "" {
		cfg.CapturePath = v
	}
	if v := os.Getenv("SKYINDEX_APPVIEW_URL"); v != "" {
		cfg.AppViewURL = v
	}

	return cfg, nil
}
