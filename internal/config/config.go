package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	VideoDirName     = "bilibili_videos"
	ThumbnailDirName = "bilibili_thumbnails"
	CookieFileName   = "cookies.txt"

	envPrefix = "BILIRELAY_"
)

// Config is built once at startup and passed by pointer. Nothing mutates it
// after Load returns.
type Config struct {
	DataDir          string        `yaml:"data_dir"`
	MaxVideoSizeMB   float64       `yaml:"max_video_size_mb"`
	CleanupDelay     time.Duration `yaml:"cleanup_delay"`
	ExternalThumbDir string        `yaml:"external_thumb_dir"`
	CookieFile       string        `yaml:"cookie_file"`
	YtDlpPath        string        `yaml:"ytdlp_path"`
	BotName          string        `yaml:"bot_name"`
	ShowDuration     bool          `yaml:"show_duration"`
	APIBaseURL       string        `yaml:"api_base_url"`
	APIRatePerSec    float64       `yaml:"api_rate_per_sec"`
	Listen           string        `yaml:"listen"`
	OneBotURL        string        `yaml:"onebot_url"`
	OneBotToken      string        `yaml:"onebot_token"`
	OneBotSecret     string        `yaml:"onebot_secret"`
	LogLevel         string        `yaml:"log_level"`
}

func (c *Config) SetDefaults() {
	c.DataDir = filepath.Join("data", "plugins", "bilirelay")
	c.MaxVideoSizeMB = 200
	c.CleanupDelay = 10 * time.Second
	c.YtDlpPath = "yt-dlp"
	c.BotName = "BiliBot"
	c.APIBaseURL = "https://api.bilibili.com"
	c.APIRatePerSec = 2
	c.Listen = ":8081"
	c.OneBotURL = "http://127.0.0.1:3000"
	c.LogLevel = LogLevelInfo
}

// VideoDir is where downloaded videos are written.
func (c *Config) VideoDir() string {
	return filepath.Join(c.DataDir, VideoDirName)
}

// ThumbnailDir is where cover images are written.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.DataDir, ThumbnailDirName)
}

// Load reads the YAML file at path (a missing file is fine), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.CookieFile == "" {
		cfg.CookieFile = filepath.Join(cfg.DataDir, CookieFileName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.MaxVideoSizeMB <= 0 {
		return fmt.Errorf("max_video_size_mb must be positive, got %v", c.MaxVideoSizeMB)
	}
	if c.CleanupDelay < 0 {
		return fmt.Errorf("cleanup_delay must not be negative, got %s", c.CleanupDelay)
	}
	if c.APIRatePerSec <= 0 {
		return fmt.Errorf("api_rate_per_sec must be positive, got %v", c.APIRatePerSec)
	}
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"DATA_DIR":           &c.DataDir,
		"EXTERNAL_THUMB_DIR": &c.ExternalThumbDir,
		"COOKIE_FILE":        &c.CookieFile,
		"YTDLP_PATH":         &c.YtDlpPath,
		"BOT_NAME":           &c.BotName,
		"API_BASE_URL":       &c.APIBaseURL,
		"LISTEN":             &c.Listen,
		"ONEBOT_URL":         &c.OneBotURL,
		"ONEBOT_TOKEN":       &c.OneBotToken,
		"ONEBOT_SECRET":      &c.OneBotSecret,
		"LOG_LEVEL":          &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookupEnv(key); ok {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"MAX_VIDEO_SIZE_MB": &c.MaxVideoSizeMB,
		"API_RATE_PER_SEC":  &c.APIRatePerSec,
	}
	for key, dst := range floats {
		if v, ok := lookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
			}
			*dst = f
		}
	}

	if v, ok := lookupEnv("CLEANUP_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sCLEANUP_DELAY: %w", envPrefix, err)
		}
		c.CleanupDelay = d
	}

	if v, ok := lookupEnv("SHOW_DURATION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sSHOW_DURATION: %w", envPrefix, err)
		}
		c.ShowDuration = b
	}

	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
