package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the tools read.
const EnvPrefix = "BIRDHOUSE"

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Config holds everything the browse and tweet commands need.
type Config struct {
	BaseURL     string
	AuthFile    string
	CookiesFile string

	// Username prefills the login form. Passwords are never read.
	Username string

	Headless       bool
	UserAgent      string
	Locale         string
	TimezoneID     string
	ViewportWidth  int
	ViewportHeight int

	LoginWait   time.Duration
	ProfileDirs []string
	CopyProfile bool
	SnapshotDir string

	BrowseMin time.Duration
	BrowseMax time.Duration

	SessionsMin    int
	SessionsMax    int
	HourMin        int
	HourMax        int
	ReshuffleDaily bool

	NavigationsPerMinute int

	Remote      bool
	DockerImage string

	Listen string

	LogLevel  string
	LogFormat string
}

// LoadOptions controls where configuration comes from.
type LoadOptions struct {
	// File is an optional YAML/JSON/TOML config file.
	File string
	// EnvFile is loaded with godotenv before reading the environment.
	EnvFile string
	// Flags overrides file and environment values when set.
	Flags *pflag.FlagSet
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://twitter.com")
	v.SetDefault("auth_file", "twitter.json")
	v.SetDefault("cookies_file", "twitter_cookies.json")
	v.SetDefault("username", "")
	v.SetDefault("headless", false)
	v.SetDefault("user_agent", defaultUserAgent)
	v.SetDefault("locale", "en-US")
	v.SetDefault("timezone_id", "America/New_York")
	v.SetDefault("viewport_width", 1280)
	v.SetDefault("viewport_height", 720)
	v.SetDefault("login_wait", 120*time.Second)
	v.SetDefault("profile_dirs", DefaultProfileDirs())
	v.SetDefault("copy_profile", false)
	v.SetDefault("snapshot_dir", filepath.Join(os.TempDir(), "birdhouse", "profiles"))
	v.SetDefault("browse_min", 120*time.Second)
	v.SetDefault("browse_max", 600*time.Second)
	v.SetDefault("sessions_min", 3)
	v.SetDefault("sessions_max", 5)
	v.SetDefault("hour_min", 8)
	v.SetDefault("hour_max", 23)
	v.SetDefault("reshuffle_daily", false)
	v.SetDefault("navigations_per_minute", 6)
	v.SetDefault("remote", false)
	v.SetDefault("docker_image", "browserless/chrome:latest")
	v.SetDefault("listen", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load builds a Config from defaults, an optional config file, the
// environment (after loading .env) and command-line flags, in increasing
// order of precedence.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		log.Printf("No %s file found, using system environment variables", envFile)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnownKey(v, key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	cfg := fromViper(v)
	if raw := os.Getenv(EnvPrefix + "_PROFILE_DIRS"); raw != "" {
		cfg.ProfileDirs = expandAll(filepath.SplitList(raw))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any source.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		BaseURL:              strings.TrimRight(v.GetString("base_url"), "/"),
		AuthFile:             v.GetString("auth_file"),
		CookiesFile:          v.GetString("cookies_file"),
		Username:             v.GetString("username"),
		Headless:             v.GetBool("headless"),
		UserAgent:            v.GetString("user_agent"),
		Locale:               v.GetString("locale"),
		TimezoneID:           v.GetString("timezone_id"),
		ViewportWidth:        v.GetInt("viewport_width"),
		ViewportHeight:       v.GetInt("viewport_height"),
		LoginWait:            v.GetDuration("login_wait"),
		ProfileDirs:          expandAll(v.GetStringSlice("profile_dirs")),
		CopyProfile:          v.GetBool("copy_profile"),
		SnapshotDir:          v.GetString("snapshot_dir"),
		BrowseMin:            v.GetDuration("browse_min"),
		BrowseMax:            v.GetDuration("browse_max"),
		SessionsMin:          v.GetInt("sessions_min"),
		SessionsMax:          v.GetInt("sessions_max"),
		HourMin:              v.GetInt("hour_min"),
		HourMax:              v.GetInt("hour_max"),
		ReshuffleDaily:       v.GetBool("reshuffle_daily"),
		NavigationsPerMinute: v.GetInt("navigations_per_minute"),
		Remote:               v.GetBool("remote"),
		DockerImage:          v.GetString("docker_image"),
		Listen:               v.GetString("listen"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
	}
}

// Validate rejects configurations the commands cannot run with.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.BrowseMin < time.Second || c.BrowseMax > 6*time.Hour {
		return fmt.Errorf("browse duration must be between 1s and 6h")
	}
	if c.BrowseMin > c.BrowseMax {
		return fmt.Errorf("browse_min (%s) is greater than browse_max (%s)", c.BrowseMin, c.BrowseMax)
	}
	if c.SessionsMin < 1 || c.SessionsMin > c.SessionsMax {
		return fmt.Errorf("sessions per day must satisfy 1 <= sessions_min <= sessions_max")
	}
	if c.HourMin < 0 || c.HourMax > 23 || c.HourMin > c.HourMax {
		return fmt.Errorf("hours must satisfy 0 <= hour_min <= hour_max <= 23")
	}
	if c.SessionsMax > (c.HourMax-c.HourMin+1)*60 {
		return fmt.Errorf("sessions_max exceeds the number of minutes in the hour window")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive")
	}
	if c.NavigationsPerMinute < 0 {
		return fmt.Errorf("navigations_per_minute must not be negative")
	}
	if c.LoginWait < 0 {
		return fmt.Errorf("login_wait must not be negative")
	}
	return nil
}

// URL joins a path onto BaseURL.
func (c *Config) URL(path string) string {
	return c.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// DefaultProfileDirs lists where Chrome and Chromium keep user data on this
// platform, most preferred first.
func DefaultProfileDirs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"~/Library/Application Support/Google/Chrome",
			"~/Library/Application Support/Chromium",
		}
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		return []string{
			filepath.Join(local, "Google", "Chrome", "User Data"),
			filepath.Join(local, "Chromium", "User Data"),
		}
	default:
		return []string{
			"~/.config/google-chrome",
			"~/.config/chromium",
		}
	}
}

func isKnownKey(v *viper.Viper, key string) bool {
	for _, k := range v.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func expandAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, expandHome(p))
		}
	}
	return out
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
