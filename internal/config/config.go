package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/i474232898/radar-data-cache/internal/radar/providers"
	"github.com/i474232898/radar-data-cache/internal/store"
)

// ErrMissingAPIKey is returned when neither FMI_API_KEY nor the key file
// provides a key.
var ErrMissingAPIKey = errors.New("fmi api key not configured")

const defaultKeyFile = "~/.config/radar-data-cache/api.key"

type AppConfig struct {
	APIKey     string `validate:"required"`
	APIKeyFile string

	// Radar cache.
	CacheDir      string `validate:"required"`
	StoredCount   int    `validate:"gte=1"`
	FileExtension string `validate:"required"`

	// FMI endpoints and composite parameters.
	Variable    string `validate:"required"`
	Width       int    `validate:"gte=1"`
	Height      int    `validate:"gte=1"`
	WMSURL      string `validate:"required,url"`
	WFSURL      string `validate:"required,url"`
	StoredQuery string `validate:"required"`

	// FetchInterval controls how often a new frame is fetched. FetchCron,
	// when set, takes precedence.
	FetchInterval time.Duration `validate:"gte=1s"`
	FetchCron     string        `validate:"omitempty,cron"`
	FetchTimeout  time.Duration `validate:"gt=0"`
	HTTPTimeout   time.Duration `validate:"gt=0"`

	Port string `validate:"required,numeric"`

	LogLevel  string `validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string `validate:"omitempty,oneof=text console json"`

	// ConfigFile is the TOML file that was applied, if any.
	ConfigFile string
}

// fileConfig is the TOML view of AppConfig. Unset keys keep their defaults.
type fileConfig struct {
	APIKey        *string `toml:"api_key"`
	APIKeyFile    *string `toml:"api_key_file"`
	CacheDir      *string `toml:"cache_dir"`
	StoredCount   *int    `toml:"stored_count"`
	FileExtension *string `toml:"file_extension"`
	Variable      *string `toml:"variable"`
	Width         *int    `toml:"width"`
	Height        *int    `toml:"height"`
	WMSURL        *string `toml:"wms_url"`
	WFSURL        *string `toml:"wfs_url"`
	StoredQuery   *string `toml:"stored_query"`
	FetchInterval *string `toml:"fetch_interval"`
	FetchCron     *string `toml:"fetch_cron"`
	FetchTimeout  *string `toml:"fetch_timeout"`
	HTTPTimeout   *string `toml:"http_timeout"`
	Port          *string `toml:"port"`
	LogLevel      *string `toml:"log_level"`
	LogFormat     *string `toml:"log_format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() AppConfig {
	return AppConfig{
		APIKeyFile:    defaultKeyFile,
		CacheDir:      "./radar-cache",
		StoredCount:   store.DefaultStoredCount,
		FileExtension: store.DefaultExtension,
		Variable:      providers.DefaultVariable,
		Width:         providers.DefaultWidth,
		Height:        providers.DefaultHeight,
		WMSURL:        providers.DefaultWMSURL,
		WFSURL:        providers.DefaultWFSURL,
		StoredQuery:   providers.DefaultStoredQueryID,
		FetchInterval: 5 * time.Minute,
		FetchTimeout:  2 * time.Minute,
		HTTPTimeout:   60 * time.Second,
		Port:          "8080",
		LogLevel:      "info",
	}
}

// Load reads configuration from defaults, the optional TOML file named by
// RADAR_CONFIG_FILE, and the environment (including .env), in that order.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.String("error", err.Error()))
	}
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("RADAR_CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.APIKey == "" {
		key, err := ReadKey(cfg.APIKeyFile)
		if err != nil {
			return nil, err
		}
		cfg.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", expanded, err)
	}

	setString(&c.APIKey, fc.APIKey)
	setString(&c.APIKeyFile, fc.APIKeyFile)
	setString(&c.CacheDir, fc.CacheDir)
	setInt(&c.StoredCount, fc.StoredCount)
	setString(&c.FileExtension, fc.FileExtension)
	setString(&c.Variable, fc.Variable)
	setInt(&c.Width, fc.Width)
	setInt(&c.Height, fc.Height)
	setString(&c.WMSURL, fc.WMSURL)
	setString(&c.WFSURL, fc.WFSURL)
	setString(&c.StoredQuery, fc.StoredQuery)
	setString(&c.FetchCron, fc.FetchCron)
	setString(&c.Port, fc.Port)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)

	durations := []struct {
		name string
		dst  *time.Duration
		src  *string
	}{
		{"fetch_interval", &c.FetchInterval, fc.FetchInterval},
		{"fetch_timeout", &c.FetchTimeout, fc.FetchTimeout},
		{"http_timeout", &c.HTTPTimeout, fc.HTTPTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.name, expanded, err)
		}
		*d.dst = v
	}

	c.ConfigFile = expanded
	return nil
}

func (c *AppConfig) applyEnv() error {
	c.APIKey = strings.TrimSpace(getenvDefault("FMI_API_KEY", c.APIKey))
	c.APIKeyFile = getenvDefault("FMI_API_KEY_FILE", c.APIKeyFile)
	c.CacheDir = getenvDefault("RADAR_CACHE_DIR", c.CacheDir)
	c.FileExtension = getenvDefault("RADAR_FILE_EXTENSION", c.FileExtension)
	c.Variable = getenvDefault("RADAR_VARIABLE", c.Variable)
	c.WMSURL = getenvDefault("FMI_WMS_URL", c.WMSURL)
	c.WFSURL = getenvDefault("FMI_WFS_URL", c.WFSURL)
	c.StoredQuery = getenvDefault("FMI_STORED_QUERY", c.StoredQuery)
	c.FetchCron = getenvDefault("FETCH_CRON", c.FetchCron)
	c.Port = getenvDefault("PORT", c.Port)
	c.LogLevel = getenvDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenvDefault("LOG_FORMAT", c.LogFormat)

	var err error
	if c.StoredCount, err = getenvInt("RADAR_STORED_COUNT", c.StoredCount); err != nil {
		return err
	}
	if c.Width, err = getenvInt("RADAR_WIDTH", c.Width); err != nil {
		return err
	}
	if c.Height, err = getenvInt("RADAR_HEIGHT", c.Height); err != nil {
		return err
	}
	if c.FetchInterval, err = getenvDuration("FETCH_INTERVAL", c.FetchInterval); err != nil {
		return err
	}
	if c.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", c.FetchTimeout); err != nil {
		return err
	}
	if c.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", c.HTTPTimeout); err != nil {
		return err
	}
	return nil
}

// Validate checks field constraints, including the cron expression syntax.
func (c *AppConfig) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("cron", validateCron); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Field() == "APIKey" {
				return ErrMissingAPIKey
			}
			return fmt.Errorf("invalid config %s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validateCron(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// ReadKey returns the first line of the key file at path.
func ReadKey(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if expanded == "" {
		return "", ErrMissingAPIKey
	}

	f, err := os.Open(expanded)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrMissingAPIKey, expanded)
		}
		return "", fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read key file: %w", err)
		}
		return "", fmt.Errorf("%w: %s is empty", ErrMissingAPIKey, expanded)
	}
	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingAPIKey, expanded)
	}
	return key, nil
}

func expandPath(pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, strings.TrimPrefix(pathValue, "~"))
	}
	return filepath.Clean(pathValue), nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
