package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxCameras is the number of grid slots; extra camera entries are ignored.
const MaxCameras = 4

// Camera is one configured source entry, in slot order.
type Camera struct {
	URL      string `yaml:"url"`
	Location string `yaml:"location"`
}

// Config is the process configuration. It is built once by FromEnv at startup
// and treated as immutable afterwards.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	Cameras []Camera
	// IgnoredCameras counts entries beyond MaxCameras that were dropped.
	IgnoredCameras int

	CanvasSize  int
	BorderWidth int
	Interval    time.Duration

	FetchTimeout  time.Duration
	FetchRetries  int
	RetryDelay    time.Duration
	MinImageBytes int
	MaxImageBytes int

	OutputFormat   string
	JPEGQuality    int
	OutputDir      string
	OutputFilename string

	WatermarkText      string
	TintOpacityPercent int

	MetadataPath  string
	HealthTimeout time.Duration

	S3Bucket string
	S3Region string
	S3Key    string
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv assembles a Config from the environment, applying defaults for
// anything unset. Cameras come from CAMERAS_FILE when set, otherwise from
// CAMERA_<n>_URL / CAMERA_<n>_LOCATION pairs.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		CanvasSize:  GetEnvInt("CANVAS_SIZE", 2048),
		BorderWidth: GetEnvInt("BORDER_WIDTH", 16),
		Interval:    GetEnvDuration("SNAPSHOT_INTERVAL", 5*time.Minute),

		FetchTimeout:  GetEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchRetries:  GetEnvInt("FETCH_RETRIES", 2),
		RetryDelay:    GetEnvDuration("RETRY_DELAY", 2*time.Second),
		MinImageBytes: GetEnvInt("MIN_IMAGE_BYTES", 1024),
		MaxImageBytes: GetEnvInt("MAX_IMAGE_BYTES", 20<<20),

		OutputFormat: strings.ToLower(GetEnv("OUTPUT_FORMAT", "jpeg")),
		JPEGQuality:  GetEnvInt("JPEG_QUALITY", 85),
		OutputDir:    GetEnv("OUTPUT_DIR", "./output"),

		WatermarkText:      GetEnv("WATERMARK_TEXT", "LIVE GRID"),
		TintOpacityPercent: GetEnvInt("TINT_OPACITY_PERCENT", 10),

		MetadataPath:  GetEnv("METADATA_PATH", "./metadata.json"),
		HealthTimeout: GetEnvDuration("HEALTH_TIMEOUT", 5*time.Second),

		S3Bucket: GetEnv("S3_BUCKET", ""),
		S3Region: GetEnv("S3_REGION", "us-east-1"),
	}
	cfg.OutputFilename = GetEnv("OUTPUT_FILENAME", "snapshot"+DefaultExtension(cfg.OutputFormat))
	cfg.S3Key = GetEnv("S3_KEY", cfg.OutputFilename)

	var cams []Camera
	if path := GetEnv("CAMERAS_FILE", ""); path != "" {
		var err error
		cams, err = LoadCameras(path)
		if err != nil {
			return Config{}, err
		}
	} else {
		cams = camerasFromEnv()
	}
	cfg.Cameras, cfg.IgnoredCameras = normalizeCameras(cams)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultExtension is the file extension published for format.
func DefaultExtension(format string) string {
	if format == "png" {
		return ".png"
	}
	return ".jpg"
}

func extensionMatches(format, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if format == "png" {
		return ext == ".png"
	}
	return ext == ".jpg" || ext == ".jpeg"
}

// FetchWorstCase bounds one source's fetch when every attempt runs to its
// timeout: timeout*(1+retries) + delay*retries.
func (c Config) FetchWorstCase() time.Duration {
	retries := time.Duration(max(c.FetchRetries, 0))
	return c.FetchTimeout*(1+retries) + c.RetryDelay*retries
}

// LoadCameras parses a YAML list of {url, location} entries.
func LoadCameras(path string) ([]Camera, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cameras file: %w", err)
	}
	var doc struct {
		Cameras []Camera `yaml:"cameras"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse cameras file: %w", err)
	}
	return doc.Cameras, nil
}

func camerasFromEnv() []Camera {
	cams := make([]Camera, 0, MaxCameras)
	for i := 1; i <= MaxCameras; i++ {
		cams = append(cams, Camera{
			URL:      GetEnv(fmt.Sprintf("CAMERA_%d_URL", i), ""),
			Location: GetEnv(fmt.Sprintf("CAMERA_%d_LOCATION", i), ""),
		})
	}
	return cams
}

// normalizeCameras keeps slot order, caps the list at MaxCameras and blanks
// out entries without a URL. Blank entries stay in place so that the slots
// after them keep their index.
func normalizeCameras(in []Camera) ([]Camera, int) {
	ignored := 0
	if len(in) > MaxCameras {
		ignored = len(in) - MaxCameras
		in = in[:MaxCameras]
	}
	out := make([]Camera, len(in))
	for i, c := range in {
		c.URL = strings.TrimSpace(c.URL)
		c.Location = strings.TrimSpace(c.Location)
		if c.URL == "" {
			c = Camera{Location: c.Location}
		}
		out[i] = c
	}
	return out, ignored
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.CanvasSize <= 0 || c.CanvasSize%2 != 0:
		return errors.New("canvas size must be a positive even number")
	case c.BorderWidth < 0 || 2*c.BorderWidth >= c.CanvasSize/2:
		return errors.New("border width leaves no drawable cell area")
	case c.Interval <= 0:
		return errors.New("snapshot interval must be positive")
	case c.FetchTimeout <= 0:
		return errors.New("fetch timeout must be positive")
	case c.FetchRetries < 0:
		return errors.New("fetch retries must not be negative")
	case c.RetryDelay < 0:
		return errors.New("retry delay must not be negative")
	case c.OutputFormat != "jpeg" && c.OutputFormat != "png":
		return fmt.Errorf("unsupported output format %q (must be jpeg or png)", c.OutputFormat)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return errors.New("jpeg quality must be between 1 and 100")
	case c.TintOpacityPercent < 0 || c.TintOpacityPercent > 100:
		return errors.New("tint opacity must be between 0 and 100 percent")
	case c.Interval <= c.FetchWorstCase():
		return fmt.Errorf("snapshot interval %s must exceed the fetch worst case %s", c.Interval, c.FetchWorstCase())
	case strings.TrimSpace(c.OutputFilename) == "" || strings.ContainsAny(c.OutputFilename, `/\`):
		return errors.New("output filename must be a bare file name")
	case !extensionMatches(c.OutputFormat, c.OutputFilename):
		return fmt.Errorf("output filename %q does not match output format %s", c.OutputFilename, c.OutputFormat)
	case c.S3Bucket != "" && !extensionMatches(c.OutputFormat, c.S3Key):
		return fmt.Errorf("s3 key %q does not match output format %s", c.S3Key, c.OutputFormat)
	}
	return nil
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable named
// by key (e.g. "90s", "5m"), or fallback if unset or unparsable.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
