package config

import (
	"encoding/json"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/projectform/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "projectform.json"

	// DefaultPort is the default server port.
	DefaultPort = 3000

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultMaxFiles is the staged file cap per page.
	DefaultMaxFiles = 5

	// DefaultMaxFileSize is the per-file size cap (5 MiB).
	DefaultMaxFileSize = 5 << 20

	// DefaultMaxRequestSize bounds a single upload request body.
	// It is larger than DefaultMaxFileSize so oversized files reach the
	// staging controller and get a named rejection.
	DefaultMaxRequestSize = 32 << 20

	// DefaultUploadDir is where the disk store keeps staged bytes.
	DefaultUploadDir = "tmp/uploads"

	// DefaultDeletePath is the persisted-image deletion endpoint.
	DefaultDeletePath = "/projects/delete-image/{id}/"

	// DefaultCSRFHeader carries the anti-forgery token.
	DefaultCSRFHeader = "X-CSRFToken"

	// DefaultTagField is the id of the text field enhanced with tags.
	DefaultTagField = "id_tech_stack"

	// DefaultMetricsNamespace prefixes every Prometheus metric.
	DefaultMetricsNamespace = "projectform"

	// StoreDisk and StoreS3 are the supported upload store backends.
	StoreDisk = "disk"
	StoreS3   = "s3"
)

// Config represents the complete projectform.json configuration.
type Config struct {
	// Server contains HTTP listener configuration.
	Server ServerConfig `json:"server"`

	// Upload contains staging limits and store configuration.
	Upload UploadConfig `json:"upload"`

	// Backend points at the server that owns persisted images.
	Backend BackendConfig `json:"backend"`

	// Tags configures the tag-input widget.
	Tags TagsConfig `json:"tags"`

	// Preview configures thumbnail generation.
	Preview PreviewConfig `json:"preview"`

	// Session configures WebSocket sessions.
	Session SessionConfig `json:"session"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty"`

	// AllowedOrigins restricts WebSocket upgrades. Empty allows same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// UploadConfig contains staging limits and store settings.
type UploadConfig struct {
	// MaxFiles is the maximum number of staged files per page.
	MaxFiles int `json:"maxFiles,omitempty"`

	// MaxFileSize is the maximum size of a single staged file in bytes.
	MaxFileSize int64 `json:"maxFileSize,omitempty"`

	// MaxRequestSize bounds a single upload request body in bytes.
	MaxRequestSize int64 `json:"maxRequestSize,omitempty"`

	// Store selects the backend: "disk" or "s3".
	Store string `json:"store,omitempty"`

	// Dir is the disk store directory.
	Dir string `json:"dir,omitempty"`

	// TempExpiry is how long staged bytes live (e.g., "1h").
	TempExpiry string `json:"tempExpiry,omitempty"`

	// CleanupInterval is how often expired bytes are removed (e.g., "5m").
	CleanupInterval string `json:"cleanupInterval,omitempty"`

	// S3 configures the S3 store.
	S3 S3Config `json:"s3,omitempty"`
}

// S3Config contains S3 store settings.
type S3Config struct {
	Bucket       string `json:"bucket,omitempty"`
	Prefix       string `json:"prefix,omitempty"`
	Region       string `json:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty"`
}

// BackendConfig points at the server owning persisted images.
type BackendConfig struct {
	// BaseURL is the scheme and host of the backend (e.g., "https://example.com").
	BaseURL string `json:"baseURL,omitempty"`

	// DeletePath is the deletion endpoint; "{id}" is replaced with the image id.
	DeletePath string `json:"deletePath,omitempty"`

	// CSRFHeader is the request header carrying the anti-forgery token.
	CSRFHeader string `json:"csrfHeader,omitempty"`
}

// TagsConfig configures the tag-input widget.
type TagsConfig struct {
	// Field is the id of the enhanced text field.
	Field string `json:"field,omitempty"`

	// MaxTags caps the number of tags.
	MaxTags int `json:"maxTags,omitempty"`

	// MaxChars caps the length of a single tag.
	MaxChars int `json:"maxChars,omitempty"`
}

// PreviewConfig configures thumbnail generation.
type PreviewConfig struct {
	// CacheSize is the number of thumbnails kept in memory.
	CacheSize int `json:"cacheSize,omitempty"`
}

// SessionConfig configures WebSocket sessions.
type SessionConfig struct {
	// MaxEventQueue is the per-session buffered event capacity.
	MaxEventQueue int `json:"maxEventQueue,omitempty"`

	// WriteTimeout bounds a single WebSocket write (e.g., "10s").
	WriteTimeout string `json:"writeTimeout,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics.
	Enabled bool `json:"enabled"`

	// Namespace prefixes every metric.
	Namespace string `json:"namespace,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Upload: UploadConfig{
			MaxFiles:        DefaultMaxFiles,
			MaxFileSize:     DefaultMaxFileSize,
			MaxRequestSize:  DefaultMaxRequestSize,
			Store:           StoreDisk,
			Dir:             DefaultUploadDir,
			TempExpiry:      "1h",
			CleanupInterval: "5m",
		},
		Backend: BackendConfig{
			DeletePath: DefaultDeletePath,
			CSRFHeader: DefaultCSRFHeader,
		},
		Tags: TagsConfig{
			Field:    DefaultTagField,
			MaxTags:  10,
			MaxChars: 20,
		},
		Preview: PreviewConfig{
			CacheSize: 64,
		},
		Session: SessionConfig{
			MaxEventQueue: 256,
			WriteTimeout:  "10s",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultMetricsNamespace,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for projectform.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("C301").
				WithField(path).
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Run 'projectform init' to write a default configuration")
		}
		return nil, errors.New("C302").WithField(path).Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("C302").
			WithField(path).
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that the file is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("C302").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("C302").WithField(path).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}

	if c.Upload.MaxFiles == 0 {
		c.Upload.MaxFiles = d.Upload.MaxFiles
	}
	if c.Upload.MaxFileSize == 0 {
		c.Upload.MaxFileSize = d.Upload.MaxFileSize
	}
	if c.Upload.MaxRequestSize == 0 {
		c.Upload.MaxRequestSize = d.Upload.MaxRequestSize
	}
	if c.Upload.Store == "" {
		c.Upload.Store = d.Upload.Store
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = d.Upload.Dir
	}
	if c.Upload.TempExpiry == "" {
		c.Upload.TempExpiry = d.Upload.TempExpiry
	}
	if c.Upload.CleanupInterval == "" {
		c.Upload.CleanupInterval = d.Upload.CleanupInterval
	}

	if c.Backend.DeletePath == "" {
		c.Backend.DeletePath = d.Backend.DeletePath
	}
	if c.Backend.CSRFHeader == "" {
		c.Backend.CSRFHeader = d.Backend.CSRFHeader
	}

	if c.Tags.Field == "" {
		c.Tags.Field = d.Tags.Field
	}
	if c.Tags.MaxTags == 0 {
		c.Tags.MaxTags = d.Tags.MaxTags
	}
	if c.Tags.MaxChars == 0 {
		c.Tags.MaxChars = d.Tags.MaxChars
	}

	if c.Preview.CacheSize == 0 {
		c.Preview.CacheSize = d.Preview.CacheSize
	}

	if c.Session.MaxEventQueue == 0 {
		c.Session.MaxEventQueue = d.Session.MaxEventQueue
	}
	if c.Session.WriteTimeout == "" {
		c.Session.WriteTimeout = d.Session.WriteTimeout
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return outOfRange("server.port", "Port must be between 0 and 65535")
	}
	if c.Upload.MaxFiles < 1 || c.Upload.MaxFiles > 100 {
		return outOfRange("upload.maxFiles", "maxFiles must be between 1 and 100")
	}
	if c.Upload.MaxFileSize <= 0 {
		return outOfRange("upload.maxFileSize", "maxFileSize must be positive")
	}
	if c.Upload.MaxRequestSize < c.Upload.MaxFileSize {
		return outOfRange("upload.maxRequestSize", "maxRequestSize must be at least maxFileSize")
	}

	switch c.Upload.Store {
	case StoreDisk:
	case StoreS3:
		if c.Upload.S3.Bucket == "" {
			return errors.New("C303").
				WithField("upload.s3.bucket").
				WithDetail("The s3 store needs a bucket name")
		}
	default:
		return errors.New("C303").
			WithField("upload.store").
			WithDetail("Unknown store " + strconv.Quote(c.Upload.Store)).
			WithSuggestion("Use \"disk\" or \"s3\"")
	}

	for field, value := range map[string]string{
		"upload.tempExpiry":      c.Upload.TempExpiry,
		"upload.cleanupInterval": c.Upload.CleanupInterval,
		"session.writeTimeout":   c.Session.WriteTimeout,
	} {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return errors.New("C302").
				WithField(field).
				WithDetail("Invalid duration " + strconv.Quote(value)).
				WithSuggestion("Use Go duration syntax such as \"30s\" or \"1h\"")
		}
	}

	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("C302").
				WithField("backend.baseURL").
				WithDetail("baseURL must be an absolute http(s) URL")
		}
	}
	if !strings.Contains(c.Backend.DeletePath, "{id}") {
		return errors.New("C302").
			WithField("backend.deletePath").
			WithDetail("deletePath must contain the {id} placeholder")
	}

	if c.Tags.MaxTags < 1 {
		return outOfRange("tags.maxTags", "maxTags must be positive")
	}
	if c.Tags.MaxChars < 1 {
		return outOfRange("tags.maxChars", "maxChars must be positive")
	}
	if c.Preview.CacheSize < 1 {
		return outOfRange("preview.cacheSize", "cacheSize must be positive")
	}
	if c.Session.MaxEventQueue < 1 {
		return outOfRange("session.maxEventQueue", "maxEventQueue must be positive")
	}
	return nil
}

func outOfRange(field, detail string) error {
	return errors.New("C303").WithField(field).WithDetail(detail)
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// TempExpiry returns the parsed upload expiry.
func (c *Config) TempExpiry() time.Duration {
	return mustDuration(c.Upload.TempExpiry, time.Hour)
}

// CleanupInterval returns the parsed store cleanup interval.
func (c *Config) CleanupInterval() time.Duration {
	return mustDuration(c.Upload.CleanupInterval, 5*time.Minute)
}

// WriteTimeout returns the parsed WebSocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return mustDuration(c.Session.WriteTimeout, 10*time.Second)
}

// UploadDir returns the disk store directory, resolved against the config dir.
func (c *Config) UploadDir() string {
	if filepath.IsAbs(c.Upload.Dir) || c.Dir() == "" {
		return c.Upload.Dir
	}
	return filepath.Join(c.Dir(), c.Upload.Dir)
}

// DeleteURL returns the deletion endpoint for an image id.
func (c *Config) DeleteURL(imageID string) string {
	path := strings.ReplaceAll(c.Backend.DeletePath, "{id}", url.PathEscape(imageID))
	return strings.TrimRight(c.Backend.BaseURL, "/") + path
}

// mustDuration parses s, falling back when it is invalid. Validate reports
// invalid values; callers that skipped it still get a usable duration.
func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
