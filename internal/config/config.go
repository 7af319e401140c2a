package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/cloudkit/internal/validate"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLOUDKIT_"

// MinPartSize is the smallest multipart upload part S3 accepts.
const MinPartSize = 5 * 1024 * 1024

// Configuration represents the complete library configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Cache   CacheConfig   `yaml:"cache"`
	AWS     AWSConfig     `yaml:"aws"`
	Queue   QueueConfig   `yaml:"queue"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents logging settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
	LogFile   string `yaml:"log_file"`
}

// CacheConfig sizes the client and resource caches
type CacheConfig struct {
	MaxEntries                int           `yaml:"max_entries" validate:"gte=1"`
	TransferManagerMaxEntries int           `yaml:"transfer_manager_max_entries" validate:"gte=1"`
	TTL                       time.Duration `yaml:"ttl" validate:"gte=1s"`
	CleanupInterval           time.Duration `yaml:"cleanup_interval" validate:"gte=1s"`
}

// AWSConfig represents provider client settings shared by S3 and SQS
type AWSConfig struct {
	Endpoint            string        `yaml:"endpoint"`
	ForcePathStyle      bool          `yaml:"force_path_style"`
	MaxRetries          int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	MaxBackoff          time.Duration `yaml:"max_backoff" validate:"gte=0s"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host" validate:"gte=1"`
}

// QueueConfig represents message queue settings
type QueueConfig struct {
	WaitTime          time.Duration `yaml:"wait_time" validate:"gte=0s,lte=20s,seconds"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" validate:"gte=1s,lte=12h,seconds"`
	GuaranteedOrder   bool          `yaml:"guaranteed_order"`
}

// StorageConfig represents object store transfer settings
type StorageConfig struct {
	BackgroundWrite bool   `yaml:"background_write"`
	ScratchDir      string `yaml:"scratch_dir"`
	PartSize        string `yaml:"part_size" validate:"required"`
	Concurrency     int    `yaml:"concurrency" validate:"gte=1,lte=64"`
}

// MetricsConfig represents Prometheus settings
type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Cache: CacheConfig{
			MaxEntries:                100,
			TransferManagerMaxEntries: 50,
			TTL:                       time.Hour,
			CleanupInterval:           time.Minute,
		},
		AWS: AWSConfig{
			MaxRetries:          3,
			MaxBackoff:          20 * time.Second,
			MaxIdleConnsPerHost: 16,
		},
		Queue: QueueConfig{
			WaitTime:          20 * time.Second,
			VisibilityTimeout: 60 * time.Second,
			GuaranteedOrder:   true,
		},
		Storage: StorageConfig{
			BackgroundWrite: false,
			PartSize:        "8MB",
			Concurrency:     5,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "cloudkit",
			Labels:    map[string]string{},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return ckerrors.NewError(ckerrors.ErrCodeConfigLoad, "failed to read config file").
			WithContext("file", filename).WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return ckerrors.NewError(ckerrors.ErrCodeConfigLoad, "failed to parse config file").
			WithContext("file", filename).WithCause(err)
	}

	return nil
}

// LoadFromEnv applies CLOUDKIT_* environment overrides
func (c *Configuration) LoadFromEnv() error {
	e := envReader{}

	// Global settings
	e.str("LOG_LEVEL", &c.Global.LogLevel)
	e.str("LOG_FORMAT", &c.Global.LogFormat)
	e.str("LOG_FILE", &c.Global.LogFile)

	// Cache settings
	e.integer("CACHE_MAX_ENTRIES", &c.Cache.MaxEntries)
	e.integer("CACHE_TRANSFER_MANAGER_MAX_ENTRIES", &c.Cache.TransferManagerMaxEntries)
	e.duration("CACHE_TTL", &c.Cache.TTL)
	e.duration("CACHE_CLEANUP_INTERVAL", &c.Cache.CleanupInterval)

	// Provider settings
	e.str("AWS_ENDPOINT", &c.AWS.Endpoint)
	e.boolean("AWS_FORCE_PATH_STYLE", &c.AWS.ForcePathStyle)
	e.integer("AWS_MAX_RETRIES", &c.AWS.MaxRetries)
	e.duration("AWS_MAX_BACKOFF", &c.AWS.MaxBackoff)

	// Queue settings
	e.duration("QUEUE_WAIT_TIME", &c.Queue.WaitTime)
	e.duration("QUEUE_VISIBILITY_TIMEOUT", &c.Queue.VisibilityTimeout)
	e.boolean("QUEUE_GUARANTEED_ORDER", &c.Queue.GuaranteedOrder)

	// Storage settings
	e.boolean("STORAGE_BACKGROUND_WRITE", &c.Storage.BackgroundWrite)
	e.str("STORAGE_SCRATCH_DIR", &c.Storage.ScratchDir)
	e.str("STORAGE_PART_SIZE", &c.Storage.PartSize)
	e.integer("STORAGE_CONCURRENCY", &c.Storage.Concurrency)

	// Metrics settings
	e.boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	e.str("METRICS_NAMESPACE", &c.Metrics.Namespace)

	return e.err
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ckerrors.NewError(ckerrors.ErrCodeConfigSave, "failed to marshal config").WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return ckerrors.NewError(ckerrors.ErrCodeConfigSave, "failed to create config directory").WithCause(err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return ckerrors.NewError(ckerrors.ErrCodeConfigSave, "failed to write config file").WithCause(err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	sections := []struct {
		name  string
		value interface{}
	}{
		{"global", c.Global},
		{"cache", c.Cache},
		{"aws", c.AWS},
		{"queue", c.Queue},
		{"storage", c.Storage},
	}
	for _, s := range sections {
		if err := validate.Struct(s.value); err != nil {
			return invalid(s.name, err)
		}
	}

	partSize, err := c.Storage.PartSizeBytes()
	if err != nil {
		return invalid("storage", ckerrors.InvalidArgument("part_size", err.Error()))
	}
	if partSize < MinPartSize {
		return invalid("storage", ckerrors.InvalidArgument("part_size",
			fmt.Sprintf("must be at least %s", utils.FormatBytes(MinPartSize))))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return invalid("metrics", ckerrors.InvalidArgument("namespace", "must not be empty when metrics are enabled"))
	}

	return nil
}

// PartSizeBytes parses PartSize.
func (s StorageConfig) PartSizeBytes() (int64, error) {
	return utils.ParseBytes(s.PartSize)
}

func invalid(section string, cause error) error {
	return ckerrors.NewError(ckerrors.ErrCodeInvalidConfig, fmt.Sprintf("invalid %s configuration", section)).
		WithContext("section", section).
		WithCause(cause)
}

// envReader applies overrides and keeps the first malformed value as its error.
type envReader struct {
	err error
}

func (e *envReader) lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e *envReader) fail(name, val string, cause error) {
	if e.err == nil {
		e.err = ckerrors.NewError(ckerrors.ErrCodeConfigLoad, fmt.Sprintf("invalid value %q for %s%s", val, EnvPrefix, name)).
			WithContext("variable", EnvPrefix+name).
			WithCause(cause)
	}
}

func (e *envReader) str(name string, dst *string) {
	if val, ok := e.lookup(name); ok {
		*dst = val
	}
}

func (e *envReader) integer(name string, dst *int) {
	if val, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			e.fail(name, val, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if val, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			e.fail(name, val, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if val, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err != nil {
			e.fail(name, val, err)
			return
		}
		*dst = b
	}
}
