package cloudkit

import (
	"github.com/objectfs/cloudkit/internal/awsclient"
	"github.com/objectfs/cloudkit/internal/config"
	"github.com/objectfs/cloudkit/internal/metrics"
	"github.com/objectfs/cloudkit/internal/queue"
	"github.com/objectfs/cloudkit/internal/storage/s3"
	"github.com/objectfs/cloudkit/pkg/types"
)

type (
	// Config is the complete library configuration.
	Config = config.Configuration

	// Credentials scope every client a Session builds.
	Credentials = types.Credentials

	ProducerConfig = queue.ProducerConfig
	ConsumerConfig = queue.ConsumerConfig
	FileConfig     = s3.FileConfig

	Producer = queue.Producer
	Consumer = queue.Consumer
	Message  = queue.Message
	File     = s3.File

	// MetricsCollector exports provider and cache metrics to Prometheus.
	MetricsCollector = metrics.Collector
	MetricsConfig    = metrics.Config

	// ConsumerState is Polling or Holding.
	ConsumerState = queue.State

	SQSClientBuilder = awsclient.Builder[queue.API]
	S3ClientBuilder  = awsclient.Builder[s3.API]
	TransferBuilder  = awsclient.Builder[*s3.Transfer]
)

const (
	Polling = queue.Polling
	Holding = queue.Holding
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return config.NewDefault()
}

// NewMetricsCollector builds a collector to pass to WithMetrics. A nil cfg enables
// metrics under the "cloudkit" namespace.
func NewMetricsCollector(cfg *MetricsConfig) (*MetricsCollector, error) {
	return metrics.NewCollector(cfg)
}

// LoadConfig reads a YAML file, if path is not empty, then applies CLOUDKIT_*
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
