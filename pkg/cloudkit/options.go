package cloudkit

import (
	"log/slog"

	"github.com/objectfs/cloudkit/pkg/health"
)

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces the default configuration. The configuration is validated by New.
func WithConfig(cfg *Config) Option {
	return func(s *Session) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

// WithLogger sets the logger instead of building one from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector instead of building one from the configuration.
// Build it with NewMetricsCollector.
func WithMetrics(collector *MetricsCollector) Option {
	return func(s *Session) {
		s.metrics = collector
	}
}

// WithHealthTracker sets the tracker provider outcomes are reported to.
func WithHealthTracker(tracker *health.Tracker) Option {
	return func(s *Session) {
		s.health = tracker
	}
}

// WithSQSClientBuilder overrides how SQS clients are built.
func WithSQSClientBuilder(build SQSClientBuilder) Option {
	return func(s *Session) {
		s.sqsBuilder = build
	}
}

// WithS3ClientBuilder overrides how S3 clients are built.
func WithS3ClientBuilder(build S3ClientBuilder) Option {
	return func(s *Session) {
		s.s3Builder = build
	}
}

// WithTransferBuilder overrides how transfer managers are built.
func WithTransferBuilder(build TransferBuilder) Option {
	return func(s *Session) {
		s.transferBuilder = build
	}
}
