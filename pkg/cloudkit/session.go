package cloudkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/objectfs/cloudkit/internal/awsclient"
	"github.com/objectfs/cloudkit/internal/cache"
	"github.com/objectfs/cloudkit/internal/config"
	"github.com/objectfs/cloudkit/internal/metrics"
	"github.com/objectfs/cloudkit/internal/queue"
	"github.com/objectfs/cloudkit/internal/storage/s3"
	"github.com/objectfs/cloudkit/pkg/api"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/health"
	"github.com/objectfs/cloudkit/pkg/types"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// Health components reported by a Session.
const (
	QueueComponent   = "queue"
	StorageComponent = "storage"
)

// Session owns every client and resource cache. Producers, consumers and files built
// from one Session share its clients; Shutdown releases them all.
type Session struct {
	config  *config.Configuration
	logger  *slog.Logger
	metrics *metrics.Collector
	health  *health.Tracker

	sqsBuilder      SQSClientBuilder
	s3Builder       S3ClientBuilder
	transferBuilder TransferBuilder

	sqsClients *queue.ClientCache
	s3Clients  *s3.ClientCache
	transfers  *s3.TransferCache
	queueURLs  *queue.QueueURLCache
	buckets    *s3.BucketCache

	logCloser func() error

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// SessionStats summarizes the caches a Session owns.
type SessionStats struct {
	SQSClients types.CacheStats `json:"sqs_clients"`
	S3Clients  types.CacheStats `json:"s3_clients"`
	Transfers  types.CacheStats `json:"transfers"`
	QueueURLs  int              `json:"queue_urls"`
	Buckets    int              `json:"buckets"`
}

// New creates a session. No provider call is made until a producer, consumer or file
// needs one.
func New(opts ...Option) (*Session, error) {
	s := &Session{config: config.NewDefault()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	if s.logger == nil {
		logger, closer, err := utils.SetupLogging(s.config.Global.LogLevel, s.config.Global.LogFormat, s.config.Global.LogFile)
		if err != nil {
			return nil, ckerrors.NewError(ckerrors.ErrCodeInvalidConfig, "failed to set up logging").WithCause(err)
		}
		s.logger = logger
		s.logCloser = closer
	}

	if s.metrics == nil && s.config.Metrics.Enabled {
		collector, err := metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Namespace: s.config.Metrics.Namespace,
			Labels:    s.config.Metrics.Labels,
		})
		if err != nil {
			s.closeLog()
			return nil, ckerrors.NewError(ckerrors.ErrCodeInternalError, "failed to create metrics collector").WithCause(err)
		}
		s.metrics = collector
	}

	if s.health == nil {
		s.health = health.NewTracker(health.DefaultConfig())
	}
	s.health.RegisterComponent(QueueComponent)
	s.health.RegisterComponent(StorageComponent)

	s.initClients()

	s.logger.Info("cloudkit session created",
		"endpoint", s.config.AWS.Endpoint,
		"cache_max_entries", s.config.Cache.MaxEntries,
		"cache_ttl", s.config.Cache.TTL,
		"metrics", s.metrics != nil)
	return s, nil
}

// Config returns the session's configuration. It must not be modified.
func (s *Session) Config() *Config { return s.config }

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Metrics returns the session's metrics collector, or nil when metrics are disabled.
func (s *Session) Metrics() *MetricsCollector { return s.metrics }

// Health returns the tracker provider outcomes are reported to.
func (s *Session) Health() *health.Tracker { return s.health }

// Handler returns an HTTP handler serving /health, /health/components, /health/live,
// /health/ready and /metrics. Mounting it is up to the caller.
func (s *Session) Handler() http.Handler {
	return api.NewHandler(s.health, s.metrics, s.logger)
}

// ProducerConfig returns a producer config for queueName seeded from the session
// configuration.
func (s *Session) ProducerConfig(creds Credentials, queueName string) ProducerConfig {
	return ProducerConfig{
		Credentials:     creds,
		QueueName:       queueName,
		GuaranteedOrder: s.config.Queue.GuaranteedOrder,
	}
}

// ConsumerConfig returns a consumer config for queueName seeded from the session
// configuration.
func (s *Session) ConsumerConfig(creds Credentials, queueName string) ConsumerConfig {
	return ConsumerConfig{
		Credentials:       creds,
		QueueName:         queueName,
		WaitTime:          s.config.Queue.WaitTime,
		VisibilityTimeout: s.config.Queue.VisibilityTimeout,
	}
}

// FileConfig returns a file config seeded from the session configuration.
func (s *Session) FileConfig(creds Credentials, bucket, name string) FileConfig {
	return FileConfig{
		Credentials:     creds,
		BucketName:      bucket,
		FileName:        name,
		BackgroundWrite: s.config.Storage.BackgroundWrite,
	}
}

// NewProducer returns a producer for cfg.
func (s *Session) NewProducer(cfg ProducerConfig) (*Producer, error) {
	if err := s.checkOpen("NewProducer"); err != nil {
		return nil, err
	}
	return queue.NewProducer(cfg, s.queueDeps())
}

// NewConsumer returns a consumer for cfg, creating the queue if it does not exist.
func (s *Session) NewConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	if err := s.checkOpen("NewConsumer"); err != nil {
		return nil, err
	}
	return queue.NewConsumer(ctx, cfg, s.queueDeps())
}

// NewFile returns a file for cfg. The bucket must already exist.
func (s *Session) NewFile(ctx context.Context, cfg FileConfig) (*File, error) {
	if err := s.checkOpen("NewFile"); err != nil {
		return nil, err
	}
	return s3.NewFile(ctx, cfg, s.storageDeps())
}

// NewFileFromURI returns a file for an s3://bucket/key URI.
func (s *Session) NewFileFromURI(ctx context.Context, creds Credentials, uri string) (*File, error) {
	bucket, key, err := ParseObjectURI(uri)
	if err != nil {
		return nil, err
	}
	return s.NewFile(ctx, s.FileConfig(creds, bucket, key))
}

// Stats returns a snapshot of the session's caches.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		SQSClients: s.sqsClients.Stats(),
		S3Clients:  s.s3Clients.Stats(),
		Transfers:  s.transfers.Stats(),
		QueueURLs:  s.queueURLs.Len(),
		Buckets:    s.buckets.Len(),
	}
}

// Shutdown waits for background uploads, closes every client the session built and
// stops its caches. Later calls return the first result. Handles built from the session
// must not be used afterwards.
func (s *Session) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.closed.Store(true)
		s.logger.Info("shutting down cloudkit session")

		var errs []error
		// Transfers first: closing them drains background uploads.
		if err := s.transfers.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.s3Clients.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.sqsClients.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		s.queueURLs.Close()
		s.buckets.Close()

		if err := errors.Join(errs...); err != nil {
			s.logger.Error("cloudkit session shutdown failed", "error", err)
			s.shutdownErr = err
		} else {
			s.logger.Info("cloudkit session shut down")
		}
		s.closeLog()
	})
	return s.shutdownErr
}

// Close is Shutdown without a deadline.
func (s *Session) Close() error {
	return s.Shutdown(context.Background())
}

// ParseObjectURI splits an s3://bucket/key URI.
func ParseObjectURI(uri string) (bucket, key string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", ckerrors.InvalidArgument("uri", fmt.Sprintf("failed to parse URI: %v", err))
	}

	if parsed.Scheme != "s3" {
		return "", "", ckerrors.InvalidArgument("uri", fmt.Sprintf("unsupported storage scheme: %q (only s3:// supported)", parsed.Scheme))
	}
	if parsed.Host == "" {
		return "", "", ckerrors.InvalidArgument("uri", "must include a bucket name")
	}

	key = strings.TrimPrefix(parsed.Path, "/")
	if key == "" {
		return "", "", ckerrors.InvalidArgument("uri", "must include an object key")
	}
	return parsed.Host, key, nil
}

// Helper methods

func (s *Session) initClients() {
	settings := awsclient.Settings{
		Endpoint:            s.config.AWS.Endpoint,
		ForcePathStyle:      s.config.AWS.ForcePathStyle,
		MaxRetries:          s.config.AWS.MaxRetries,
		MaxBackoff:          s.config.AWS.MaxBackoff,
		MaxIdleConnsPerHost: s.config.AWS.MaxIdleConnsPerHost,
	}

	if s.sqsBuilder == nil {
		s.sqsBuilder = queue.NewClientBuilder(settings)
	}
	if s.s3Builder == nil {
		s.s3Builder = s3.NewClientBuilder(settings)
	}
	if s.transferBuilder == nil {
		// Validate has already rejected unparsable part sizes.
		partSize, _ := s.config.Storage.PartSizeBytes()
		s.transferBuilder = s3.NewTransferBuilder(settings, s3.TransferOptions{
			PartSize:    partSize,
			Concurrency: s.config.Storage.Concurrency,
			Logger:      s.logger,
		})
	}

	clientCache := &cache.CacheConfig{
		MaxEntries:      s.config.Cache.MaxEntries,
		TTL:             s.config.Cache.TTL,
		CleanupInterval: s.config.Cache.CleanupInterval,
	}
	transferCache := *clientCache
	transferCache.MaxEntries = s.config.Cache.TransferManagerMaxEntries

	s.sqsClients = awsclient.NewClientCache(s.sqsBuilder, awsclient.Options{
		Name: "sqs_clients", Cache: clientCache, Logger: s.logger, Metrics: s.metrics,
	})
	s.s3Clients = awsclient.NewClientCache(s.s3Builder, awsclient.Options{
		Name: "s3_clients", Cache: clientCache, Logger: s.logger, Metrics: s.metrics,
	})
	s.transfers = awsclient.NewClientCache(s.transferBuilder, awsclient.Options{
		Name: "transfer_managers", Cache: &transferCache, Logger: s.logger, Metrics: s.metrics,
	})
	s.queueURLs = queue.NewQueueURLCache(clientCache, s.logger, s.metrics)
	s.buckets = s3.NewBucketCache(clientCache, s.logger, s.metrics)
}

func (s *Session) queueDeps() queue.Deps {
	return queue.Deps{
		Clients: s.sqsClients,
		URLs:    s.queueURLs,
		Logger:  s.logger,
		Metrics: s.metrics,
		Health:  s.health,
	}
}

func (s *Session) storageDeps() s3.Deps {
	return s3.Deps{
		Clients:    s.s3Clients,
		Transfers:  s.transfers,
		Buckets:    s.buckets,
		ScratchDir: s.config.Storage.ScratchDir,
		Logger:     s.logger,
		Metrics:    s.metrics,
		Health:     s.health,
	}
}

func (s *Session) checkOpen(operation string) error {
	if s.closed.Load() {
		return ckerrors.NewError(ckerrors.ErrCodeSessionClosed, "session is shut down").
			WithComponent("session").
			WithOperation(operation)
	}
	return nil
}

func (s *Session) closeLog() {
	if s.logCloser == nil {
		return
	}
	if err := s.logCloser(); err != nil {
		s.logger.Warn("failed to close log file", "error", err)
	}
	s.logCloser = nil
}
