package queue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/objectfs/cloudkit/internal/cache"
	"github.com/objectfs/cloudkit/internal/metrics"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// FifoSuffix ends every queue name cloudkit accepts.
const FifoSuffix = ".fifo"

// queueKey scopes a queue name to the credentials that resolved it.
type queueKey struct {
	Scope string
	Name  string
}

// QueueURLCache resolves queue names to URLs, creating missing FIFO queues on first use.
type QueueURLCache struct {
	cache   *cache.ResourceCache[queueKey, string]
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewQueueURLCache creates a locator cache.
func NewQueueURLCache(cfg *cache.CacheConfig, logger *slog.Logger, collector *metrics.Collector) *QueueURLCache {
	c := cache.DefaultCacheConfig()
	if cfg != nil {
		c = *cfg
	}
	c.Name = "queue_urls"

	return &QueueURLCache{
		cache:   cache.NewResourceCache[queueKey, string](&c, cache.WithRecorder[queueKey, string](collector)),
		logger:  utils.OrDiscard(logger).With("component", "queue_locator"),
		metrics: collector,
	}
}

// ValidateQueueName rejects names that are empty or not FIFO queue names.
func ValidateQueueName(name string) error {
	if name == "" {
		return ckerrors.InvalidArgument("queue_name", "must not be empty")
	}
	if !strings.HasSuffix(name, FifoSuffix) {
		return ckerrors.InvalidArgument("queue_name", "must end with "+FifoSuffix).WithContext("queue", name)
	}
	return nil
}

// Resolve returns the URL of the named queue, creating it when it does not exist.
// scope separates accounts and regions; pass the credentials cache key.
func (q *QueueURLCache) Resolve(ctx context.Context, client API, scope, name string) (string, error) {
	if err := ValidateQueueName(name); err != nil {
		return "", err
	}

	return q.cache.GetOrCreate(queueKey{Scope: scope, Name: name}, func() (string, error) {
		start := time.Now()
		url, err := q.lookupOrCreate(ctx, client, name)
		q.metrics.RecordOperation("queue.resolve", time.Since(start), 0, err == nil)
		if err != nil {
			q.metrics.RecordError("queue.resolve", err)
			return "", err
		}
		return url, nil
	})
}

// Invalidate forgets a resolved URL so the next Resolve asks the provider again.
func (q *QueueURLCache) Invalidate(scope, name string) bool {
	return q.cache.Invalidate(queueKey{Scope: scope, Name: name})
}

// Len returns the number of resolved queues.
func (q *QueueURLCache) Len() int {
	return q.cache.Size()
}

// Close stops the background expiry sweep.
func (q *QueueURLCache) Close() {
	q.cache.Close()
}

func (q *QueueURLCache) lookupOrCreate(ctx context.Context, client API, name string) (string, error) {
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err == nil {
		return aws.ToString(out.QueueUrl), nil
	}
	if !isQueueMissing(err) {
		return "", classify(err, "GetQueueUrl", name)
	}

	q.logger.Info("queue does not exist, creating it", "queue", name)

	created, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(name),
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNameFifoQueue):                 "true",
			string(sqstypes.QueueAttributeNameContentBasedDeduplication): "false",
		},
	})
	if err != nil {
		return "", classify(err, "CreateQueue", name)
	}

	url := aws.ToString(created.QueueUrl)
	q.logger.Info("queue created", "queue", name, "url", url)
	return url, nil
}
