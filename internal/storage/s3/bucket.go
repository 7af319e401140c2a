package s3

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objectfs/cloudkit/internal/cache"
	"github.com/objectfs/cloudkit/internal/metrics"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/utils"
)

var errBucketAbsent = errors.New("bucket absent")

type bucketKey struct {
	Scope  string
	Bucket string
}

// BucketCache remembers which buckets exist. Only positive answers are cached, so a
// bucket created later is found on the next check.
type BucketCache struct {
	cache   *cache.ResourceCache[bucketKey, bool]
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewBucketCache creates an existence cache.
func NewBucketCache(cfg *cache.CacheConfig, logger *slog.Logger, collector *metrics.Collector) *BucketCache {
	c := cache.DefaultCacheConfig()
	if cfg != nil {
		c = *cfg
	}
	c.Name = "buckets"

	return &BucketCache{
		cache:   cache.NewResourceCache[bucketKey, bool](&c, cache.WithRecorder[bucketKey, bool](collector)),
		logger:  utils.OrDiscard(logger).With("component", "bucket_cache"),
		metrics: collector,
	}
}

// Exists reports whether bucket exists. scope separates credential sets.
func (b *BucketCache) Exists(ctx context.Context, client API, scope, bucket string) (bool, error) {
	if bucket == "" {
		return false, ckerrors.InvalidArgument("bucket_name", "must not be empty")
	}

	_, err := b.cache.GetOrCreate(bucketKey{Scope: scope, Bucket: bucket}, func() (bool, error) {
		start := time.Now()
		_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		b.metrics.RecordOperation("storage.head_bucket", time.Since(start), 0, err == nil)

		switch {
		case err == nil:
			return true, nil
		case isBucketMissing(err), isObjectMissing(err):
			return false, errBucketAbsent
		default:
			return false, translateError(err, "HeadBucket", bucket, "")
		}
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errBucketAbsent):
		b.logger.Debug("bucket does not exist", "bucket", bucket)
		return false, nil
	default:
		return false, err
	}
}

// Require fails with RESOURCE_NOT_FOUND unless bucket exists.
func (b *BucketCache) Require(ctx context.Context, client API, scope, bucket string) error {
	ok, err := b.Exists(ctx, client, scope, bucket)
	if err != nil {
		return err
	}
	if !ok {
		return ckerrors.ResourceNotFound("bucket", bucket).WithComponent(component)
	}
	return nil
}

// Invalidate forgets that bucket exists.
func (b *BucketCache) Invalidate(scope, bucket string) bool {
	return b.cache.Invalidate(bucketKey{Scope: scope, Bucket: bucket})
}

// Len returns the number of buckets known to exist.
func (b *BucketCache) Len() int {
	return b.cache.Size()
}

// Close stops the background expiry sweep.
func (b *BucketCache) Close() {
	b.cache.Close()
}
