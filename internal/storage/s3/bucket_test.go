package s3

import (
	"errors"
	"sync"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudkit/internal/storage/s3/s3test"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

func TestBucketCacheCachesOnlyPositiveAnswers(t *testing.T) {
	fake := s3test.New()
	buckets := NewBucketCache(nil, nil, nil)
	defer buckets.Close()
	ctx := testContext(t)

	ok, err := buckets.Exists(ctx, fake, "scope", "late")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, buckets.Len())

	fake.AddBucket("late")
	ok, err = buckets.Exists(ctx, fake, "scope", "late")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = buckets.Exists(ctx, fake, "scope", "late")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, fake.Calls(s3test.OpHeadBucket))
	assert.Equal(t, 1, buckets.Len())

	assert.True(t, buckets.Invalidate("scope", "late"))
	assert.Equal(t, 0, buckets.Len())
}

func TestBucketCacheConcurrentChecksCollapse(t *testing.T) {
	fake := s3test.New()
	fake.AddBucket("shared")
	buckets := NewBucketCache(nil, nil, nil)
	defer buckets.Close()
	ctx := testContext(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := buckets.Exists(ctx, fake, "scope", "shared")
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, fake.Calls(s3test.OpHeadBucket), 32)
	assert.Equal(t, 1, buckets.Len())
}

func TestBucketCacheErrors(t *testing.T) {
	fake := s3test.New()
	buckets := NewBucketCache(nil, nil, nil)
	defer buckets.Close()
	ctx := testContext(t)

	_, err := buckets.Exists(ctx, fake, "scope", "")
	assert.True(t, errors.Is(err, ckerrors.ErrInvalidArgument))
	assert.Equal(t, 0, fake.Calls(s3test.OpHeadBucket))

	fake.FailNext(s3test.OpHeadBucket, &smithy.GenericAPIError{Code: "AccessDenied"})
	_, err = buckets.Exists(ctx, fake, "scope", "private")
	assert.True(t, errors.Is(err, ckerrors.ErrTransport))

	err = buckets.Require(ctx, fake, "scope", "private")
	assert.True(t, errors.Is(err, ckerrors.ErrResourceNotFound))
}
