package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudkit/internal/storage/s3/s3test"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

func putInput(key string, data []byte) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket: aws.String("assets"),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
}

func TestNewTransferClampsOptions(t *testing.T) {
	tr := NewTransfer(s3test.New(), TransferOptions{PartSize: 1, Concurrency: -1})
	assert.Equal(t, int64(manager.MinUploadPartSize), tr.uploader.PartSize)
	assert.Equal(t, manager.DefaultUploadConcurrency, tr.uploader.Concurrency)
	assert.NoError(t, tr.Close())
}

func TestTransferStats(t *testing.T) {
	fake := s3test.New()
	fake.AddBucket("assets")
	tr := NewTransfer(fake, DefaultTransferOptions())
	defer tr.Close()
	ctx := context.Background()

	require.NoError(t, tr.Upload(ctx, putInput("a", []byte("hello")), 5))
	_, err := tr.Download(ctx, manager.NewWriteAtBuffer(nil), &s3.GetObjectInput{
		Bucket: aws.String("assets"),
		Key:    aws.String("missing"),
	})
	require.Error(t, err)

	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.Uploads)
	assert.Equal(t, int64(5), stats.BytesUploaded)
	assert.Equal(t, int64(1), stats.Errors)
	assert.NotEmpty(t, stats.LastError)
	assert.InDelta(t, 0.5, tr.stats.ErrorRate(), 1e-9)
}

func TestTransferCloseWaitsForBackgroundUploads(t *testing.T) {
	fake := s3test.New()
	fake.AddBucket("assets")
	tr := NewTransfer(fake, DefaultTransferOptions())

	release := fake.HoldPuts()
	require.NoError(t, tr.UploadBackground(context.Background(), putInput("bg", []byte("data")), 4))
	assert.Equal(t, int64(1), tr.Pending())

	closed := make(chan error, 1)
	go func() { closed <- tr.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while an upload was still running")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	require.NoError(t, <-closed)
	assert.Equal(t, int64(0), tr.Pending())

	err := tr.UploadBackground(context.Background(), putInput("late", []byte("x")), 1)
	require.Error(t, err)
	assert.Equal(t, ckerrors.ErrCodeInternalError, ckerrors.CodeOf(err))
}

func TestTransferWaitHonoursContext(t *testing.T) {
	fake := s3test.New()
	fake.AddBucket("assets")
	tr := NewTransfer(fake, DefaultTransferOptions())
	release := fake.HoldPuts()
	defer func() {
		release()
		_ = tr.Close()
	}()

	require.NoError(t, tr.UploadBackground(context.Background(), putInput("bg", []byte("data")), 4))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tr.Wait(ctx)
	assert.True(t, errors.Is(err, ckerrors.ErrOperationCanceled))
}

func TestTransferWaitDuringBackgroundUploads(t *testing.T) {
	fake := s3test.New()
	fake.AddBucket("assets")
	tr := NewTransfer(fake, DefaultTransferOptions())
	ctx := context.Background()

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := fmt.Sprintf("w%d/%d", w, i)
				assert.NoError(t, tr.UploadBackground(ctx, putInput(key, []byte(key)), int64(len(key))))
			}
		}(w)
	}

	// Waiters racing the writers must neither panic nor report failures.
	stop := make(chan struct{})
	waiters := make(chan error, 1)
	go func() {
		for {
			select {
			case <-stop:
				waiters <- nil
				return
			default:
			}
			if err := tr.Wait(ctx); err != nil {
				waiters <- err
				return
			}
		}
	}()

	wg.Wait()
	require.NoError(t, tr.Wait(ctx))
	close(stop)
	require.NoError(t, <-waiters)

	assert.Equal(t, int64(0), tr.Pending())
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			_, ok := fake.Object("assets", fmt.Sprintf("w%d/%d", w, i))
			assert.True(t, ok)
		}
	}
	require.NoError(t, tr.Close())
}

func TestTransferWaitCoversUploadsStartedBeforeIt(t *testing.T) {
	fake := s3test.New()
	fake.AddBucket("assets")
	tr := NewTransfer(fake, DefaultTransferOptions())
	ctx := context.Background()

	// Nothing running: Wait returns at once.
	require.NoError(t, tr.Wait(ctx))

	release := fake.HoldPuts()
	require.NoError(t, tr.UploadBackground(ctx, putInput("first", []byte("1")), 1))

	waited := make(chan error, 1)
	go func() { waited <- tr.Wait(ctx) }()

	select {
	case <-waited:
		t.Fatal("Wait returned while an upload was still running")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	require.NoError(t, <-waited)
	_, ok := fake.Object("assets", "first")
	assert.True(t, ok)

	// The transfer is reusable once idle.
	require.NoError(t, tr.UploadBackground(ctx, putInput("second", []byte("2")), 1))
	require.NoError(t, tr.Close())
	_, ok = fake.Object("assets", "second")
	assert.True(t, ok)
}
