package cloudkit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudkit/internal/awsclient"
	"github.com/objectfs/cloudkit/internal/queue"
	"github.com/objectfs/cloudkit/internal/queue/queuetest"
	"github.com/objectfs/cloudkit/internal/storage/s3"
	"github.com/objectfs/cloudkit/internal/storage/s3/s3test"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/utils"
)

var testCreds = Credentials{AccessKey: "AKIATEST", SecretKey: "secret", Region: "us-east-1"}

type fixture struct {
	sqs       *queuetest.FakeSQS
	s3        *s3test.FakeS3
	builds    atomic.Int32
	closes    atomic.Int32
	transfers atomic.Int32
}

func newFixture() *fixture {
	fx := &fixture{sqs: queuetest.New(), s3: s3test.New()}
	fx.s3.AddBucket("assets")
	return fx
}

func (fx *fixture) options() []Option {
	return []Option{
		WithLogger(utils.DiscardLogger()),
		WithSQSClientBuilder(func(context.Context, Credentials) (*awsclient.Handle[queue.API], error) {
			fx.builds.Add(1)
			return awsclient.NewHandle[queue.API](fx.sqs, func() error {
				fx.closes.Add(1)
				return nil
			}), nil
		}),
		WithS3ClientBuilder(func(context.Context, Credentials) (*awsclient.Handle[s3.API], error) {
			return awsclient.NewHandle[s3.API](fx.s3, nil), nil
		}),
		WithTransferBuilder(func(context.Context, Credentials) (*awsclient.Handle[*s3.Transfer], error) {
			fx.transfers.Add(1)
			tr := s3.NewTransfer(fx.s3, s3.DefaultTransferOptions())
			return awsclient.NewHandle(tr, tr.Close), nil
		}),
	}
}

func newTestSession(t *testing.T, fx *fixture, cfg *Config) *Session {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Queue.WaitTime = 0
	cfg.Storage.ScratchDir = t.TempDir()

	s, err := New(append(fx.options(), WithConfig(cfg))...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Queue.VisibilityTimeout = 0

	_, err := New(WithConfig(cfg), WithLogger(utils.DiscardLogger()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ckerrors.ErrInvalidConfig))
}

func TestNewDefaults(t *testing.T) {
	s, err := New(WithLogger(utils.DiscardLogger()))
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.Metrics(), "metrics are enabled by default")
	assert.True(t, s.Health().IsHealthy(QueueComponent))
	assert.Len(t, s.Health().GetAllComponents(), 2)
	assert.Equal(t, 20*time.Second, s.Config().Queue.WaitTime)
}

func TestSessionQueueRoundTrip(t *testing.T) {
	fx := newFixture()
	s := newTestSession(t, fx, nil)
	ctx := testContext(t)

	producer, err := s.NewProducer(s.ProducerConfig(testCreds, "orders.fifo"))
	require.NoError(t, err)
	assert.True(t, producer.Config().GuaranteedOrder)

	consumer, err := s.NewConsumer(ctx, s.ConsumerConfig(testCreds, "orders.fifo"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, consumer.Config().VisibilityTimeout)

	for _, body := range []string{"one", "two"} {
		require.NoError(t, producer.Send(ctx, body))
	}

	for _, want := range []string{"one", "two"} {
		msg, err := consumer.GetMessage(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, msg.Body())
		assert.Equal(t, Holding, consumer.State())
		require.NoError(t, msg.Delete(ctx))
		assert.Equal(t, Polling, consumer.State())
	}

	attrs, ok := fx.sqs.QueueAttributes("orders.fifo")
	require.True(t, ok, "the consumer creates the queue")
	assert.Equal(t, "true", attrs["FifoQueue"])

	stats := s.Stats()
	assert.Equal(t, 1, stats.SQSClients.Size)
	assert.Equal(t, 1, stats.QueueURLs)
}

func TestSessionSharesClientsPerCredentials(t *testing.T) {
	fx := newFixture()
	s := newTestSession(t, fx, nil)
	ctx := testContext(t)

	other := testCreds
	other.AccessKey = "AKIAOTHER"

	for _, creds := range []Credentials{testCreds, testCreds, other} {
		p, err := s.NewProducer(s.ProducerConfig(creds, "shared.fifo"))
		require.NoError(t, err)
		require.NoError(t, p.Send(ctx, "hello"))
	}

	assert.Equal(t, int32(2), fx.builds.Load())
	assert.Equal(t, 2, s.Stats().SQSClients.Size)
}

func TestSessionFileRoundTrip(t *testing.T) {
	fx := newFixture()
	cfg := DefaultConfig()
	cfg.Storage.BackgroundWrite = true
	s := newTestSession(t, fx, cfg)
	ctx := testContext(t)

	f, err := s.NewFileFromURI(ctx, testCreds, "s3://assets/site/index.html")
	require.NoError(t, err)
	assert.True(t, f.Config().BackgroundWrite)

	require.NoError(t, f.WriteString(ctx, "<html></html>"))
	require.NoError(t, f.WaitForWrites(ctx))

	got, err := f.ReadString(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", got)

	obj, ok := fx.s3.Object("assets", "site/index.html")
	require.True(t, ok)
	assert.Equal(t, "text/html; charset=utf-8", obj.ContentType)
	assert.Equal(t, s3.CacheControl, obj.CacheControl)

	_, err = s.NewFile(ctx, s.FileConfig(testCreds, "missing-bucket", "a.txt"))
	assert.True(t, errors.Is(err, ckerrors.ErrResourceNotFound))
	assert.Equal(t, 1, s.Stats().Buckets)
}

func TestShutdownIsIdempotent(t *testing.T) {
	fx := newFixture()
	s := newTestSession(t, fx, nil)
	ctx := testContext(t)

	p, err := s.NewProducer(s.ProducerConfig(testCreds, "jobs.fifo"))
	require.NoError(t, err)
	require.NoError(t, p.Send(ctx, "work"))

	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), fx.closes.Load(), "each client is closed once")

	_, err = s.NewProducer(s.ProducerConfig(testCreds, "jobs.fifo"))
	assert.True(t, errors.Is(err, ckerrors.ErrSessionClosed))
	_, err = s.NewConsumer(ctx, s.ConsumerConfig(testCreds, "jobs.fifo"))
	assert.True(t, errors.Is(err, ckerrors.ErrSessionClosed))
	_, err = s.NewFile(ctx, s.FileConfig(testCreds, "assets", "a.txt"))
	assert.True(t, errors.Is(err, ckerrors.ErrSessionClosed))
}

func TestShutdownDrainsBackgroundWrites(t *testing.T) {
	fx := newFixture()
	cfg := DefaultConfig()
	cfg.Storage.BackgroundWrite = true
	s := newTestSession(t, fx, cfg)
	ctx := testContext(t)

	f, err := s.NewFile(ctx, s.FileConfig(testCreds, "assets", "late.json"))
	require.NoError(t, err)

	release := fx.s3.HoldPuts()
	require.NoError(t, f.WriteString(ctx, `{"late":true}`))

	done := make(chan error, 1)
	go func() { done <- s.Shutdown(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Shutdown returned before the upload finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	release()
	require.NoError(t, <-done)

	obj, ok := fx.s3.Object("assets", "late.json")
	require.True(t, ok)
	assert.Equal(t, `{"late":true}`, string(obj.Data))
}

func TestSessionHandler(t *testing.T) {
	fx := newFixture()
	s := newTestSession(t, fx, nil)

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestParseObjectURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{uri: "s3://assets/index.html", wantBucket: "assets", wantKey: "index.html"},
		{uri: "s3://my.bucket/a/b/c.json", wantBucket: "my.bucket", wantKey: "a/b/c.json"},
		{uri: "s3://assets", wantErr: true},
		{uri: "s3://assets/", wantErr: true},
		{uri: "s3:///key.txt", wantErr: true},
		{uri: "gcs://assets/key.txt", wantErr: true},
		{uri: "", wantErr: true},
		{uri: "://invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseObjectURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ckerrors.ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestLoadConfigAppliesEnv(t *testing.T) {
	t.Setenv("CLOUDKIT_QUEUE_VISIBILITY_TIMEOUT", "2m")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Queue.VisibilityTimeout)
}
