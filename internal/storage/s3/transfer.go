package s3

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// TransferOptions size the uploader and downloader.
type TransferOptions struct {
	PartSize    int64
	Concurrency int
	Logger      *slog.Logger
}

// DefaultTransferOptions returns 8MB parts with five concurrent part transfers.
func DefaultTransferOptions() TransferOptions {
	return TransferOptions{
		PartSize:    8 * 1024 * 1024,
		Concurrency: manager.DefaultUploadConcurrency,
	}
}

// Transfer pairs an uploader and downloader over one client and tracks uploads that
// were started in the background.
type Transfer struct {
	uploader   *manager.Uploader
	downloader *manager.Downloader
	logger     *slog.Logger
	stats      *TransferStats

	// idle is closed when pending drops to zero and replaced when it leaves zero.
	mu      sync.Mutex
	pending int
	idle    chan struct{}
	closed  bool
	failed  []error
}

// NewTransfer creates a transfer manager over client.
func NewTransfer(client API, opts TransferOptions) *Transfer {
	if opts.PartSize < manager.MinUploadPartSize {
		opts.PartSize = manager.MinUploadPartSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = manager.DefaultUploadConcurrency
	}

	return &Transfer{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = opts.PartSize
			u.Concurrency = opts.Concurrency
		}),
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = opts.PartSize
			d.Concurrency = opts.Concurrency
		}),
		logger: utils.OrDiscard(opts.Logger).With("component", "transfer"),
		stats:  NewTransferStats(),
		idle:   closedChan(),
	}
}

// Upload uploads input and blocks until the provider confirms it.
func (t *Transfer) Upload(ctx context.Context, input *s3.PutObjectInput, size int64) error {
	start := time.Now()
	out, err := t.uploader.Upload(ctx, input)
	t.stats.RecordUpload(time.Since(start), size, out != nil && out.UploadID != "", err)
	return err
}

// UploadBackground starts uploading input and returns once the upload is accepted.
// The upload outlives ctx's cancellation but keeps its values. Failures are logged and
// reported by the next Wait.
func (t *Transfer) UploadBackground(ctx context.Context, input *s3.PutObjectInput, size int64) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ckerrors.NewError(ckerrors.ErrCodeInternalError, "transfer manager is closed").
			WithComponent(component)
	}
	if t.pending == 0 {
		t.idle = make(chan struct{})
	}
	t.pending++
	t.mu.Unlock()

	t.stats.RecordBackgroundStart()
	go func() {
		defer t.stats.RecordBackgroundDone()

		err := t.Upload(context.WithoutCancel(ctx), input, size)
		if err != nil {
			t.logger.Error("background upload failed",
				"bucket", aws.ToString(input.Bucket),
				"key", aws.ToString(input.Key),
				"error", err)
		}
		t.finish(err)
	}()
	return nil
}

// Download writes the object into w and returns the number of bytes written.
func (t *Transfer) Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput) (int64, error) {
	start := time.Now()
	n, err := t.downloader.Download(ctx, w, input)
	t.stats.RecordDownload(time.Since(start), n, err)
	return n, err
}

// Pending returns the number of background uploads still running.
func (t *Transfer) Pending() int64 {
	return t.stats.Snapshot().BackgroundPending
}

// Stats returns a snapshot of transfer statistics.
func (t *Transfer) Stats() TransferSnapshot {
	return t.stats.Snapshot()
}

// Wait blocks until every background upload has finished or ctx ends, and returns the
// failures collected since the previous Wait.
func (t *Transfer) Wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return ckerrors.Canceled("Wait", ctx.Err()).WithComponent(component)
	}

	t.mu.Lock()
	failed := t.failed
	t.failed = nil
	t.mu.Unlock()

	if len(failed) > 0 {
		return ckerrors.NewError(ckerrors.ErrCodeTransport, "background uploads failed").
			WithComponent(component).
			WithDetail("failures", len(failed)).
			WithCause(errors.Join(failed...))
	}
	return nil
}

// Close rejects new background uploads and waits for running ones.
func (t *Transfer) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	return t.Wait(context.Background())
}

// Helper methods

func (t *Transfer) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.failed = append(t.failed, err)
	}
	t.pending--
	if t.pending == 0 {
		close(t.idle)
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
