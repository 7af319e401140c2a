package s3

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objectfs/cloudkit/internal/metrics"
	"github.com/objectfs/cloudkit/internal/validate"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/health"
	"github.com/objectfs/cloudkit/pkg/types"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// FileConfig names one object.
type FileConfig struct {
	Credentials     types.Credentials `yaml:"credentials"`
	BucketName      string            `yaml:"bucket_name" validate:"required"`
	FileName        string            `yaml:"file_name" validate:"required"`
	BackgroundWrite bool              `yaml:"background_write"`
}

// Validate checks the config without touching the network.
func (c FileConfig) Validate() error {
	return validate.Struct(c)
}

// Deps are the shared services a File draws from.
type Deps struct {
	Clients    *ClientCache
	Transfers  *TransferCache
	Buckets    *BucketCache
	ScratchDir string
	Logger     *slog.Logger
	Metrics    *metrics.Collector
	Health     *health.Tracker
}

func (d Deps) check() error {
	switch {
	case d.Clients == nil:
		return ckerrors.InvalidArgument("clients", "must not be nil")
	case d.Transfers == nil:
		return ckerrors.InvalidArgument("transfers", "must not be nil")
	case d.Buckets == nil:
		return ckerrors.InvalidArgument("buckets", "must not be nil")
	}
	return nil
}

// File is one object in one bucket.
type File struct {
	config  FileConfig
	deps    Deps
	logger  *slog.Logger
	metrics *metrics.Collector
}

var _ types.File = (*File)(nil)

// NewFile validates cfg and checks that the bucket exists.
func NewFile(ctx context.Context, cfg FileConfig, deps Deps) (*File, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.check(); err != nil {
		return nil, err
	}

	client, err := deps.Clients.GetClient(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if err := deps.Buckets.Require(ctx, client, cfg.Credentials.Key(), cfg.BucketName); err != nil {
		return nil, err
	}

	return &File{
		config:  cfg,
		deps:    deps,
		logger:  utils.OrDiscard(deps.Logger).With("component", "file", "bucket", cfg.BucketName, "key", cfg.FileName),
		metrics: deps.Metrics,
	}, nil
}

// Config returns the file's configuration.
func (f *File) Config() FileConfig {
	return f.config
}

// Exists reports whether the object exists.
func (f *File) Exists(ctx context.Context) (bool, error) {
	_, err := f.Info(ctx)
	switch {
	case err == nil:
		return true, nil
	case ckerrors.HasCode(err, ckerrors.ErrCodeEntryNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Info returns the object's metadata, or ENTRY_NOT_FOUND if it does not exist.
func (f *File) Info(ctx context.Context) (*types.ObjectInfo, error) {
	client, err := f.client(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.config.BucketName),
		Key:    aws.String(f.config.FileName),
	})
	f.record("storage.head", start, 0, err == nil || isObjectMissing(err), err)
	if err != nil {
		if isObjectMissing(err) {
			return nil, ckerrors.EntryNotFound(f.config.BucketName + "/" + f.config.FileName).
				WithComponent(component).
				WithCause(err)
		}
		return nil, f.translate(err, "HeadObject")
	}

	return &types.ObjectInfo{
		Bucket:       f.config.BucketName,
		Key:          f.config.FileName,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		CacheControl: aws.ToString(out.CacheControl),
	}, nil
}

// Read downloads the object through a scratch file. A missing object reads as empty
// content.
func (f *File) Read(ctx context.Context) ([]byte, error) {
	transfer, err := f.transfer(ctx)
	if err != nil {
		return nil, err
	}

	scratch, err := os.CreateTemp(f.deps.ScratchDir, "cloudkit-read-*")
	if err != nil {
		return nil, ckerrors.NewError(ckerrors.ErrCodeInternalError, "failed to create scratch file").
			WithComponent(component).
			WithContext("dir", f.deps.ScratchDir).
			WithCause(err)
	}
	defer func() {
		_ = scratch.Close()
		_ = os.Remove(scratch.Name())
	}()

	start := time.Now()
	n, err := transfer.Download(ctx, scratch, &s3.GetObjectInput{
		Bucket: aws.String(f.config.BucketName),
		Key:    aws.String(f.config.FileName),
	})
	f.record("storage.read", start, n, err == nil || isObjectMissing(err), err)
	if err != nil {
		if isObjectMissing(err) {
			f.logger.Debug("object does not exist, reading as empty")
			return []byte{}, nil
		}
		return nil, f.translate(err, "GetObject")
	}

	data := make([]byte, n)
	if _, err := scratch.ReadAt(data, 0); err != nil && n > 0 {
		return nil, ckerrors.NewError(ckerrors.ErrCodeInternalError, "failed to read scratch file").
			WithComponent(component).
			WithCause(err)
	}
	return data, nil
}

// ReadString is Read returning a string.
func (f *File) ReadString(ctx context.Context) (string, error) {
	data, err := f.Read(ctx)
	return string(data), err
}

// Write uploads content, replacing the object. In background mode it returns once the
// upload has been accepted; otherwise it blocks until the upload completes. The content
// type is derived from the file name before any provider call is made.
func (f *File) Write(ctx context.Context, content []byte) error {
	contentType, err := ContentType(f.config.FileName)
	if err != nil {
		return err
	}

	transfer, err := f.transfer(ctx)
	if err != nil {
		return err
	}

	body := bytes.Clone(content)
	if body == nil {
		body = []byte{}
	}
	input := &s3.PutObjectInput{
		Bucket:       aws.String(f.config.BucketName),
		Key:          aws.String(f.config.FileName),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(CacheControl),
	}
	size := int64(len(body))

	if f.config.BackgroundWrite {
		if err := transfer.UploadBackground(ctx, input, size); err != nil {
			return err
		}
		f.logger.Debug("background upload accepted", "size", size)
		return nil
	}

	start := time.Now()
	err = transfer.Upload(ctx, input, size)
	f.record("storage.write", start, size, err == nil, err)
	if err != nil {
		return f.translate(err, "PutObject")
	}
	return nil
}

// WriteString is Write for string content.
func (f *File) WriteString(ctx context.Context, content string) error {
	return f.Write(ctx, []byte(content))
}

// Delete removes the object. Deleting a missing object succeeds.
func (f *File) Delete(ctx context.Context) error {
	client, err := f.client(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(f.config.BucketName),
		Key:    aws.String(f.config.FileName),
	})
	f.record("storage.delete", start, 0, err == nil || isObjectMissing(err), err)
	if err != nil && !isObjectMissing(err) {
		return f.translate(err, "DeleteObject")
	}
	return nil
}

// WaitForWrites blocks until background uploads on this file's transfer manager finish.
func (f *File) WaitForWrites(ctx context.Context) error {
	transfer, err := f.transfer(ctx)
	if err != nil {
		return err
	}
	return transfer.Wait(ctx)
}

// Helper methods

func (f *File) client(ctx context.Context) (API, error) {
	return f.deps.Clients.GetClient(ctx, f.config.Credentials)
}

func (f *File) transfer(ctx context.Context) (*Transfer, error) {
	return f.deps.Transfers.GetClient(ctx, f.config.Credentials)
}

func (f *File) translate(err error, operation string) error {
	return translateError(err, operation, f.config.BucketName, f.config.FileName)
}

func (f *File) record(operation string, start time.Time, size int64, success bool, err error) {
	f.metrics.RecordOperation(operation, time.Since(start), size, success)
	if success {
		f.deps.Health.RecordSuccess(component)
		return
	}
	f.metrics.RecordError(operation, err)
	f.deps.Health.Observe(component, translateError(err, operation, f.config.BucketName, f.config.FileName))
}
