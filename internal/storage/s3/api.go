package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objectfs/cloudkit/internal/awsclient"
)

// API is the subset of the S3 client used by this package, including the calls the
// transfer manager makes for multipart uploads and ranged downloads.
type API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient

	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ API = (*s3.Client)(nil)

// ClientCache caches S3 clients per credential set.
type ClientCache = awsclient.ClientCache[API]

// TransferCache caches transfer managers per credential set.
type TransferCache = awsclient.ClientCache[*Transfer]
