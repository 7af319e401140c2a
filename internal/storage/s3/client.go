package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/objectfs/cloudkit/internal/awsclient"
	"github.com/objectfs/cloudkit/pkg/types"
)

// NewClientBuilder returns a builder for real S3 clients.
func NewClientBuilder(settings awsclient.Settings) awsclient.Builder[API] {
	return func(ctx context.Context, creds types.Credentials) (*awsclient.Handle[API], error) {
		client, closer, err := newS3Client(ctx, creds, settings)
		if err != nil {
			return nil, err
		}
		return awsclient.NewHandle[API](client, closer), nil
	}
}

// NewTransferBuilder returns a builder for transfer managers, each over its own S3 client.
// Closing a transfer manager waits for its background uploads.
func NewTransferBuilder(settings awsclient.Settings, opts TransferOptions) awsclient.Builder[*Transfer] {
	return func(ctx context.Context, creds types.Credentials) (*awsclient.Handle[*Transfer], error) {
		client, closer, err := newS3Client(ctx, creds, settings)
		if err != nil {
			return nil, err
		}

		t := NewTransfer(client, opts)
		return awsclient.NewHandle(t, func() error {
			err := t.Close()
			_ = closer()
			return err
		}), nil
	}
}

func newS3Client(ctx context.Context, creds types.Credentials, settings awsclient.Settings) (*s3.Client, func() error, error) {
	awsCfg, closer, err := awsclient.LoadConfig(ctx, creds, settings)
	if err != nil {
		return nil, nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.ForcePathStyle {
			o.UsePathStyle = true
		}
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
		}
	})
	return client, closer, nil
}
