package queue

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/objectfs/cloudkit/internal/awsclient"
	"github.com/objectfs/cloudkit/pkg/types"
)

// NewClientBuilder returns a builder for real SQS clients.
func NewClientBuilder(settings awsclient.Settings) awsclient.Builder[API] {
	return func(ctx context.Context, creds types.Credentials) (*awsclient.Handle[API], error) {
		awsCfg, closer, err := awsclient.LoadConfig(ctx, creds, settings)
		if err != nil {
			return nil, err
		}

		client := sqs.NewFromConfig(awsCfg)
		return awsclient.NewHandle[API](client, closer), nil
	}
}
