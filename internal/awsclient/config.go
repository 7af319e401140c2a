package awsclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/objectfs/cloudkit/pkg/types"
)

// Settings are the provider client options shared by every builder.
type Settings struct {
	Endpoint            string
	ForcePathStyle      bool
	MaxRetries          int
	MaxBackoff          time.Duration
	MaxIdleConnsPerHost int
}

// DefaultSettings mirrors the defaults in internal/config.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:          3,
		MaxBackoff:          20 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
}

// LoadConfig builds an aws.Config scoped to creds with a dedicated HTTP transport.
// The returned closer releases the transport's idle connections.
func LoadConfig(ctx context.Context, creds types.Credentials, settings Settings) (aws.Config, func() error, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if settings.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = settings.MaxIdleConnsPerHost
	}
	httpClient := &http.Client{Transport: transport}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(creds.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")),
		config.WithHTTPClient(httpClient),
		config.WithRetryer(newRetryer(settings)),
	)
	if err != nil {
		transport.CloseIdleConnections()
		return aws.Config{}, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if settings.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(settings.Endpoint)
	}

	closer := func() error {
		transport.CloseIdleConnections()
		return nil
	}
	return awsCfg, closer, nil
}

// newRetryer applies the SDK's standard retryer. Zero retries disables retrying entirely.
func newRetryer(settings Settings) func() aws.Retryer {
	return func() aws.Retryer {
		if settings.MaxRetries <= 0 {
			return aws.NopRetryer{}
		}
		var r aws.Retryer = retry.NewStandard()
		r = retry.AddWithMaxAttempts(r, settings.MaxRetries+1)
		if settings.MaxBackoff > 0 {
			r = retry.AddWithMaxBackoffDelay(r, settings.MaxBackoff)
		}
		return r
	}
}
