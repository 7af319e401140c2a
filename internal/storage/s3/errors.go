package s3

import (
	"context"
	"errors"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

const component = "storage"

// translateError converts a provider error into a cloudkit error for bucket/key.
func translateError(err error, operation, bucket, key string) error {
	var ckErr *ckerrors.CloudKitError

	switch {
	case err == nil:
		return nil
	case errors.As(err, &ckErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ckerrors.Canceled(operation, err).
			WithComponent(component).
			WithContext("bucket", bucket).
			WithContext("key", key)
	case isBucketMissing(err):
		return ckerrors.ResourceNotFound("bucket", bucket).
			WithComponent(component).
			WithOperation(operation).
			WithCause(err)
	default:
		return ckerrors.Transport(operation, bucket+"/"+key, err).
			WithComponent(component).
			WithContext("bucket", bucket).
			WithContext("key", key)
	}
}

// isObjectMissing reports whether err says the object does not exist.
func isObjectMissing(err error) bool {
	switch {
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return true
	default:
		return hasAPICode(err, "NoSuchKey", "NotFound")
	}
}

// isBucketMissing reports whether err says the bucket does not exist.
func isBucketMissing(err error) bool {
	return isErrorType[*s3types.NoSuchBucket](err) || hasAPICode(err, "NoSuchBucket")
}

func hasAPICode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
