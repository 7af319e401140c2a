package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

func TestIsObjectMissing(t *testing.T) {
	assert.True(t, isObjectMissing(&s3types.NoSuchKey{}))
	assert.True(t, isObjectMissing(fmt.Errorf("wrapped: %w", &s3types.NotFound{Message: aws.String("nope")})))
	assert.True(t, isObjectMissing(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isObjectMissing(&s3types.NoSuchBucket{}))
	assert.False(t, isObjectMissing(errors.New("not found")))
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil, "GetObject", "b", "k"))

	err := translateError(&s3types.NoSuchBucket{}, "GetObject", "b", "k")
	assert.True(t, errors.Is(err, ckerrors.ErrResourceNotFound))

	err = translateError(context.DeadlineExceeded, "PutObject", "b", "k")
	assert.True(t, errors.Is(err, ckerrors.ErrOperationCanceled))

	err = translateError(errors.New("reset"), "PutObject", "b", "k")
	var ckErr *ckerrors.CloudKitError
	assert.True(t, errors.As(err, &ckErr))
	assert.Equal(t, ckerrors.ErrCodeTransport, ckErr.Code)
	assert.Equal(t, "storage", ckErr.Component)
	assert.Equal(t, "b/k", ckErr.Context["resource"])
}
