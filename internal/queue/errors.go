package queue

import (
	"context"
	"errors"
	"strings"

	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

const component = "queue"

// receiptExpiredText is the phrase SQS uses when a receipt handle outlived its visibility window.
const receiptExpiredText = "receipt handle has expired"

// classify turns a provider error into a cloudkit error annotated with the operation and queue.
func classify(err error, operation, queueName string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ckerrors.Canceled(operation, err).WithComponent(component).WithContext("queue", queueName)
	}

	var ckErr *ckerrors.CloudKitError
	if errors.As(err, &ckErr) {
		return err
	}

	return ckerrors.Transport(operation, queueName, err).WithComponent(component)
}

// isQueueMissing reports whether err says the queue does not exist.
func isQueueMissing(err error) bool {
	if isErrorType[*sqstypes.QueueDoesNotExist](err) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist":
			return true
		}
	}
	return false
}

// isReceiptExpired reports whether err says the receipt handle is no longer valid because
// the message became visible again.
func isReceiptExpired(err error) bool {
	if strings.Contains(strings.ToLower(err.Error()), receiptExpiredText) {
		return true
	}

	var invalid *sqstypes.ReceiptHandleIsInvalid
	if errors.As(err, &invalid) {
		return strings.Contains(strings.ToLower(invalid.ErrorMessage()), "expired")
	}
	return false
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
