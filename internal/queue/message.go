package queue

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/types"
)

// ReceiveCountAttribute is the system attribute counting deliveries of a message.
const ReceiveCountAttribute = string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)

// Message is a received message. It stays invisible to other consumers until deleted or
// until its visibility window lapses.
type Message struct {
	consumer      *Consumer
	id            string
	body          string
	receiptHandle string
	attributes    map[string]string
	receivedAt    time.Time

	// mu serializes Delete; deleted is read without it.
	mu      sync.Mutex
	deleted atomic.Bool
}

var _ types.Message = (*Message)(nil)

func newMessage(c *Consumer, m sqstypes.Message) *Message {
	attrs := make(map[string]string, len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = v
	}

	return &Message{
		consumer:      c,
		id:            aws.ToString(m.MessageId),
		body:          aws.ToString(m.Body),
		receiptHandle: aws.ToString(m.ReceiptHandle),
		attributes:    attrs,
		receivedAt:    time.Now(),
	}
}

// ID returns the provider-assigned message id.
func (m *Message) ID() string { return m.id }

// Body returns the message content.
func (m *Message) Body() string { return m.body }

// ReceiptHandle returns the handle this delivery must be acknowledged with.
func (m *Message) ReceiptHandle() string { return m.receiptHandle }

// ReceivedAt returns when the message was received.
func (m *Message) ReceivedAt() time.Time { return m.receivedAt }

// Attributes returns a copy of the system attributes delivered with the message.
func (m *Message) Attributes() map[string]string {
	out := make(map[string]string, len(m.attributes))
	for k, v := range m.attributes {
		out[k] = v
	}
	return out
}

// Deleted reports whether Delete has succeeded.
func (m *Message) Deleted() bool {
	return m.deleted.Load()
}

// Delete acknowledges the message. It must be called before the visibility window
// lapses; otherwise it fails with MESSAGE_VISIBILITY_EXPIRED. Deleting twice is a no-op.
func (m *Message) Delete(ctx context.Context) error {
	if err := m.delete(ctx); err != nil {
		return err
	}
	// m.mu is not held here, so c.mu never nests inside it.
	m.consumer.release(m)
	return nil
}

func (m *Message) delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleted.Load() {
		return nil
	}

	c := m.consumer
	start := time.Now()
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(m.receiptHandle),
	})
	c.metrics.RecordOperation("queue.delete", time.Since(start), 0, err == nil)
	if err != nil {
		err = m.deleteError(err)
		c.metrics.RecordError("queue.delete", err)
		c.health.Observe(component, err)
		return err
	}
	c.health.RecordSuccess(component)

	m.deleted.Store(true)
	c.metrics.RecordMessage(c.config.QueueName, "deleted")
	c.logger.Debug("message deleted", "message_id", m.id)
	return nil
}

// NumberOfTimesRead returns how many times the message has been delivered.
func (m *Message) NumberOfTimesRead() (int, error) {
	raw, ok := m.attributes[ReceiveCountAttribute]
	if !ok {
		return 0, ckerrors.MissingAttribute(ReceiveCountAttribute).
			WithComponent(component).
			WithContext("message_id", m.id)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ckerrors.AttributeParse(ReceiveCountAttribute, raw, err).
			WithComponent(component).
			WithContext("message_id", m.id)
	}
	return n, nil
}

// ChangeVisibility restarts the visibility window at d from now.
func (m *Message) ChangeVisibility(ctx context.Context, d time.Duration) error {
	if d < 0 || d > 12*time.Hour {
		return ckerrors.InvalidArgument("visibility_timeout", "must be between 0s and 12h").WithComponent(component)
	}
	if d%time.Second != 0 {
		return ckerrors.InvalidArgument("visibility_timeout", "must be a whole number of seconds").WithComponent(component)
	}

	c := m.consumer
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(m.receiptHandle),
		VisibilityTimeout: int32(d / time.Second),
	})
	if err != nil {
		if isReceiptExpired(err) {
			return ckerrors.MessageVisibilityExpired(m.id, m.body, err).
				WithComponent(component).
				WithOperation("ChangeMessageVisibility")
		}
		return classify(err, "ChangeMessageVisibility", c.config.QueueName)
	}
	return nil
}

func (m *Message) deleteError(err error) error {
	if isReceiptExpired(err) {
		m.consumer.logger.Warn("message became visible before delete", "message_id", m.id)
		return ckerrors.MessageVisibilityExpired(m.id, m.body, err).
			WithComponent(component).
			WithOperation("DeleteMessage")
	}
	return classify(err, "DeleteMessage", m.consumer.config.QueueName)
}
