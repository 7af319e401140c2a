// Package queuetest provides an in-memory FIFO queue service for tests.
package queuetest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
)

// Operation names accepted by FailNext and Calls.
const (
	OpGetQueueUrl             = "GetQueueUrl"
	OpCreateQueue             = "CreateQueue"
	OpSendMessage             = "SendMessage"
	OpReceiveMessage          = "ReceiveMessage"
	OpDeleteMessage           = "DeleteMessage"
	OpChangeMessageVisibility = "ChangeMessageVisibility"
)

const (
	dedupWindow              = 5 * time.Minute
	defaultEmptyReceiveDelay = 2 * time.Millisecond

	receiptExpiredMessage = "Value %s for parameter ReceiptHandle is invalid. Reason: The receipt handle has expired."
)

// FakeSQS models FIFO queues with message groups, visibility windows, receive counts
// and content deduplication. Its clock only moves forward through Advance, on top of
// real time.
type FakeSQS struct {
	mu     sync.Mutex
	offset time.Duration
	seq    int

	queues   map[string]*fakeQueue
	byURL    map[string]*fakeQueue
	calls    map[string]int
	failures map[string][]error
	sent     []sqs.SendMessageInput

	// EmptyReceiveDelay replaces the long-poll wait when no message is available.
	EmptyReceiveDelay time.Duration
}

type fakeQueue struct {
	name       string
	url        string
	attributes map[string]string
	messages   []*fakeMessage
	dedup      map[string]dedupEntry
}

type dedupEntry struct {
	messageID string
	at        time.Time
}

type fakeMessage struct {
	id             string
	body           string
	group          string
	receiveCount   int
	receipt        string
	invisibleUntil time.Time
	deleted        bool
}

// New returns an empty fake.
func New() *FakeSQS {
	return &FakeSQS{
		queues:            make(map[string]*fakeQueue),
		byURL:             make(map[string]*fakeQueue),
		calls:             make(map[string]int),
		failures:          make(map[string][]error),
		EmptyReceiveDelay: defaultEmptyReceiveDelay,
	}
}

// Advance moves the fake clock forward.
func (f *FakeSQS) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset += d
}

// FailNext makes the next call of op return err.
func (f *FakeSQS) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// Calls returns how many times op was invoked.
func (f *FakeSQS) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Sent returns a copy of every accepted SendMessage input.
func (f *FakeSQS) Sent() []sqs.SendMessageInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sqs.SendMessageInput(nil), f.sent...)
}

// QueueAttributes returns the attributes a queue was created with.
func (f *FakeSQS) QueueAttributes(name string) (map[string]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.queues[name]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(q.attributes))
	for k, v := range q.attributes {
		out[k] = v
	}
	return out, true
}

// AddQueue creates a queue directly and returns its URL.
func (f *FakeSQS) AddQueue(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addQueue(name, map[string]string{"FifoQueue": "true"}).url
}

// Pending returns the number of undeleted messages in a queue.
func (f *FakeSQS) Pending(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.queues[name]
	if !ok {
		return 0
	}
	n := 0
	for _, m := range q.messages {
		if !m.deleted {
			n++
		}
	}
	return n
}

func (f *FakeSQS) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpGetQueueUrl); err != nil {
		return nil, err
	}

	q, ok := f.queues[aws.ToString(params.QueueName)]
	if !ok {
		return nil, &sqstypes.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")}
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(q.url)}, nil
}

func (f *FakeSQS) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpCreateQueue); err != nil {
		return nil, err
	}

	name := aws.ToString(params.QueueName)
	if strings.HasSuffix(name, ".fifo") != (params.Attributes["FifoQueue"] == "true") {
		return nil, invalidParameter("The name of a FIFO queue can only include alphanumeric characters, hyphens, or underscores, must end with .fifo suffix.")
	}

	if q, ok := f.queues[name]; ok {
		return &sqs.CreateQueueOutput{QueueUrl: aws.String(q.url)}, nil
	}
	return &sqs.CreateQueueOutput{QueueUrl: aws.String(f.addQueue(name, params.Attributes).url)}, nil
}

func (f *FakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpSendMessage); err != nil {
		return nil, err
	}

	q, err := f.queue(params.QueueUrl)
	if err != nil {
		return nil, err
	}
	if aws.ToString(params.MessageBody) == "" {
		return nil, invalidParameter("The request must contain the parameter MessageBody.")
	}
	if params.MessageGroupId == nil {
		return nil, &smithy.GenericAPIError{Code: "MissingParameter", Message: "The request must contain the parameter MessageGroupId."}
	}
	dedupID := aws.ToString(params.MessageDeduplicationId)
	if dedupID == "" && q.attributes["ContentBasedDeduplication"] != "true" {
		return nil, invalidParameter("The queue should either have ContentBasedDeduplication enabled or MessageDeduplicationId provided explicitly")
	}

	now := f.now()
	if prev, ok := q.dedup[dedupID]; ok && now.Sub(prev.at) < dedupWindow {
		return &sqs.SendMessageOutput{MessageId: aws.String(prev.messageID)}, nil
	}

	f.seq++
	msg := &fakeMessage{
		id:    fmt.Sprintf("msg-%06d", f.seq),
		body:  aws.ToString(params.MessageBody),
		group: aws.ToString(params.MessageGroupId),
	}
	q.messages = append(q.messages, msg)
	q.dedup[dedupID] = dedupEntry{messageID: msg.id, at: now}
	f.sent = append(f.sent, *params)

	return &sqs.SendMessageOutput{
		MessageId:      aws.String(msg.id),
		SequenceNumber: aws.String(strconv.Itoa(f.seq)),
	}, nil
}

func (f *FakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()

	if err := f.begin(ctx, OpReceiveMessage); err != nil {
		f.mu.Unlock()
		return nil, err
	}

	q, err := f.queue(params.QueueUrl)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}

	limit := int(params.MaxNumberOfMessages)
	if limit <= 0 {
		limit = 1
	}
	visibility := time.Duration(params.VisibilityTimeout) * time.Second
	if visibility == 0 {
		visibility = 30 * time.Second
	}

	now := f.now()
	var out []sqstypes.Message
	blocked := make(map[string]bool)
	for _, m := range q.messages {
		if len(out) == limit {
			break
		}
		if m.deleted {
			continue
		}
		if blocked[m.group] {
			continue
		}
		// Within a group only the oldest undeleted message is deliverable.
		blocked[m.group] = true
		if now.Before(m.invisibleUntil) {
			continue
		}

		f.seq++
		m.receiveCount++
		m.receipt = fmt.Sprintf("rh-%s-%d", m.id, f.seq)
		m.invisibleUntil = now.Add(visibility)

		msg := sqstypes.Message{
			MessageId:     aws.String(m.id),
			Body:          aws.String(m.body),
			ReceiptHandle: aws.String(m.receipt),
			Attributes:    map[string]string{},
		}
		for _, name := range params.MessageSystemAttributeNames {
			switch name {
			case sqstypes.MessageSystemAttributeNameApproximateReceiveCount, sqstypes.MessageSystemAttributeNameAll:
				msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)] = strconv.Itoa(m.receiveCount)
			}
			if name == sqstypes.MessageSystemAttributeNameMessageGroupId || name == sqstypes.MessageSystemAttributeNameAll {
				msg.Attributes[string(sqstypes.MessageSystemAttributeNameMessageGroupId)] = m.group
			}
		}
		out = append(out, msg)
	}
	delay := f.EmptyReceiveDelay
	f.mu.Unlock()

	if len(out) == 0 && delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (f *FakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpDeleteMessage); err != nil {
		return nil, err
	}

	m, err := f.held(params.QueueUrl, aws.ToString(params.ReceiptHandle))
	if err != nil {
		return nil, err
	}
	m.deleted = true
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *FakeSQS) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin(ctx, OpChangeMessageVisibility); err != nil {
		return nil, err
	}

	m, err := f.held(params.QueueUrl, aws.ToString(params.ReceiptHandle))
	if err != nil {
		return nil, err
	}
	m.invisibleUntil = f.now().Add(time.Duration(params.VisibilityTimeout) * time.Second)
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

// Helper methods

func (f *FakeSQS) now() time.Time {
	return time.Now().Add(f.offset)
}

func (f *FakeSQS) begin(ctx context.Context, op string) error {
	f.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if queued := f.failures[op]; len(queued) > 0 {
		f.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (f *FakeSQS) addQueue(name string, attrs map[string]string) *fakeQueue {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	q := &fakeQueue{
		name:       name,
		url:        "https://sqs.us-east-1.amazonaws.com/000000000000/" + name,
		attributes: copied,
		dedup:      make(map[string]dedupEntry),
	}
	f.queues[name] = q
	f.byURL[q.url] = q
	return q
}

func (f *FakeSQS) queue(url *string) (*fakeQueue, error) {
	q, ok := f.byURL[aws.ToString(url)]
	if !ok {
		return nil, &sqstypes.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")}
	}
	return q, nil
}

// held finds the message a receipt handle was issued for, failing when the handle is
// unknown, superseded by a later receive, or past its visibility window.
func (f *FakeSQS) held(url *string, receipt string) (*fakeMessage, error) {
	q, err := f.queue(url)
	if err != nil {
		return nil, err
	}

	for _, m := range q.messages {
		if m.receipt != receipt {
			continue
		}
		if m.deleted {
			return m, nil
		}
		if !f.now().Before(m.invisibleUntil) {
			return nil, invalidParameter(fmt.Sprintf(receiptExpiredMessage, receipt))
		}
		return m, nil
	}

	for _, m := range q.messages {
		if strings.HasPrefix(receipt, "rh-"+m.id+"-") {
			return nil, invalidParameter(fmt.Sprintf(receiptExpiredMessage, receipt))
		}
	}
	return nil, &sqstypes.ReceiptHandleIsInvalid{Message: aws.String("The input receipt handle is invalid.")}
}

func invalidParameter(msg string) error {
	return &smithy.GenericAPIError{Code: "InvalidParameterValue", Message: msg}
}
