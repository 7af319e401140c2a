package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/objectfs/cloudkit/internal/metrics"
	"github.com/objectfs/cloudkit/internal/validate"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/health"
	"github.com/objectfs/cloudkit/pkg/types"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// State is the consumer's position in its receive cycle.
type State int

const (
	// Polling means no message is held.
	Polling State = iota
	// Holding means a received message has not been deleted yet.
	Holding
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Holding:
		return "holding"
	default:
		return "unknown"
	}
}

// ConsumerConfig describes where and how a Consumer receives.
type ConsumerConfig struct {
	Credentials       types.Credentials `yaml:"credentials"`
	QueueName         string            `yaml:"queue_name" validate:"required,endswith=.fifo"`
	WaitTime          time.Duration     `yaml:"wait_time" validate:"gte=0s,lte=20s,seconds"`
	VisibilityTimeout time.Duration     `yaml:"visibility_timeout" validate:"gte=1s,lte=12h,seconds"`
}

// DefaultConsumerConfig returns a config with a 20 second long poll and a 60 second
// visibility window.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		WaitTime:          20 * time.Second,
		VisibilityTimeout: 60 * time.Second,
	}
}

// Validate checks the config without touching the network.
func (c ConsumerConfig) Validate() error {
	return validate.Struct(c)
}

// Consumer receives one message at a time from a FIFO queue.
type Consumer struct {
	config   ConsumerConfig
	client   API
	queueURL string
	logger   *slog.Logger
	metrics  *metrics.Collector
	health   *health.Tracker

	mu   sync.Mutex
	held *Message
}

// NewConsumer validates cfg and resolves the client and queue URL once. The queue is
// created if it does not exist.
func NewConsumer(ctx context.Context, cfg ConsumerConfig, deps Deps) (*Consumer, error) {
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

	url, err := deps.URLs.Resolve(ctx, client, cfg.Credentials.Key(), cfg.QueueName)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		config:   cfg,
		client:   client,
		queueURL: url,
		logger:   utils.OrDiscard(deps.Logger).With("component", "consumer", "queue", cfg.QueueName),
		metrics:  deps.Metrics,
		health:   deps.Health,
	}, nil
}

// Clone returns a consumer sharing this one's client and queue URL, in the Polling state.
func (c *Consumer) Clone() *Consumer {
	return &Consumer{
		config:   c.config,
		client:   c.client,
		queueURL: c.queueURL,
		logger:   c.logger,
		metrics:  c.metrics,
		health:   c.health,
	}
}

// Config returns the consumer's configuration.
func (c *Consumer) Config() ConsumerConfig {
	return c.config
}

// QueueURL returns the resolved queue URL.
func (c *Consumer) QueueURL() string {
	return c.queueURL
}

// State reports whether the consumer holds an undeleted message.
func (c *Consumer) State() State {
	c.mu.Lock()
	held := c.held
	c.mu.Unlock()

	if held == nil || held.Deleted() {
		return Polling
	}
	return Holding
}

// GetMessage long-polls until a message arrives or ctx ends. There is no timeout of its
// own; empty receives are retried indefinitely. Cancellation is observed between
// round-trips and surfaces as an OPERATION_CANCELED error.
func (c *Consumer) GetMessage(ctx context.Context) (*Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(c.config.WaitTime / time.Second),
		VisibilityTimeout:   int32(c.config.VisibilityTimeout / time.Second),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
	}

	for polls := 1; ; polls++ {
		if err := ctx.Err(); err != nil {
			return nil, ckerrors.Canceled("ReceiveMessage", err).
				WithComponent(component).
				WithContext("queue", c.config.QueueName)
		}

		start := time.Now()
		out, err := c.client.ReceiveMessage(ctx, input)
		c.metrics.RecordOperation("queue.receive", time.Since(start), 0, err == nil)
		if err != nil {
			err = classify(err, "ReceiveMessage", c.config.QueueName)
			c.metrics.RecordError("queue.receive", err)
			c.health.Observe(component, err)
			return nil, err
		}
		c.health.RecordSuccess(component)

		if len(out.Messages) == 0 {
			continue
		}

		msg := newMessage(c, out.Messages[0])
		c.mu.Lock()
		c.held = msg
		c.mu.Unlock()

		c.metrics.RecordMessage(c.config.QueueName, "received")
		c.logger.Debug("message received", "message_id", msg.ID(), "polls", polls)
		return msg, nil
	}
}

func (c *Consumer) release(m *Message) {
	c.mu.Lock()
	if c.held == m {
		c.held = nil
	}
	c.mu.Unlock()
}
