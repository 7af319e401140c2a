package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/objectfs/cloudkit/internal/metrics"
	"github.com/objectfs/cloudkit/internal/validate"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/health"
	"github.com/objectfs/cloudkit/pkg/types"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// OrderedGroupID is the message group used by producers with guaranteed ordering.
const OrderedGroupID = "cloudkit_ordered"

// Deps are the shared services producers and consumers draw from.
type Deps struct {
	Clients *ClientCache
	URLs    *QueueURLCache
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Health  *health.Tracker
}

func (d Deps) check() error {
	if d.Clients == nil {
		return ckerrors.InvalidArgument("clients", "must not be nil")
	}
	if d.URLs == nil {
		return ckerrors.InvalidArgument("urls", "must not be nil")
	}
	return nil
}

// ProducerConfig describes where a Producer publishes.
type ProducerConfig struct {
	Credentials     types.Credentials `yaml:"credentials"`
	QueueName       string            `yaml:"queue_name" validate:"required,endswith=.fifo"`
	GuaranteedOrder bool              `yaml:"guaranteed_order"`
}

// DefaultProducerConfig returns a config with guaranteed ordering enabled.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{GuaranteedOrder: true}
}

// Validate checks the config without touching the network.
func (c ProducerConfig) Validate() error {
	return validate.Struct(c)
}

// Producer publishes messages to one FIFO queue.
type Producer struct {
	config  ProducerConfig
	deps    Deps
	logger  *slog.Logger
	metrics *metrics.Collector
}

var _ types.Producer = (*Producer)(nil)

// NewProducer validates cfg and returns a producer. No provider call is made.
func NewProducer(cfg ProducerConfig, deps Deps) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.check(); err != nil {
		return nil, err
	}

	return &Producer{
		config:  cfg,
		deps:    deps,
		logger:  utils.OrDiscard(deps.Logger).With("component", "producer", "queue", cfg.QueueName),
		metrics: deps.Metrics,
	}, nil
}

// Config returns the producer's configuration.
func (p *Producer) Config() ProducerConfig {
	return p.config
}

// Send publishes message exactly once. Failures are returned, never retried here.
func (p *Producer) Send(ctx context.Context, message string) error {
	_, err := p.SendWithID(ctx, message)
	return err
}

// SendWithID publishes message and returns the provider-assigned message id.
func (p *Producer) SendWithID(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", ckerrors.InvalidArgument("message", "must not be empty").WithComponent(component)
	}

	start := time.Now()
	id, err := p.send(ctx, message)
	p.metrics.RecordOperation("queue.send", time.Since(start), int64(len(message)), err == nil)
	p.deps.Health.Observe(component, err)
	if err != nil {
		p.metrics.RecordError("queue.send", err)
		return "", err
	}

	p.metrics.RecordMessage(p.config.QueueName, "sent")
	return id, nil
}

func (p *Producer) send(ctx context.Context, message string) (string, error) {
	client, err := p.deps.Clients.GetClient(ctx, p.config.Credentials)
	if err != nil {
		return "", err
	}

	url, err := p.deps.URLs.Resolve(ctx, client, p.config.Credentials.Key(), p.config.QueueName)
	if err != nil {
		return "", err
	}

	groupID := p.groupID()
	dedupID := NewDeduplicationID()

	out, err := client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(url),
		MessageBody:            aws.String(message),
		MessageGroupId:         aws.String(groupID),
		MessageDeduplicationId: aws.String(dedupID),
	})
	if err != nil {
		return "", classify(err, "SendMessage", p.config.QueueName)
	}

	id := aws.ToString(out.MessageId)
	p.logger.Debug("message sent", "message_id", id, "group_id", groupID, "dedup_id", dedupID)
	return id, nil
}

func (p *Producer) groupID() string {
	if p.config.GuaranteedOrder {
		return OrderedGroupID
	}
	return uuid.NewString()
}
