package queue

import (
	"context"
	"testing"
	"time"

	"github.com/objectfs/cloudkit/internal/awsclient"
	"github.com/objectfs/cloudkit/internal/queue/queuetest"
	"github.com/objectfs/cloudkit/pkg/types"
)

var testCreds = types.Credentials{AccessKey: "AKIATEST", SecretKey: "secret", Region: "us-east-1"}

func newTestDeps(t *testing.T) (*queuetest.FakeSQS, Deps) {
	t.Helper()

	fake := queuetest.New()
	return fake, newTestDepsFor(t, fake)
}

// newTestDepsFor serves every credential set from client.
func newTestDepsFor(t *testing.T, client API) Deps {
	t.Helper()

	clients := awsclient.NewClientCache[API](func(context.Context, types.Credentials) (*awsclient.Handle[API], error) {
		return awsclient.NewHandle[API](client, nil), nil
	}, awsclient.Options{Name: "sqs"})
	urls := NewQueueURLCache(nil, nil, nil)

	t.Cleanup(func() {
		_ = clients.Close(context.Background())
		urls.Close()
	})
	return Deps{Clients: clients, URLs: urls}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestConsumer(t *testing.T, deps Deps, queueName string, visibility time.Duration) *Consumer {
	t.Helper()

	cfg := DefaultConsumerConfig()
	cfg.Credentials = testCreds
	cfg.QueueName = queueName
	cfg.WaitTime = 0
	cfg.VisibilityTimeout = visibility

	c, err := NewConsumer(testContext(t), cfg, deps)
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	return c
}

func newTestProducer(t *testing.T, deps Deps, queueName string) *Producer {
	t.Helper()

	cfg := DefaultProducerConfig()
	cfg.Credentials = testCreds
	cfg.QueueName = queueName

	p, err := NewProducer(cfg, deps)
	if err != nil {
		t.Fatalf("NewProducer() error = %v", err)
	}
	return p
}
