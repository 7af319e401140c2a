package types

import (
	"context"
	"time"
)

// Producer publishes messages to a FIFO queue.
type Producer interface {
	Send(ctx context.Context, message string) error
}

// Message is a received message held invisible until deleted or its window lapses.
type Message interface {
	ID() string
	Body() string
	Delete(ctx context.Context) error
	NumberOfTimesRead() (int, error)
}

// File is a single object addressed by bucket and name.
type File interface {
	Exists(ctx context.Context) (bool, error)
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, content []byte) error
	Delete(ctx context.Context) error
}

// MetricsCollector defines the metrics collection interface
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	UpdateCacheSize(cache string, entries int)
	RecordError(operation string, err error)
}
