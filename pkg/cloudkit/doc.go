/*
Package cloudkit is a facade over S3 object storage and SQS FIFO queues.

A Session owns every provider client and resource cache. Producers, consumers and files
are cheap handles built from a Session and a small config struct; handles that use the
same credentials share one client.

	sess, err := cloudkit.New()
	if err != nil {
		return err
	}
	defer sess.Close()

	creds := cloudkit.Credentials{AccessKey: key, SecretKey: secret, Region: "us-east-1"}

	producer, err := sess.NewProducer(sess.ProducerConfig(creds, "orders.fifo"))
	if err != nil {
		return err
	}
	if err := producer.Send(ctx, `{"id":42}`); err != nil {
		return err
	}

# Queues

Queue names must end in ".fifo". A missing queue is created when a consumer is built or
when a producer first sends to it. Consumer.GetMessage long-polls until a message arrives or
ctx ends, and the consumer holds that message until Message.Delete succeeds. A delete
after the visibility timeout has lapsed fails with MESSAGE_VISIBILITY_EXPIRED, and the
message will be delivered again.

# Files

A File names one object in a bucket that must already exist. Reading a missing object
returns empty content and deleting one succeeds. Writes carry a content type derived from
the file extension and a 30 day Cache-Control header. With background writes enabled,
Write returns once the upload has started; WaitForWrites and Shutdown wait for it.

# Lifecycle

Shutdown waits for background uploads, closes every client the Session built and stops
its caches. It is safe to call more than once. Handler exposes health and Prometheus
metrics for the caller to mount on its own server.
*/
package cloudkit
