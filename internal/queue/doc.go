// Package queue sends and receives messages on FIFO queues.
//
// A Producer publishes each message with a fresh deduplication id and a group id that is
// constant when ordering is guaranteed. A Consumer long-polls for exactly one message at a
// time and hands it out as a Message the caller deletes before its visibility window lapses.
// Both share clients through an awsclient.ClientCache and queue URLs through a QueueURLCache.
package queue
