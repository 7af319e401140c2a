/*
Package types holds the value types and behaviour interfaces shared across cloudkit.

Credentials scope every client cache entry. Their Key combines the access key, the
region and a fingerprint of the secret key, so a rotated secret yields a new client
and no cache key ever contains a secret in clear.

The Producer, Message and File interfaces describe the public surface of
the queue and storage helpers; the concrete implementations live in internal/queue
and internal/storage/s3 and are re-exported by pkg/cloudkit.
*/
package types
