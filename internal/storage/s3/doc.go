/*
Package s3 reads and writes single objects in pre-existing buckets.

A File names one object in one bucket. Constructing it checks, once per process and
credential set, that the bucket exists; buckets are never created. Reads download
through a transfer manager into a scratch file and treat a missing object as empty
content. Writes derive the content type from the file extension and either block until
the upload completes or return as soon as it has been handed to the transfer manager.

Clients and transfer managers come from awsclient.ClientCache instances so that every
File built from the same credentials shares them:

	clients := awsclient.NewClientCache(s3.NewClientBuilder(settings), awsclient.Options{Name: "s3"})
	transfers := awsclient.NewClientCache(s3.NewTransferBuilder(settings, s3.DefaultTransferOptions()), awsclient.Options{Name: "transfer"})

	file, err := s3.NewFile(ctx, s3.FileConfig{
		Credentials: creds,
		BucketName:  "assets",
		FileName:    "index.html",
	}, s3.Deps{Clients: clients, Transfers: transfers, Buckets: s3.NewBucketCache(nil, logger, nil)})
	if err != nil {
		return err
	}
	err = file.WriteString(ctx, "<html></html>")

# Error Handling

Provider errors are translated at the call site into cloudkit error codes:
RESOURCE_NOT_FOUND for a missing bucket, INVALID_ARGUMENT for rejected input such as an
unsupported extension, OPERATION_CANCELED when the context ends and TRANSPORT otherwise.
*/
package s3
