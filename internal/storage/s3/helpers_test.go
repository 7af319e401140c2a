package s3

import (
	"context"
	"testing"
	"time"

	"github.com/objectfs/cloudkit/internal/awsclient"
	"github.com/objectfs/cloudkit/internal/storage/s3/s3test"
	"github.com/objectfs/cloudkit/pkg/types"
)

var testCreds = types.Credentials{AccessKey: "AKIATEST", SecretKey: "secret", Region: "eu-west-1"}

func newTestDeps(t *testing.T) (*s3test.FakeS3, Deps) {
	t.Helper()

	fake := s3test.New()
	fake.AddBucket("assets")

	clients := awsclient.NewClientCache[API](func(context.Context, types.Credentials) (*awsclient.Handle[API], error) {
		return awsclient.NewHandle[API](fake, nil), nil
	}, awsclient.Options{Name: "s3"})
	transfers := awsclient.NewClientCache[*Transfer](func(context.Context, types.Credentials) (*awsclient.Handle[*Transfer], error) {
		tr := NewTransfer(fake, DefaultTransferOptions())
		return awsclient.NewHandle(tr, tr.Close), nil
	}, awsclient.Options{Name: "transfer"})
	buckets := NewBucketCache(nil, nil, nil)

	t.Cleanup(func() {
		_ = clients.Close(context.Background())
		_ = transfers.Close(context.Background())
		buckets.Close()
	})

	return fake, Deps{
		Clients:    clients,
		Transfers:  transfers,
		Buckets:    buckets,
		ScratchDir: t.TempDir(),
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestFile(t *testing.T, deps Deps, name string) *File {
	t.Helper()

	f, err := NewFile(testContext(t), FileConfig{
		Credentials: testCreds,
		BucketName:  "assets",
		FileName:    name,
	}, deps)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	return f
}
