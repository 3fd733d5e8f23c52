//go:build integration

package s3

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/remote"
	"github.com/jladan/glacier-upload/internal/remote/awsconf"
	"github.com/jladan/glacier-upload/internal/treehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
)

func startMinio(t *testing.T, ctx context.Context) awsconf.Options {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "9000")
	require.NoError(t, err)

	return awsconf.Options{
		Region:    "us-east-1",
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey: minioUser,
		SecretKey: minioPassword,
	}
}

func TestIntegration_MultipartUploadAgainstMinio(t *testing.T) {
	ctx := context.Background()
	opts := startMinio(t, ctx)

	store, err := NewFromOptions(ctx, opts, "it")
	require.NoError(t, err)

	client := store.api.(*s3.Client)
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("archives")})
	require.NoError(t, err)

	// S3 requires every part but the last to be at least 5 MiB
	const chunkSize = 8 << 20
	data := testData(2*chunkSize + 4321)
	plan, err := chunker.NewPlan(int64(len(data)), chunkSize)
	require.NoError(t, err)

	jobID, err := store.Initiate(ctx, remote.InitiateRequest{Vault: "archives", Description: "it", ChunkSize: chunkSize, TotalSize: int64(len(data))})
	require.NoError(t, err)

	var digests []treehash.Digest
	for _, r := range plan.Chunks() {
		d := treehash.ChunkHash(data[r.Start:r.End])
		require.NoError(t, store.UploadPart(ctx, jobID, r, data[r.Start:r.End], d))
		digests = append(digests, d)
	}
	want, err := treehash.TreeHash(digests)
	require.NoError(t, err)

	res, err := store.Complete(ctx, jobID, int64(len(data)), want)
	require.NoError(t, err)
	assert.Equal(t, want, res.Hash)

	got, err := store.hashObject(ctx, "archives", res.ArchiveID, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
