package integrationtests

import (
	"context"
	"testing"
	"time"

	"annotate-backend/internal/database"
	"annotate-backend/internal/storage"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

const bucketName = "annotations"

// setupS3Provider starts a MinIO server and returns a provider with the
// annotations bucket already created.
func setupS3Provider(t *testing.T, ctx context.Context) *storage.S3Provider {
	t.Helper()

	const user, password = "minioadmin", "minio-secret"

	container, err := minio.Run(ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(user),
		minio.WithPassword(password),
	)
	require.NoError(t, err, "starting minio")
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	provider, err := storage.NewS3Provider(storage.S3ClientConfig{
		Endpoint:        "http://" + addr,
		Region:          "us-east-1",
		AccessKeyID:     user,
		SecretAccessKey: password,
	})
	require.NoError(t, err)

	require.NoError(t, provider.CreateBucket(ctx, bucketName))
	return provider
}

// setupRunStore starts postgres and returns a migrated run store.
func setupRunStore(t *testing.T, ctx context.Context) *gorm.DB {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("annotate"),
		postgres.WithUsername("annotate"),
		postgres.WithPassword("annotate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "starting postgres")
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)
	return db
}
