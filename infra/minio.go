package infra

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/harborcrm/crm-import-orchestrator/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient stores export artifacts (generated spreadsheets). Import
// payloads are embedded in the job row itself and never touch object storage.
type MinioClient struct {
	Client       *minio.Client
	ExportBucket string
}

func InitMinioClient(cfg *config.EnvConfig) *MinioClient {
	endpoint := cfg.Minio.Endpoint
	if endpoint == "" {
		panic("MinIO endpoint is not configured")
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Minio.RootUser, cfg.Minio.RootPassword, ""),
		Secure: false,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize MinIO client: %v", err))
	}

	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, cfg.Minio.ExportBucket)
	if err != nil {
		panic(fmt.Sprintf("Failed to check export bucket: %v", err))
	}
	if !exists {
		if err := minioClient.MakeBucket(ctx, cfg.Minio.ExportBucket, minio.MakeBucketOptions{}); err != nil {
			panic(fmt.Sprintf("Failed to create export bucket: %v", err))
		}
		log.Println("Created export bucket:", cfg.Minio.ExportBucket)
	}

	return &MinioClient{
		Client:       minioClient,
		ExportBucket: cfg.Minio.ExportBucket,
	}
}

// PutExportObject uploads a finished export artifact and returns its object key.
func (m *MinioClient) PutExportObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.ExportBucket, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put export object %s: %w", objectKey, err)
	}
	return nil
}
