package services

import (
	"context"
	"fmt"
	"time"

	"flowlytix/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BackupService archives tenant database files to object storage before
// destructive agency deletes.
type BackupService interface {
	ArchiveDatabase(ctx context.Context, agency *models.Agency) (string, error)
	EnsureBucketExists(ctx context.Context) error
}

type minioBackupService struct {
	client *minio.Client
	bucket string
}

func NewMinioBackupService(endpoint, accessKey, secretKey, bucket string, useSSL bool) (BackupService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioBackupService{client: client, bucket: bucket}, nil
}

// ArchiveDatabase uploads the agency's database file as
// backups/<agency-id>/<timestamp>.db and returns the object name.
func (m *minioBackupService) ArchiveDatabase(ctx context.Context, agency *models.Agency) (string, error) {
	objectName := fmt.Sprintf("backups/%s/%s.db", agency.ID, time.Now().UTC().Format("20060102T150405Z"))
	_, err := m.client.FPutObject(ctx, m.bucket, objectName, agency.DatabasePath, minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	if err != nil {
		return "", err
	}
	return objectName, nil
}

func (m *minioBackupService) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}
