package persistent

import (
	"bytes"
	"context"
	"fmt"

	"github.com/andreyxaxa/Event-Gateway/pkg/s3client"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const snapshotContentType = "image/jpeg"

// SnapshotRepo хранит превью-кадры обогащенных событий в S3-совместимом
// хранилище.
type SnapshotRepo struct {
	*s3client.S3Client
	bucket string
}

func NewSnapshotRepo(s3c *s3client.S3Client, bucket string) *SnapshotRepo {
	return &SnapshotRepo{s3c, bucket}
}

func (r *SnapshotRepo) Upload(ctx context.Context, key string, data []byte) error {
	_, err := r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(snapshotContentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("SnapshotRepo - Upload - r.Client.PutObject: %w", err)
	}

	return nil
}

func (r *SnapshotRepo) Delete(ctx context.Context, key string) error {
	_, err := r.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("SnapshotRepo - Delete - r.Client.DeleteObject: %w", err)
	}

	return nil
}
