package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/NIU1599156/CameraManager/internal/models"
)

const snapshotQuality = 85

var ErrNoFrame = errors.New("event carries no frame")

type Client struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(endpoint, accessKey, secretKey, bucket string) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{client: client, bucket: bucket}, nil
}

func (c *Client) EnsureBucketExists(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// SnapshotKey is <camera_id>/<unix_nano>.jpg.
func SnapshotKey(event models.MotionEvent) string {
	return fmt.Sprintf("%d/%d.jpg", event.CameraID, event.Timestamp.UnixNano())
}

// SaveSnapshot uploads the frame that triggered event as a JPEG and returns
// the object key.
func (c *Client) SaveSnapshot(ctx context.Context, event models.MotionEvent) (string, error) {
	if event.Frame == nil {
		return "", ErrNoFrame
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, event.Frame, &jpeg.Options{Quality: snapshotQuality}); err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := SnapshotKey(event)
	_, err := c.client.PutObject(
		ctx,
		c.bucket,
		key,
		bytes.NewReader(buf.Bytes()),
		int64(buf.Len()),
		minio.PutObjectOptions{
			ContentType: "image/jpeg",
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot to S3: %w", err)
	}

	return key, nil
}
