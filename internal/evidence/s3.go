package evidence

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"gate-access-backend/config"
)

// objectPutter is the part of the S3 client the store needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes images to an S3 compatible bucket (AWS, MinIO).
type S3Store struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

// NewS3Store creates a path-style S3 client for cfg.Endpoint.
func NewS3Store(cfg config.EvidenceConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("evidence.bucket is required for the s3 driver")
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		endpointURL := cfg.Endpoint
		if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
			protocol := "http"
			if cfg.UseSSL {
				protocol = "https"
			}
			endpointURL = protocol + "://" + endpointURL
		}
		opts.BaseEndpoint = aws.String(endpointURL)
	}

	return &S3Store{client: s3.New(opts), bucket: cfg.Bucket, now: time.Now}, nil
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, kind string, data []byte) (string, error) {
	key := objectKey(kind, data, s.now())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload evidence %s: %w", key, err)
	}
	return key, nil
}
