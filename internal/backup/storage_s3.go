package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3StorageProvider stores backups as objects under a bucket prefix
type S3StorageProvider struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3StorageProvider creates an S3 provider. Without static keys the
// default AWS credential chain is used.
func NewS3StorageProvider(config *S3Config) (*S3StorageProvider, error) {
	if config == nil {
		return nil, NewConfigurationError("S3 storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigurationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return newS3StorageProvider(s3.New(sess), config.Bucket, config.Prefix), nil
}

func newS3StorageProvider(client s3iface.S3API, bucket, prefix string) *S3StorageProvider {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3StorageProvider{client: client, bucket: bucket, prefix: prefix}
}

func (s3p *S3StorageProvider) key(name string) string {
	return s3p.prefix + name
}

// Put uploads data as one object
func (s3p *S3StorageProvider) Put(ctx context.Context, name string, data []byte) error {
	if err := validateObjectName(name); err != nil {
		return err
	}

	_, err := s3p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3p.bucket),
		Key:         aws.String(s3p.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return NewStorageError("failed to upload backup to S3", err).WithContext("key", s3p.key(name))
	}
	return nil
}

// Open streams an object
func (s3p *S3StorageProvider) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateObjectName(name); err != nil {
		return nil, err
	}

	out, err := s3p.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(s3p.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, NewNotFoundError(name, err)
		}
		return nil, NewStorageError("failed to download backup from S3", err)
	}
	return out.Body, nil
}

// Delete removes an object. S3 deletes are idempotent, so existence is checked first.
func (s3p *S3StorageProvider) Delete(ctx context.Context, name string) error {
	if err := validateObjectName(name); err != nil {
		return err
	}

	_, err := s3p.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(s3p.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return NewNotFoundError(name, err)
		}
		return NewStorageError("failed to stat backup in S3", err)
	}

	_, err = s3p.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3p.bucket),
		Key:    aws.String(s3p.key(name)),
	})
	if err != nil {
		return NewStorageError("failed to delete backup from S3", err)
	}
	return nil
}

// List returns the objects directly under the prefix
func (s3p *S3StorageProvider) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	err := s3p.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3p.bucket),
		Prefix: aws.String(s3p.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), s3p.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			objects = append(objects, ObjectInfo{
				Name:    name,
				Size:    aws.Int64Value(obj.Size),
				ModTime: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, NewStorageError("failed to list backups in S3", err)
	}
	return objects, nil
}

// HealthCheck verifies that the bucket is reachable
func (s3p *S3StorageProvider) HealthCheck(ctx context.Context) error {
	_, err := s3p.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s3p.bucket)})
	if err != nil {
		return NewStorageError("S3 bucket is not accessible", err)
	}
	return nil
}

// Location returns the bucket URL
func (s3p *S3StorageProvider) Location() string {
	return fmt.Sprintf("s3://%s/%s", s3p.bucket, s3p.prefix)
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
