package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/weathermesh/weathermesh/server/internal/config"
)

// s3API is the subset of *s3.Client the driver uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores snapshots as objects in a single bucket under a key prefix.
type S3 struct {
	client s3API
	bucket string
	prefix string
}

// NewS3 builds an S3 Backend. Endpoint and PathStyle allow MinIO and other
// S3-compatible stores; without static credentials the default AWS chain is used.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("snapshot: s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if ak, sk, ok := cfg.Credentials(); ok {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, sk, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3WithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3WithClient(client s3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) Driver() Driver { return DriverS3 }

func (s *S3) Close() error { return nil }

func (s *S3) stationKey(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	return s.prefix + stationsDir + "/" + id, nil
}

func (s *S3) indexKey() string { return s.prefix + indexName }

func (s *S3) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("snapshot: put %q: %w", key, err)
	}
	return nil
}

// get returns ErrNotFound when the object does not exist.
func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("snapshot: get %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %q: %w", key, err)
	}
	return data, nil
}

func (s *S3) delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return fmt.Errorf("snapshot: delete %q: %w", key, err)
	}
	return nil
}

func (s *S3) WriteSnapshot(ctx context.Context, id string, data []byte) error {
	key, err := s.stationKey(id)
	if err != nil {
		return err
	}
	return s.put(ctx, key, data)
}

func (s *S3) ReadSnapshot(ctx context.Context, id string) ([]byte, error) {
	key, err := s.stationKey(id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, key)
}

func (s *S3) DeleteSnapshot(ctx context.Context, id string) error {
	key, err := s.stationKey(id)
	if err != nil {
		return err
	}
	return s.delete(ctx, key)
}

func (s *S3) WriteIndex(ctx context.Context, ids []string) error {
	return s.put(ctx, s.indexKey(), encodeIndex(ids))
}

func (s *S3) ReadIndex(ctx context.Context) ([]string, error) {
	data, err := s.get(ctx, s.indexKey())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeIndex(data), nil
}

// Purge deletes every object under the prefix's stations/ path and the index.
func (s *S3) Purge(ctx context.Context) error {
	prefix := s.prefix + stationsDir + "/"
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if err := s.delete(ctx, aws.ToString(obj.Key)); err != nil {
				return err
			}
		}
	}
	return s.delete(ctx, s.indexKey())
}
