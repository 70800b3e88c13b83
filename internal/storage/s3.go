package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 sums object sizes in a bucket.
type S3 struct {
	Bucket string
	Prefix string
	client s3.ListObjectsV2APIClient
}

func newS3(ctx context.Context, cfg map[string]any) (Driver, error) {
	bucket := str(cfg, "bucket")
	if bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	var opts []func(*config.LoadOptions) error
	if region := str(cfg, "region"); region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if ak, sk := str(cfg, "access_key"), str(cfg, "secret_key"); ak != "" && sk != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ak, sk, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	endpoint := str(cfg, "endpoint")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{Bucket: bucket, Prefix: str(cfg, "prefix"), client: client}, nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client s3.ListObjectsV2APIClient, bucket, prefix string) *S3 {
	return &S3{Bucket: bucket, Prefix: prefix, client: client}
}

func (s *S3) Usage(ctx context.Context) (int64, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.Bucket)}
	if s.Prefix != "" {
		in.Prefix = aws.String(s.Prefix)
	}
	var total int64
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, obj := range page.Contents {
			total += aws.ToInt64(obj.Size)
		}
	}
	return total, nil
}
