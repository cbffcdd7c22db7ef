// Package s3 uploads result snapshots to Amazon S3 or an S3-compatible store.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
	"github.com/JakeFAU/dualsub-crawler/internal/export"
)

// Config contains minimal configuration for creating an S3 client. Empty
// values fall back to the standard AWS config and credential chain.
type Config struct {
	Bucket  string
	Prefix  string
	Region  string
	Profile string
	// Endpoint targets an S3-compatible service instead of AWS.
	Endpoint     string
	UsePathStyle bool
}

// PutObjectAPI is the narrow slice of the S3 client the exporter needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes snapshots to an S3 bucket.
type Exporter struct {
	client PutObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

var _ crawler.Exporter = (*Exporter)(nil)

// New creates an exporter using the default AWS configuration chain.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg)
}

// NewWithClient builds an exporter around an existing client.
func NewWithClient(client PutObjectAPI, cfg Config) (*Exporter, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Exporter{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

// Export uploads entries and returns the s3:// URI of the snapshot.
func (e *Exporter) Export(ctx context.Context, entries []crawler.ResultEntry) (string, error) {
	data, err := export.Encode(entries)
	if err != nil {
		return "", err
	}
	key := export.ObjectName(e.prefix, e.now())
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(export.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", e.bucket, key), nil
}
