// Package s3 provides an S3-backed objectstore.Provider, using the AWS SDK
// v2 default credential chain (environment, instance profile, IRSA) the way
// the pack's Bedrock clients load credentials.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/auravox/core/pkg/provider/objectstore"
)

const defaultRegion = "us-west-2"

// Provider implements objectstore.Provider backed by an S3 bucket.
type Provider struct {
	client *s3.Client
	bucket string
}

// Compile-time interface check.
var _ objectstore.Provider = (*Provider)(nil)

// New creates a Provider over bucket using the default AWS credential chain.
// region falls back to defaultRegion when empty.
func New(ctx context.Context, bucket, region string) (*Provider, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3: bucket must not be empty")
	}
	if region == "" {
		region = defaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	return &Provider{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// Put uploads data under key and returns the object's virtual-hosted URL.
func (p *Provider) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := p.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3: put %q: %w", key, err)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", p.bucket, key), nil
}

// Fetch downloads the object stored under key.
func (p *Provider) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: get %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %q: %w", key, err)
	}
	return data, nil
}
