// Package s3source serves pngraw byte-source reads from an S3 object with
// ranged GET requests, so a decode fetches only the chunk headers and the
// payloads it needs.
package s3source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/jpillora/backoff"
	"github.com/svanichkin/pngraw/internal/oops"
)

// API is the subset of *s3.Client used by Source.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientConfig holds the connection settings for NewClient.
type ClientConfig struct {
	Region string
	// Endpoint overrides the AWS endpoint, for S3-compatible stores.
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// NewClient builds an S3 client. Without an access key the default AWS
// credential chain is used.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		opts = append(opts, awsconfig.WithEndpointResolver(aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: endpoint,
			}, nil
		})))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.New(err, "failed to load AWS config")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// ParseURL splits "s3://bucket/key".
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3:// URL: %q", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 URL has no object key: %q", raw)
	}
	return u.Host, key, nil
}

// IsURL reports whether path names an S3 object.
func IsURL(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// Options bounds the retries of a Source's ranged reads.
type Options struct {
	// Retries is the number of extra attempts for a read that failed with a
	// transient error.
	Retries    int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

var DefaultOptions = Options{
	Retries:    3,
	MinBackoff: 100 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
}

// Source is a pngraw.ByteSource over one S3 object. Reads are independent
// requests, so a Source may serve concurrent decodes.
//
// The context given to Open bounds every read; pngraw itself has no
// cancellation.
type Source struct {
	ctx    context.Context
	client API
	bucket string
	key    string
	size   int64
	opts   Options
}

// Open looks up the object's size and returns a Source for it.
func Open(ctx context.Context, client API, bucket, key string, opts *Options) (*Source, error) {
	if opts == nil {
		opts = &DefaultOptions
	}
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, oops.New(err, "failed to stat s3://%s/%s", bucket, key)
	}
	return &Source{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
		size:   head.ContentLength,
		opts:   *opts,
	}, nil
}

func (s *Source) Len() int64 { return s.size }

func (s *Source) String() string { return fmt.Sprintf("s3://%s/%s", s.bucket, s.key) }

// ReadAt fetches [off, off+n) clamped to the object size. A clamped read
// returns the available bytes with io.ErrUnexpectedEOF.
func (s *Source) ReadAt(off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("invalid range %d+%d", off, n)
	}
	if n == 0 {
		return []byte{}, nil
	}
	if off >= s.size {
		return nil, io.EOF
	}
	end := off + int64(n)
	if end > s.size {
		end = s.size
	}

	boff := backoff.Backoff{
		Min: s.opts.MinBackoff,
		Max: s.opts.MaxBackoff,
	}
	var (
		buf []byte
		err error
	)
	for attempt := 0; ; attempt++ {
		buf, err = s.fetch(off, end)
		if err == nil || attempt >= s.opts.Retries || !retryable(err) {
			break
		}
		dur := boff.Duration()
		timer := time.NewTimer(dur)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil, s.ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, err
	}
	if end-off < int64(n) {
		return buf, io.ErrUnexpectedEOF
	}
	return buf, nil
}

func (s *Source) fetch(off, end int64) ([]byte, error) {
	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end-1)),
	})
	if err != nil {
		return nil, oops.New(err, "failed to get %s range %d-%d", s, off, end-1)
	}
	defer out.Body.Close()

	buf := make([]byte, end-off)
	got, err := io.ReadFull(out.Body, buf)
	if err != nil {
		return buf[:got], oops.New(err, "failed to read %s range %d-%d", s, off, end-1)
	}
	return buf, nil
}

// retryable reports whether err is worth another attempt. Service errors
// are final unless the service asked to slow down or failed internally.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.ErrorCode() {
		case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
			return true
		}
		return false
	}
	return true
}
