package publish

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"

	"github.com/snapbooth/booth/internal/config"
)

// Publisher makes a stored photo reachable by guests and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// LocalPublisher serves published photos from the backend's own /photos/
// route. The photo must already be in the LocalStore.
type LocalPublisher struct {
	baseURL string
}

func NewLocalPublisher(baseURL string) *LocalPublisher {
	return &LocalPublisher{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *LocalPublisher) Publish(_ context.Context, name, _ string, _ []byte) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return p.baseURL + "/photos/" + url.PathEscape(clean), nil
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Publisher puts photos into a bucket and hands out presigned GET URLs,
// so the bucket itself can stay private.
type S3Publisher struct {
	client  objectPutter
	presign objectPresigner
	bucket  string
	prefix  string
	ttl     time.Duration
}

// NewS3Publisher loads AWS credentials from the default chain.
func NewS3Publisher(ctx context.Context, cfg config.S3Config) (*S3Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return newS3Publisher(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Publisher(client objectPutter, presign objectPresigner, cfg config.S3Config) *S3Publisher {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &S3Publisher{
		client:  client,
		presign: presign,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		ttl:     ttl,
	}
}

// Key is the object key for name. A ULID keeps keys unique and ordered by
// upload time even when the kiosk's name counter restarts.
func (p *S3Publisher) Key(name string) string {
	clean, err := cleanName(name)
	if err != nil {
		clean = "photo"
	}
	key := ulid.Make().String() + "-" + clean
	if p.prefix == "" {
		return key
	}
	return path.Join(p.prefix, key)
}

func (p *S3Publisher) Publish(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := p.Key(name)

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put S3 object: %w", err)
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign S3 object: %w", err)
	}
	return req.URL, nil
}
