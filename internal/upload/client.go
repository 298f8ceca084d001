// Package upload mirrors finished artifacts to S3-compatible object storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of the S3 API used by the mirror.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the bucket and credentials. Empty credentials fall back to
// the default AWS chain.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PublicBaseURL   string
}

// Client uploads artifacts under a key prefix.
type Client struct {
	s3      ObjectPutter
	bucket  string
	prefix  string
	baseURL string
}

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	svc := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithPutter(svc, cfg.Bucket, cfg.Prefix, cfg.PublicBaseURL), nil
}

// NewWithPutter wraps an existing S3 API implementation.
func NewWithPutter(p ObjectPutter, bucket, prefix, baseURL string) *Client {
	return &Client{
		s3:      p,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ObjectKey joins the configured prefix and key.
func (c *Client) ObjectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if c.prefix == "" {
		return key
	}
	return path.Join(c.prefix, key)
}

// Mirror uploads localPath as key and returns the remote location: the
// public URL when a base URL is configured, otherwise an s3:// URI.
func (c *Client) Mirror(ctx context.Context, localPath, key string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	mimeType, err := detectMime(localPath)
	if err != nil {
		return "", err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	objectKey := c.ObjectKey(key)
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(objectKey),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectKey, err)
	}

	if c.baseURL != "" {
		return c.baseURL + "/" + objectKey, nil
	}
	return "s3://" + c.bucket + "/" + objectKey, nil
}

var mediaTypes = map[string]string{
	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".mp4": "video/mp4",
	".jpg": "image/jpeg",
}

// detectMime prefers the extension for media containers, which content
// sniffing often reports as application/octet-stream.
func detectMime(p string) (string, error) {
	ext := strings.ToLower(filepath.Ext(p))
	if mt, ok := mediaTypes[ext]; ok {
		return mt, nil
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt, nil
	}

	file, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("open for mime detect: %w", err)
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read for mime detect: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}
