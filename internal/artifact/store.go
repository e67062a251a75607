package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kuitang/aurora-verify/internal/obs"
)

// StoreConfig holds the configuration for the S3 artifact store.
type StoreConfig struct {
	// Endpoint is the S3 endpoint URL. Leave empty for AWS S3.
	Endpoint string
	// Region is the AWS region ("auto" for Tigris, "us-east-1" for AWS).
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL is the base URL under which uploaded objects are readable.
	PublicURL string
	// Prefix is prepended to every object key, followed by the run id.
	Prefix string
	// UsePathStyle is required for gofakes3 and some S3-compatible services.
	UsePathStyle bool
}

// Store uploads screenshots to an S3 bucket.
type Store struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string
	prefix     string
}

// NewStore creates an S3-backed store.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	var opts []func(*config.LoadOptions) error

	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewStoreFromS3Client(s3Client, cfg.BucketName, cfg.PublicURL, cfg.Prefix), nil
}

// NewStoreFromS3Client wraps an existing client. Tests use it with gofakes3.
func NewStoreFromS3Client(s3Client *s3.Client, bucketName, publicURL, prefix string) *Store {
	return &Store{
		s3Client:   s3Client,
		bucketName: bucketName,
		publicURL:  strings.TrimSuffix(publicURL, "/"),
		prefix:     strings.Trim(prefix, "/"),
	}
}

// Key returns the object key for a screenshot of the given run.
func (s *Store) Key(runID, file string) string {
	parts := []string{}
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	parts = append(parts, runID, filepath.Base(file))
	return path.Join(parts...)
}

// PublicURL returns the publicly accessible URL for key. Without a
// configured public base it returns an s3:// URI.
func (s *Store) PublicURL(key string) string {
	if s.publicURL == "" {
		return "s3://" + s.bucketName + "/" + strings.TrimPrefix(key, "/")
	}
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}

// Put stores content under key.
func (s *Store) Put(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("artifact: failed to put object %q: %w", key, err)
	}
	return nil
}

// UploadAll uploads every artifact whose file exists and fills in its URL.
// Missing files are skipped. Upload failures are collected; the artifacts
// that did upload keep their URLs.
func (s *Store) UploadAll(ctx context.Context, runID string, artifacts []Artifact) error {
	log := obs.From(ctx).With("pkg", "artifact")
	var problems []error
	for i := range artifacts {
		a := &artifacts[i]
		content, err := os.ReadFile(a.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Warn("artifact_missing", "path", a.Path)
				continue
			}
			problems = append(problems, fmt.Errorf("read %s: %w", a.Path, err))
			continue
		}
		key := s.Key(runID, a.Path)
		if err := s.Put(ctx, key, content, contentType(a.Path)); err != nil {
			problems = append(problems, err)
			continue
		}
		a.URL = s.PublicURL(key)
		log.Info("artifact_uploaded", "path", a.Path, "key", key, "bytes", len(content))
	}
	return errors.Join(problems...)
}

// UploadFile uploads one local file of the run and returns its URL.
func (s *Store) UploadFile(ctx context.Context, runID, file string) (string, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	key := s.Key(runID, file)
	if err := s.Put(ctx, key, content, contentType(file)); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
