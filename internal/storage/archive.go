package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// DefaultArchiveBucket is the bucket raw markup is archived to.
const DefaultArchiveBucket = "rssnews-raw"

// MinioConfig configures the optional raw markup archive.
type MinioConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// Archiver uploads each article's compressed markup to object storage under
// <parsed date>/<url hash>.html.z.
type Archiver struct {
	client *miniogo.Client
	bucket string
}

// NewArchiver creates a MinIO archiver.
func NewArchiver(cfg MinioConfig) (*Archiver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultArchiveBucket
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Archiver{client: client, bucket: bucket}, nil
}

// ObjectKey returns the object key for doc.
func ObjectKey(doc *domain.ArticleDocument) string {
	return fmt.Sprintf("%s/%s.html.z", doc.ParsedAt.UTC().Format("2006/01/02"), doc.URLHash)
}

// Archive uploads doc.RawMarkup.
func (a *Archiver) Archive(ctx context.Context, doc *domain.ArticleDocument) error {
	_, err := a.client.PutObject(
		ctx,
		a.bucket,
		ObjectKey(doc),
		bytes.NewReader(doc.RawMarkup),
		int64(len(doc.RawMarkup)),
		miniogo.PutObjectOptions{
			ContentType:     "text/html",
			ContentEncoding: "deflate",
			UserMetadata: map[string]string{
				"url":       doc.CanonicalURL,
				"parsed-at": doc.ParsedAt.UTC().Format(time.RFC3339),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", doc.URLHash, err)
	}
	return nil
}
