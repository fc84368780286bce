// Package archive uploads finalized episode files to S3-compatible object
// storage.
package archive

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/errors"
)

const componentArchive = "archive"

// Config holds the bucket and credentials of the archive.
type Config struct {
	Endpoint        string // empty for AWS; set for MinIO, R2 and similar
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// ConfigFromSettings maps archive settings.
func ConfigFromSettings(s *conf.ArchiveSettings) Config {
	return Config{
		Endpoint:        s.Endpoint,
		Region:          s.Region,
		Bucket:          s.Bucket,
		Prefix:          s.Prefix,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
	}
}

// IsConfigured reports whether uploads can be attempted.
func (c *Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// objectPutter is the part of *s3.Client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// newS3Client creates an S3 client with static credentials. A custom
// endpoint switches to path-style addressing.
func newS3Client(cfg *Config) (*s3.Client, error) {
	if !cfg.IsConfigured() {
		return nil, errors.Newf("archive bucket or credentials are not configured").
			Component(componentArchive).
			Category(errors.CategoryConfiguration).
			Build()
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...), nil
}

// objectKey places the file under prefix/YYYY/MM/DD/ by episode start date.
func objectKey(prefix string, res export.Result) string {
	day := res.Episode.Start.Local().Format("2006/01/02")
	return strings.TrimPrefix(path.Join(prefix, day, filepath.Base(res.Path)), "/")
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
