package archive

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
	"github.com/tphakala/threshcorder/internal/observability/metrics"
)

// Marker records that an episode file was archived.
type Marker interface {
	MarkArchived(ctx context.Context, path string) error
}

// Sink uploads every written episode file.
type Sink struct {
	client  objectPutter
	cfg     Config
	marker  Marker
	metrics metrics.Recorder
	log     logger.Logger
}

// Option customizes a Sink.
type Option func(*Sink)

// WithMarker flags uploaded episodes, typically in the catalogue.
func WithMarker(m Marker) Option {
	return func(s *Sink) { s.marker = m }
}

// WithMetrics records upload outcomes.
func WithMetrics(rec metrics.Recorder) Option {
	return func(s *Sink) { s.metrics = rec }
}

// NewSink creates the S3 client for cfg.
func NewSink(cfg Config, opts ...Option) (*Sink, error) {
	client, err := newS3Client(&cfg)
	if err != nil {
		return nil, err
	}
	return newSink(client, cfg, opts...), nil
}

func newSink(client objectPutter, cfg Config, opts ...Option) *Sink {
	s := &Sink{
		client:  client,
		cfg:     cfg,
		metrics: metrics.NopRecorder{},
		log:     logger.Global().Module(componentArchive),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements session.Sink.
func (s *Sink) Name() string { return componentArchive }

// HandleEpisode implements session.Sink.
func (s *Sink) HandleEpisode(ctx context.Context, sessionID string, res export.Result) error {
	start := time.Now()
	key := objectKey(s.cfg.Prefix, res)

	err := s.upload(ctx, sessionID, key, res)
	s.metrics.RecordDuration(metrics.OpArchiveUpload, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordOperation(metrics.OpArchiveUpload, metrics.StatusError)
		s.metrics.RecordError(metrics.OpArchiveUpload, "network")
		return err
	}
	s.metrics.RecordOperation(metrics.OpArchiveUpload, metrics.StatusSuccess)

	log := s.log.WithContext(ctx)
	log.Info("episode archived",
		logger.Uint64("episode", res.Episode.ID),
		logger.String("bucket", s.cfg.Bucket),
		logger.String("key", key),
		logger.Duration("elapsed", time.Since(start)))

	if s.marker != nil {
		if err := s.marker.MarkArchived(ctx, res.Path); err != nil {
			log.Warn("failed to flag episode as archived",
				logger.String("path", res.Path),
				logger.Error(err))
		}
	}
	return nil
}

func (s *Sink) upload(ctx context.Context, sessionID, key string, res export.Result) error {
	file, err := os.Open(res.Path)
	if err != nil {
		return s.uploadError(err, key)
	}
	defer func() {
		if err := file.Close(); err != nil {
			s.log.Warn("failed to close file after upload", logger.Error(err))
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return s.uploadError(err, key)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(res.Path)),
		Metadata: map[string]string{
			"session-id": sessionID,
			"episode-id": strconv.FormatUint(res.Episode.ID, 10),
			"start":      res.Episode.Start.UTC().Format(time.RFC3339Nano),
			"forced":     strconv.FormatBool(res.Episode.Forced),
			"degraded":   strconv.FormatBool(res.Degraded),
		},
	})
	if err != nil {
		return s.uploadError(fmt.Errorf("put object: %w", err), key)
	}
	return nil
}

func (s *Sink) uploadError(err error, key string) error {
	return errors.New(err).
		Component(componentArchive).
		Category(errors.CategoryArchive).
		Context("bucket", s.cfg.Bucket).
		Context("key", key).
		Build()
}
